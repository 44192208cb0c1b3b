package collapse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/vfstool/pathkey"
)

// Method is the way an entry was materialized.
type Method uint8

const (
	// MethodHardlink links the target to the loose source file.
	MethodHardlink Method = iota + 1
	// MethodSymlink points the target at the absolute source path.
	MethodSymlink
	// MethodExtract writes archive entry bytes to the target.
	MethodExtract
	// MethodCopy copies loose file bytes to the target.
	MethodCopy
	// methodMkdir is reported in attempts when the parent directory fails.
	methodMkdir
)

func (m Method) String() string {
	switch m {
	case MethodHardlink:
		return "hardlink"
	case MethodSymlink:
		return "symlink"
	case MethodExtract:
		return "extract"
	case MethodCopy:
		return "copy"
	case methodMkdir:
		return "mkdir"
	default:
		return "unknown"
	}
}

// Outcome is a successfully materialized entry.
type Outcome struct {
	Key    pathkey.Key
	Method Method
	Target string

	// Reused reports that an equivalent link was already in place.
	Reused bool

	// Bytes is the number of bytes written by extraction or copying.
	Bytes int64
}

// Reason explains why an entry was deliberately left out.
type Reason uint8

const (
	// ArchiveNotExtracted marks archived entries when extraction is off.
	ArchiveNotExtracted Reason = iota + 1
	// ArchiveFileSkipped marks loose archive files whose contents are
	// extracted instead.
	ArchiveFileSkipped
)

func (r Reason) String() string {
	switch r {
	case ArchiveNotExtracted:
		return "archive entry not extracted"
	case ArchiveFileSkipped:
		return "archive file skipped"
	default:
		return "unknown"
	}
}

// NotMaterialized is an entry intentionally left out of the target.
type NotMaterialized struct {
	Key    pathkey.Key
	Reason Reason
}

func (n NotMaterialized) Error() string {
	return "collapse: " + n.Key.Display() + ": " + n.Reason.String()
}

// Attempt is one failed materialization step.
type Attempt struct {
	Method Method
	Err    error
}

// CollapseError records an entry every applicable method failed for.
type CollapseError struct {
	Key      pathkey.Key
	Target   string
	Attempts []Attempt
}

func (e *CollapseError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Method, a.Err))
	}
	return fmt.Sprintf("collapse: %s: %s", e.Key.Display(), strings.Join(parts, "; "))
}

// Unwrap returns the error of every attempt.
func (e *CollapseError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Report is the result of a collapse run. Every slice is sorted by key.
type Report struct {
	Materialized []Outcome
	Skipped      []NotMaterialized
	Failed       []*CollapseError
}

// Stats contains counts from a collapse run.
type Stats struct {
	Hardlinked int
	Symlinked  int
	Extracted  int
	Copied     int

	// Reused counts links that were already in place.
	Reused int

	Skipped int
	Failed  int

	// Bytes is the sum of bytes written by extraction and copying.
	Bytes int64
}

// Stats counts the report per method.
func (r *Report) Stats() Stats {
	var s Stats
	for _, o := range r.Materialized {
		switch o.Method {
		case MethodHardlink:
			s.Hardlinked++
		case MethodSymlink:
			s.Symlinked++
		case MethodExtract:
			s.Extracted++
		case MethodCopy:
			s.Copied++
		}
		if o.Reused {
			s.Reused++
		}
		s.Bytes += o.Bytes
	}
	s.Skipped = len(r.Skipped)
	s.Failed = len(r.Failed)
	return s
}

// Err joins every failure, or returns nil when all entries succeeded or were
// skipped.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}
