package bsa

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveOpen is returned when an archive header or directory table
	// cannot be read or is malformed.
	ErrArchiveOpen = errors.New("bsa: cannot open archive")

	// ErrEntryMissing is returned when an entry is not present in the archive.
	ErrEntryMissing = errors.New("bsa: entry missing")

	// ErrArchiveCorrupt is returned when entry data cannot be decoded.
	ErrArchiveCorrupt = errors.New("bsa: corrupt entry")

	// ErrEntryTooLarge is returned when an entry exceeds the configured
	// maximum size.
	ErrEntryTooLarge = errors.New("bsa: entry too large")
)

// ArchiveError records a failed archive operation together with the archive
// and, for reads, the entry involved.
type ArchiveError struct {
	Op      string
	Archive string
	Entry   string
	Kind    error
	Err     error
}

func (e *ArchiveError) Error() string {
	msg := "bsa: " + e.Op + " " + e.Archive
	if e.Entry != "" {
		msg += ": " + e.Entry
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, kindText(e.Kind), e.Err)
	}
	return msg + ": " + kindText(e.Kind)
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *ArchiveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func kindText(kind error) string {
	switch kind {
	case ErrArchiveOpen:
		return "cannot open archive"
	case ErrEntryMissing:
		return "entry missing"
	case ErrArchiveCorrupt:
		return "corrupt entry"
	case ErrEntryTooLarge:
		return "entry too large"
	}
	if kind == nil {
		return "error"
	}
	return kind.Error()
}

func openError(name string, err error) error {
	return &ArchiveError{Op: "open", Archive: name, Kind: ErrArchiveOpen, Err: err}
}

func openErrorf(name, format string, args ...any) error {
	return openError(name, fmt.Errorf(format, args...))
}
