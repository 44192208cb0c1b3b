package collapse

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/meigma/vfstool/internal/index"
)

// Extract writes the bytes that answer for e to dir/<base name>, creating dir
// if needed. The file is staged under a temporary name and renamed into
// place, so an existing file at the destination is replaced, never written
// through.
//
// Archived entries report MethodExtract and loose entries MethodCopy.
func Extract(ctx context.Context, idx *index.Index, e index.Entry, dir string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract: %w", err)
	}
	sink, err := newFileSink(abs, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract: %w", err)
	}
	defer sink.Close()

	method := MethodCopy
	if e.Origin.Kind == index.KindArchived {
		method = MethodExtract
	}
	name := e.Key.DisplayBase()

	rc, err := idx.Open(e)
	if err != nil {
		return Outcome{}, &CollapseError{Key: e.Key, Target: sink.path(name), Attempts: []Attempt{{Method: method, Err: err}}}
	}
	defer rc.Close()

	n, err := sink.write(name, rc)
	if err != nil {
		return Outcome{}, &CollapseError{Key: e.Key, Target: sink.path(name), Attempts: []Attempt{{Method: method, Err: err}}}
	}
	return Outcome{Key: e.Key, Method: method, Target: sink.path(name), Bytes: n}, nil
}
