package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"

	"github.com/meigma/vfstool"
)

// ANSI colors for status tags.
const (
	colorRed   = "1"
	colorGreen = "2"
	colorBlue  = "4"
)

func tag(out *termenv.Output, text, color string) string {
	return out.String("[ " + text + " ]").Foreground(out.Color(color)).Bold().String()
}

func highlight(out *termenv.Output, text, color string) string {
	return out.String(text).Foreground(out.Color(color)).String()
}

func (r *runner) success(format string, args ...any) {
	fmt.Fprintf(r.stdout, "%s: %s\n", tag(r.out, "SUCCESS", colorGreen), fmt.Sprintf(format, args...))
}

func (r *runner) failure(format string, args ...any) {
	fmt.Fprintf(r.stderr, "%s: %s\n", tag(r.errOut, "ERROR", colorRed), fmt.Sprintf(format, args...))
}

// writeTree encodes root to path, or to stdout when path is empty.
func (r *runner) writeTree(root *vfstool.TreeNode, format vfstool.Format, path string) error {
	if path == "" {
		return vfstool.EncodeTree(r.stdout, root, format)
	}
	var buf bytes.Buffer
	if err := vfstool.EncodeTree(&buf, root, format); err != nil {
		return err
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	return nil
}
