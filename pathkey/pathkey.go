// Package pathkey provides the normalized logical path type used throughout
// the VFS.
//
// A Key has two forms. The folded form is used for equality and ordering; it
// has ASCII letters lowered, both separator styles mapped to "/", empty and
// "." segments dropped, and no leading or trailing separator. The display
// form receives the same separator treatment but keeps its original casing.
package pathkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a raw path is empty after normalization,
// contains a NUL byte or has a ".." segment.
var ErrInvalidPath = errors.New("pathkey: invalid path")

// Sep is the canonical separator of a Key.
const Sep = '/'

// Key is a normalized, case-insensitive logical path.
//
// The zero Key is invalid and is never returned by Normalize.
type Key struct {
	folded  string
	display string
}

// Normalize converts a raw path to a Key.
func Normalize(raw string) (Key, error) {
	display := Clean(raw)
	if display == "" {
		return Key{}, ErrInvalidPath
	}
	if strings.IndexByte(display, 0) >= 0 {
		return Key{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, raw)
	}
	for seg := range strings.SplitSeq(display, "/") {
		if seg == ".." {
			return Key{}, fmt.Errorf("%w: %q leaves its root", ErrInvalidPath, raw)
		}
	}
	return Key{folded: Fold(display), display: display}, nil
}

// MustNormalize is like Normalize but panics on invalid input.
// It is intended for constants and tests.
func MustNormalize(raw string) Key {
	k, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return k
}

// Clean unifies separators and drops empty and "." segments, so the result
// has no leading, trailing or repeated separator. Casing is preserved.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for seg := range strings.FieldsFuncSeq(raw, isSep) {
		if seg == "." {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(Sep)
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isSep(r rune) bool { return r == '/' || r == '\\' }

// Fold lowers ASCII letters. Other bytes are left untouched, matching the
// engine's own comparison rules.
func Fold(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			return foldFrom(s, i)
		}
	}
	return s
}

func foldFrom(s string, start int) string {
	b := []byte(s)
	for i := start; i < len(b); i++ {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// String returns the folded form.
func (k Key) String() string { return k.folded }

// Display returns the display form, which keeps the source casing.
func (k Key) Display() string { return k.display }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.folded == "" }

// Equal reports whether two keys have the same folded form.
func (k Key) Equal(other Key) bool { return k.folded == other.folded }

// Compare orders keys by folded form.
func (k Key) Compare(other Key) int { return strings.Compare(k.folded, other.folded) }

// HasPrefix reports whether the folded form starts with prefix, folded.
func (k Key) HasPrefix(prefix string) bool {
	return strings.HasPrefix(k.folded, Fold(prefix))
}

// Base returns the folded final path element.
func (k Key) Base() string { return Base(k.folded) }

// DisplayBase returns the final path element in display form.
func (k Key) DisplayBase() string { return Base(k.display) }

// Dir returns the folded parent path, or "" for top-level keys.
func (k Key) Dir() string { return Dir(k.folded) }

// Ext returns the folded extension without the dot.
func (k Key) Ext() string { return Ext(Base(k.folded)) }

// Stem returns the folded base name without its extension.
func (k Key) Stem() string { return Stem(Base(k.folded)) }
