package pathkey

import "strings"

// Base returns the last element of a slash-separated path.
// Trailing separators are ignored.
func Base(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Dir returns everything before the last separator, or "" when path has no
// separator.
func Dir(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// Ext returns the substring after the last "." of name.
// A leading dot does not start an extension, so ".hidden" has none.
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

// Stem returns name without its extension.
func Stem(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	return name[:i]
}

// DirPrefix converts a directory path to its prefix form.
// The empty directory yields "" which matches everything.
func DirPrefix(dir string) string {
	if dir == "" {
		return ""
	}
	return strings.TrimSuffix(dir, "/") + "/"
}

// Child splits the part of path below dir at its first separator. It
// returns the first element and whether more elements follow it. dir must be
// a prefix of path in the form DirPrefix returns.
func Child(path, dir string) (name string, isDir bool) {
	name, _, isDir = strings.Cut(path[len(dir):], "/")
	return name, isDir
}
