// Package tree projects resolved entries onto a nested directory tree and
// serializes it.
package tree

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/pathkey"
)

// Layout selects which path of an entry is placed in the tree.
type Layout uint8

const (
	// LayoutSource places entries at their physical location: the file path
	// of loose files, or the archive path joined with the entry name.
	LayoutSource Layout = iota
	// LayoutVirtual places entries at their VFS path.
	LayoutVirtual
)

// Root labels for each layout.
const (
	SourceLabel  = "/"
	VirtualLabel = "Data Files"
)

func (l Layout) String() string {
	if l == LayoutVirtual {
		return "virtual"
	}
	return "source"
}

// Node is a directory.
type Node struct {
	Name  string
	Files []string
	Dirs  []*Node

	dirIndex map[string]int // folded name -> position in Dirs
}

func newNode(name string) *Node {
	return &Node{Name: name, dirIndex: make(map[string]int)}
}

// Build places every slash separated path in a tree under label.
//
// Directories are merged case-insensitively and keep the spelling of the
// first path in folded order. Files and directories are sorted by folded
// name, and directories that end up without files are dropped.
func Build(label string, paths []string) *Node {
	sorted := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = pathkey.Clean(p); p != "" {
			sorted = append(sorted, p)
		}
	}
	slices.SortFunc(sorted, func(a, b string) int {
		if c := strings.Compare(pathkey.Fold(a), pathkey.Fold(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	root := newNode(label)
	for _, p := range sorted {
		root.insert(p)
	}
	root.finish()
	return root
}

// FromEntries builds the tree of entries for layout.
func FromEntries(entries []index.Entry, layout Layout) *Node {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, Path(e, layout))
	}
	label := SourceLabel
	if layout == LayoutVirtual {
		label = VirtualLabel
	}
	return Build(label, paths)
}

// Path returns the path e is placed at under layout.
func Path(e index.Entry, layout Layout) string {
	if layout == LayoutVirtual {
		return e.Key.Display()
	}
	return e.Origin.Location()
}

func (n *Node) insert(path string) {
	cur, dir := n, ""
	for {
		name, isDir := pathkey.Child(path, dir)
		if !isDir {
			cur.Files = append(cur.Files, name)
			return
		}
		cur = cur.child(name)
		dir = pathkey.DirPrefix(dir + name)
	}
}

func (n *Node) child(name string) *Node {
	folded := pathkey.Fold(name)
	if i, ok := n.dirIndex[folded]; ok {
		return n.Dirs[i]
	}
	c := newNode(name)
	n.dirIndex[folded] = len(n.Dirs)
	n.Dirs = append(n.Dirs, c)
	return c
}

// finish sorts children and prunes empty directories.
func (n *Node) finish() bool {
	slices.SortStableFunc(n.Files, func(a, b string) int {
		return strings.Compare(pathkey.Fold(a), pathkey.Fold(b))
	})
	kept := n.Dirs[:0]
	for _, d := range n.Dirs {
		if d.finish() {
			kept = append(kept, d)
		}
	}
	n.Dirs = kept
	slices.SortFunc(n.Dirs, func(a, b *Node) int {
		return strings.Compare(pathkey.Fold(a.Name), pathkey.Fold(b.Name))
	})
	n.dirIndex = nil
	return len(n.Files) > 0 || len(n.Dirs) > 0
}

// Len returns the number of files in the tree.
func (n *Node) Len() int {
	total := len(n.Files)
	for _, d := range n.Dirs {
		total += d.Len()
	}
	return total
}

// Walk calls fn for every file with its slash separated path below n.
func (n *Node) Walk(fn func(path string)) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string)) {
	for _, f := range n.Files {
		fn(prefix + f)
	}
	for _, d := range n.Dirs {
		d.walk(prefix+d.Name+"/", fn)
	}
}

func (n *Node) String() string {
	var b strings.Builder
	n.format(&b, 0)
	return b.String()
}

func (n *Node) format(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s/\n", indent, strings.TrimSuffix(n.Name, "/"))
	for _, f := range n.Files {
		fmt.Fprintf(b, "%s  %s\n", indent, f)
	}
	for _, d := range n.Dirs {
		d.format(b, depth+1)
	}
}
