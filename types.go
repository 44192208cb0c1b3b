package vfstool

import (
	"github.com/meigma/vfstool/internal/build"
	"github.com/meigma/vfstool/internal/collapse"
	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/openmwcfg"
	"github.com/meigma/vfstool/internal/query"
	"github.com/meigma/vfstool/internal/remaining"
	"github.com/meigma/vfstool/internal/tree"
)

type (
	// Root is one source of the VFS. Later roots override earlier ones.
	Root = build.Root

	// Entry is a resolved path and the origin that answers for it.
	Entry = index.Entry

	// Origin is where an entry's bytes come from.
	Origin = index.Origin

	// Config is a merged openmw.cfg.
	Config = openmwcfg.Config

	// Filter selects how a query string is matched against paths.
	Filter = query.Filter

	// Report is the result of a collapse.
	Report = collapse.Report

	// Outcome is a materialized entry.
	Outcome = collapse.Outcome

	// Method is the way an entry was materialized.
	Method = collapse.Method

	// Stats contains counts from a collapse.
	Stats = collapse.Stats

	// RemainingFile is a file found by Remaining.
	RemainingFile = remaining.File

	// Layout selects which path of an entry is placed in a tree.
	Layout = tree.Layout

	// TreeNode is a directory in a tree projection.
	TreeNode = tree.Node

	// Format is a tree serialization format.
	Format = tree.Format
)

// DirectoryRoot returns a data directory root. archives name archive files
// inside it that share its priority and lose to its loose files.
func DirectoryRoot(path string, archives ...string) Root {
	return build.DirectoryRoot(path, archives...)
}

// ArchiveRoot returns a root for a single archive.
func ArchiveRoot(path string) Root {
	return build.ArchiveRoot(path)
}

// Query filters.
const (
	FilterExact     = query.Exact
	FilterName      = query.Name
	FilterNameExact = query.NameExact
	FilterFolder    = query.Folder
	FilterPrefix    = query.Prefix
	FilterExtension = query.Extension
	FilterStem      = query.Stem
	FilterStemExact = query.StemExact
	FilterContains  = query.Contains
	FilterGlob      = query.Glob
)

// ParseFilter maps a filter name such as "name-exact" to its Filter.
func ParseFilter(name string) (Filter, error) {
	return query.ParseFilter(name)
}

// Materialization methods.
const (
	MethodHardlink = collapse.MethodHardlink
	MethodSymlink  = collapse.MethodSymlink
	MethodExtract  = collapse.MethodExtract
	MethodCopy     = collapse.MethodCopy
)

// Tree layouts.
const (
	// LayoutSource places entries at their physical location.
	LayoutSource = tree.LayoutSource
	// LayoutVirtual places entries at their VFS path.
	LayoutVirtual = tree.LayoutVirtual
)

// Tree formats.
const (
	FormatJSON = tree.JSON
	FormatYAML = tree.YAML
	FormatTOML = tree.TOML
)

// ParseFormat maps "json", "yaml" or "toml" to its Format.
func ParseFormat(name string) (Format, error) {
	return tree.ParseFormat(name)
}
