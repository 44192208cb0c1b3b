// Package vfstool builds and materializes an OpenMW style virtual file system.
//
// A VFS is assembled from an ordered list of roots: data directories and
// Bethesda game archives (TES3 and TES4 BSA, FO4 BA2). Later roots override
// earlier ones, loose files override archived files of the same or a lower
// root, and paths compare case-insensitively with either separator.
//
// # Quick Start
//
// Open the VFS described by the user's openmw.cfg and look up a file:
//
//	v, cfg, err := vfstool.OpenConfig(ctx, "")
//	if err != nil {
//	    return err
//	}
//	defer v.Close()
//	e, err := v.Lookup(`Meshes\Base_Anim.nif`)
//
// Or list the roots yourself:
//
//	v, err := vfstool.Open(ctx, []vfstool.Root{
//	    vfstool.ArchiveRoot("/games/Morrowind/Data Files/Morrowind.bsa"),
//	    vfstool.DirectoryRoot("/games/Morrowind/Data Files"),
//	    vfstool.DirectoryRoot("/mods/Patch"),
//	}, vfstool.WithWorkers(4))
//
// # Collapsing
//
// Collapse writes the resolved namespace into one directory, hard linking
// loose files and optionally extracting archived ones:
//
//	report, err := v.Collapse(ctx, "/games/merged",
//	    vfstool.CollapseWithExtractArchives(true),
//	    vfstool.CollapseWithCopyFallback(true),
//	)
//
// Per-entry failures never stop a collapse; they are listed in the report.
package vfstool
