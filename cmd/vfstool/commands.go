package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/meigma/vfstool"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "output format: json, yaml or toml",
		Value:   "yaml",
	}
}

func outputFlag() cli.Flag {
	return &cli.PathFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "write to `FILE` instead of stdout",
	}
}

func collapseCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "collapse",
		Usage:     "materialize the VFS into a single directory",
		ArgsUsage: "<target>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "allow-copying",
				Aliases: []string{"a"},
				Usage:   "copy loose files that cannot be linked",
			},
			&cli.BoolFlag{
				Name:    "extract-archives",
				Aliases: []string{"e"},
				Usage:   "extract archived files and leave the archives out",
			},
			&cli.BoolFlag{
				Name:    "symbolic",
				Aliases: []string{"s"},
				Usage:   "link loose files symbolically",
			},
			&cli.Int64Flag{
				Name:  "read-ahead",
				Usage: "cap on archived `BYTES` extracted at once; 0 disables it",
				Value: 256 << 20,
			},
		},
		Action: r.collapse,
	}
}

func (r *runner) collapse(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("collapse: expected exactly one <target>", 2)
	}
	target := c.Args().First()

	v, err := r.open(c)
	if err != nil {
		return err
	}
	defer v.Close()

	report, err := v.Collapse(c.Context, target,
		vfstool.CollapseWithCopyFallback(c.Bool("allow-copying")),
		vfstool.CollapseWithExtractArchives(c.Bool("extract-archives")),
		vfstool.CollapseWithSkipArchiveFiles(c.Bool("extract-archives")),
		vfstool.CollapseWithSymlinks(c.Bool("symbolic")),
		vfstool.CollapseWithReadAheadBytes(c.Int64("read-ahead")),
	)
	if err != nil {
		return fmt.Errorf("collapse: %w", err)
	}

	for _, f := range report.Failed {
		r.failure("%v", f)
	}
	s := report.Stats()
	r.success("collapsed %d files into %s (%d hardlinked, %d symlinked, %d extracted, %d copied, %d already in place, %d skipped)",
		len(report.Materialized), highlight(r.out, target, colorBlue),
		s.Hardlinked, s.Symlinked, s.Extracted, s.Copied, s.Reused, s.Skipped)
	if s.Failed > 0 {
		return cli.Exit(fmt.Sprintf("collapse: %d files could not be materialized", s.Failed), 1)
	}
	return nil
}

func extractCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "copy one resolved file into a directory",
		ArgsUsage: "<source_file> <target_dir>",
		Action:    r.extract,
	}
}

func (r *runner) extract(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("extract: expected <source_file> <target_dir>", 2)
	}
	source, dir := c.Args().Get(0), c.Args().Get(1)

	v, err := r.open(c)
	if err != nil {
		return err
	}
	defer v.Close()

	out, err := v.Extract(c.Context, source, dir)
	if err != nil {
		r.failure("could not extract %s: %v", highlight(r.errOut, source, colorGreen), err)
		return cli.Exit("", 1)
	}
	r.success("extracted %s to %s", highlight(r.out, out.Key.Display(), colorGreen), highlight(r.out, out.Target, colorBlue))
	return nil
}

func findFileCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "find-file",
		Usage:     "print where a VFS path is loaded from",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "simple",
				Aliases: []string{"s"},
				Usage:   "print only the location",
			},
		},
		Action: r.findFile,
	}
}

func (r *runner) findFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("find-file: expected exactly one <path>", 2)
	}
	path := c.Args().First()

	v, err := r.open(c)
	if err != nil {
		return err
	}
	defer v.Close()

	e, err := v.FindFile(path)
	var nf *vfstool.NotFoundError
	switch {
	case errors.As(err, &nf):
		r.failure("failed to locate %s in the VFS", highlight(r.errOut, path, colorBlue))
		for _, s := range nf.Suggestions {
			fmt.Fprintf(r.stderr, "  did you mean %s?\n", highlight(r.errOut, s, colorGreen))
		}
		return cli.Exit("", 1)
	case err != nil:
		return err
	}

	if c.Bool("simple") {
		fmt.Fprintln(r.stdout, e.Origin.Location())
		return nil
	}
	r.success("found VFS file %s at %s", highlight(r.out, e.Key.Display(), colorBlue), highlight(r.out, e.Origin.Location(), colorGreen))
	return nil
}

func findCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "print the tree of VFS files matching a query",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Aliases:  []string{"p"},
				Usage:    "query string",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "filter: exact, name, name-exact, folder, prefix, extension, stem, stem-exact, contains or glob",
				Value:   "name",
			},
			formatFlag(),
			outputFlag(),
		},
		Action: r.find,
	}
}

func (r *runner) find(c *cli.Context) error {
	filter, err := vfstool.ParseFilter(c.String("type"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	format, err := vfstool.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	v, err := r.open(c)
	if err != nil {
		return err
	}
	defer v.Close()

	entries, err := v.Find(filter, c.String("path"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	r.logger.Debug("query matched", "filter", filter, "query", c.String("path"), "entries", len(entries))
	return r.writeTree(vfstool.Tree(entries, layout(c)), format, c.String("output"))
}

func remainingCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "remaining",
		Usage:     "compare a directory with the VFS",
		ArgsUsage: "<filter_path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "replacements-only",
				Aliases: []string{"R"},
				Usage:   "list only files another source overrides",
			},
			formatFlag(),
			outputFlag(),
		},
		Action: r.remaining,
	}
}

func (r *runner) remaining(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("remaining: expected exactly one <filter_path>", 2)
	}
	format, err := vfstool.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	v, err := r.open(c)
	if err != nil {
		return err
	}
	defer v.Close()

	files, err := v.Remaining(c.Context, c.Args().First(), c.Bool("replacements-only"))
	if err != nil {
		return fmt.Errorf("remaining: %w", err)
	}
	return r.writeTree(vfstool.RemainingTree(files, layout(c)), format, c.String("output"))
}
