// Command vfstool inspects and materializes the virtual file system OpenMW
// assembles from openmw.cfg.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/meigma/vfstool"
	"github.com/meigma/vfstool/internal/metrics"
	"github.com/meigma/vfstool/internal/openmwcfg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args)
	stop()
	if err == nil {
		return
	}
	code := 1
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		code = exit.ExitCode()
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// runner holds the state shared by every command of one invocation.
type runner struct {
	stdout io.Writer
	stderr io.Writer
	out    *termenv.Output
	errOut *termenv.Output
	logger *slog.Logger
	reg    *prometheus.Registry
}

func newApp(stdout, stderr io.Writer) *cli.App {
	r := &runner{
		stdout: stdout,
		stderr: stderr,
		out:    termenv.NewOutput(stdout),
		errOut: termenv.NewOutput(stderr),
	}

	return &cli.App{
		Name:  "vfstool",
		Usage: "inspect and collapse the OpenMW virtual file system",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "directory containing openmw.cfg, or the file itself",
				EnvVars: []string{openmwcfg.EnvConfig},
			},
			&cli.BoolFlag{
				Name:    "use-relative",
				Aliases: []string{"r"},
				Usage:   "print VFS paths instead of source locations",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: debug, info, warn or error",
				Value:   "warn",
				EnvVars: []string{"VFSTOOL_LOG_LEVEL"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "concurrent workers; 0 uses every CPU, negative runs serially",
				EnvVars: []string{"VFSTOOL_WORKERS"},
			},
			&cli.PathFlag{
				Name:  "metrics-file",
				Usage: "write prometheus metrics to `FILE` on exit",
			},
		},
		Commands: []*cli.Command{
			collapseCommand(r),
			extractCommand(r),
			findFileCommand(r),
			findCommand(r),
			remainingCommand(r),
		},
		Before:          r.setup,
		After:           r.finish,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		Suggest:         true,
		// Exit codes are handled by main so that tests can run the app.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func (r *runner) setup(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return cli.Exit(fmt.Sprintf("invalid --log-level %q", c.String("log-level")), 2)
	}
	r.logger = slog.New(slog.NewTextHandler(r.stderr, &slog.HandlerOptions{Level: level}))
	if c.String("metrics-file") != "" {
		r.reg = prometheus.NewRegistry()
	}
	return nil
}

func (r *runner) finish(c *cli.Context) error {
	path := c.String("metrics-file")
	if path == "" || r.reg == nil {
		return nil
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	return metrics.WriteFile(path, r.reg)
}

// open builds the VFS from the configured openmw.cfg.
func (r *runner) open(c *cli.Context) (*vfstool.VFS, error) {
	opts := []vfstool.Option{
		vfstool.WithWorkers(c.Int("workers")),
		vfstool.WithLogger(r.logger),
	}
	if r.reg != nil {
		opts = append(opts, vfstool.WithMetrics(r.reg))
	}
	v, _, err := vfstool.OpenConfig(c.Context, c.String("config"), opts...)
	if err != nil {
		return nil, fmt.Errorf("build vfs: %w", err)
	}
	return v, nil
}

func layout(c *cli.Context) vfstool.Layout {
	if c.Bool("use-relative") {
		return vfstool.LayoutVirtual
	}
	return vfstool.LayoutSource
}
