// Package openmwcfg reads OpenMW's openmw.cfg and turns its data paths and
// fallback archives into ordered VFS roots.
package openmwcfg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// ErrConfig is returned when a configuration file cannot be located, read
// or parsed.
var ErrConfig = errors.New("openmwcfg: invalid configuration")

// maxChain bounds config= recursion.
const maxChain = 16

// Config is the merged content of an openmw.cfg and the files it chains to
// with config= lines.
type Config struct {
	// Path is the first file loaded.
	Path string

	// Files lists every file that was loaded, in load order.
	Files []string

	// Data lists data= directories in priority order, lowest first.
	Data []string

	// DataLocal is the data-local= directory, which outranks every data=
	// directory. It is empty when unset.
	DataLocal string

	// FallbackArchives lists fallback-archive= names in load order.
	FallbackArchives []string

	// Content lists content= plugin names in load order.
	Content []string
}

// DataDirs returns the data directories in priority order, lowest first,
// with DataLocal last.
func (c *Config) DataDirs() []string {
	dirs := append([]string(nil), c.Data...)
	if c.DataLocal != "" {
		dirs = append(dirs, c.DataLocal)
	}
	return dirs
}

// Option configures loading.
type Option func(*loader)

// WithFS sets the filesystem configuration files are read from.
func WithFS(fsys afero.Fs) Option {
	return func(l *loader) {
		l.fs = fsys
	}
}

// WithLogger sets the logger for configuration loading.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

type loader struct {
	fs     afero.Fs
	logger *slog.Logger
	seen   map[string]bool
}

func (l *loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

func newLoader(opts []Option) *loader {
	l := &loader{seen: make(map[string]bool)}
	for _, opt := range opts {
		opt(l)
	}
	if l.fs == nil {
		l.fs = afero.NewOsFs()
	}
	return l
}

// Load reads the configuration at path, which may name the file itself or
// a directory containing it. An empty path uses DefaultPath.
func Load(path string, opts ...Option) (*Config, error) {
	l := newLoader(opts)

	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		path = def
	}
	file, err := l.locate(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Path: file}
	if err := l.load(cfg, file, 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

// locate returns the openmw.cfg inside dir, matching the name
// case-insensitively. A path naming a regular file is returned as is.
func (l *loader) locate(path string) (string, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfig, err)
	}
	info, err := l.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	names, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfig, err)
	}
	for _, fi := range names {
		if !fi.IsDir() && strings.EqualFold(fi.Name(), FileName) {
			return filepath.Join(path, fi.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no %s in %s", ErrConfig, FileName, path)
}

func (l *loader) load(cfg *Config, file string, depth int) error {
	if depth > maxChain {
		return fmt.Errorf("%w: config= chain deeper than %d at %s", ErrConfig, maxChain, file)
	}
	abs := filepath.Clean(file)
	if l.seen[abs] {
		return nil
	}
	l.seen[abs] = true

	f, err := l.fs.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	defer f.Close()

	cfg.Files = append(cfg.Files, file)
	l.log().Debug("reading openmw.cfg", "path", file)

	var chained []string
	if err := l.parse(cfg, f, filepath.Dir(file), &chained); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	for _, dir := range chained {
		next, err := l.locate(dir)
		if err != nil {
			l.log().Warn("skipping chained config", "path", dir, "error", err)
			continue
		}
		if err := l.load(cfg, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) parse(cfg *Config, r io.Reader, dir string, chained *[]string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, raw, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("%w: line %d: missing '='", ErrConfig, line)
		}
		key = strings.TrimSpace(key)
		value := unquote(strings.TrimSpace(raw))

		switch key {
		case "data":
			cfg.Data = append(cfg.Data, resolve(value, dir))
		case "data-local":
			cfg.DataLocal = resolve(value, dir)
		case "fallback-archive":
			cfg.FallbackArchives = append(cfg.FallbackArchives, value)
		case "content":
			cfg.Content = append(cfg.Content, value)
		case "config":
			*chained = append(*chained, resolve(value, dir))
		case "replace":
			replace(cfg, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

func replace(cfg *Config, key string) {
	switch key {
	case "data":
		cfg.Data = nil
	case "data-local":
		cfg.DataLocal = ""
	case "fallback-archive":
		cfg.FallbackArchives = nil
	case "content":
		cfg.Content = nil
	}
}

// unquote strips a leading quoted section. Inside quotes '&' escapes the
// next character; anything after the closing quote is ignored.
func unquote(v string) string {
	if !strings.HasPrefix(v, `"`) {
		return v
	}
	var b strings.Builder
	for i := 1; i < len(v); i++ {
		switch c := v[i]; c {
		case '&':
			if i+1 < len(v) {
				i++
				b.WriteByte(v[i])
			}
		case '"':
			return b.String()
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// resolve expands ~ and the ?token? prefixes, and makes relative paths
// relative to the directory of the file that named them.
func resolve(v, dir string) string {
	switch {
	case strings.HasPrefix(v, "?local?"):
		v = filepath.Join(dir, strings.TrimPrefix(v, "?local?"))
	case strings.HasPrefix(v, "?userdata?"):
		if base, err := UserDataDir(); err == nil {
			v = filepath.Join(base, strings.TrimPrefix(v, "?userdata?"))
		}
	case strings.HasPrefix(v, "?userconfig?"):
		if base, err := UserConfigDir(); err == nil {
			v = filepath.Join(base, strings.TrimPrefix(v, "?userconfig?"))
		}
	case strings.HasPrefix(v, "?global?"):
		v = filepath.Join(globalDataDir(), strings.TrimPrefix(v, "?global?"))
	}
	if expanded, err := homedir.Expand(v); err == nil {
		v = expanded
	}
	v = filepath.FromSlash(v)
	if !filepath.IsAbs(v) {
		v = filepath.Join(dir, v)
	}
	return filepath.Clean(v)
}
