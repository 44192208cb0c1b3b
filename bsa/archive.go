// Package bsa reads Bethesda game archives.
//
// Supported containers are the Morrowind BSA (TES3), the Oblivion, Fallout 3,
// New Vegas and Skyrim BSA (TES4 versions 103, 104 and 105) and the Fallout 4
// and Starfield BA2 (general and texture archives).
//
// Opening an archive reads only its directory table. Entry bytes are read and
// decompressed on demand by [Archive.Read], which is safe for concurrent use.
package bsa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/spf13/afero"

	"github.com/meigma/vfstool/pathkey"
)

// Format identifies an archive container format.
type Format uint8

const (
	// FormatTES3 is the Morrowind BSA layout.
	FormatTES3 Format = iota + 1
	// FormatTES4 is the Oblivion through Skyrim SE BSA layout.
	FormatTES4
	// FormatBA2 is the Fallout 4 and Starfield BTDX layout.
	FormatBA2
)

func (f Format) String() string {
	switch f {
	case FormatTES3:
		return "tes3"
	case FormatTES4:
		return "tes4"
	case FormatBA2:
		return "ba2"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// chunk is one stored span of an entry.
type chunk struct {
	offset   int64
	packed   uint32 // bytes stored in the archive
	unpacked uint32 // bytes after decoding; 0 when taken from a size prefix

	codec        codec
	embeddedName bool // data starts with a length-prefixed path
	sizePrefix   bool // compressed data starts with a u32 original size
}

// record locates an entry's data.
type record struct {
	key    pathkey.Key
	chunks []chunk
}

// EntryInfo describes an archive entry without reading its data.
type EntryInfo struct {
	Key        pathkey.Key
	Compressed bool
	// StoredSize is the number of bytes the entry occupies in the archive.
	StoredSize uint64
}

// Archive is an opened archive catalog.
type Archive struct {
	name    string
	format  Format
	version uint32
	src     *source
	closer  io.Closer
	pool    *decompressPool
	records map[string]*record
	keys    []pathkey.Key

	maxEntrySize uint64
	concurrent   bool
	logger       *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithMaxEntrySize limits the decoded size of a single entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(a *Archive) {
		a.maxEntrySize = limit
	}
}

// WithConcurrentReads declares that the reader passed to [New] supports
// concurrent ReadAt calls, so no per-archive lock is taken.
func WithConcurrentReads(enabled bool) Option {
	return func(a *Archive) {
		a.concurrent = enabled
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens the archive at path on the local filesystem.
func Open(path string, opts ...Option) (*Archive, error) {
	return OpenFS(afero.NewOsFs(), path, opts...)
}

// OpenFS opens the archive at path within fsys.
func OpenFS(fsys afero.Fs, path string, opts ...Option) (*Archive, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, openError(path, err)
	}
	if info.IsDir() {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, openErrorf(path, "is a directory")
	}
	a, err := New(f, info.Size(), path, opts...)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	a.closer = f
	return a, nil
}

// New reads the directory table of an archive from r.
//
// name identifies the archive in errors and logs. The caller keeps ownership
// of r and must keep it open while the Archive is in use.
func New(r io.ReaderAt, size int64, name string, opts ...Option) (*Archive, error) {
	a := &Archive{
		name:    name,
		pool:    newDecompressPool(),
		records: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.src = newSource(r, size, a.concurrent)

	if size < 4 {
		return nil, openErrorf(name, "file too small")
	}
	magic, err := a.src.readFull(0, 4)
	if err != nil {
		return nil, openError(name, err)
	}

	var recs []*record
	switch {
	case bytes.Equal(magic, tes3Magic[:]):
		a.format = FormatTES3
		recs, err = a.readTES3()
	case bytes.Equal(magic, tes4Magic[:]):
		a.format = FormatTES4
		recs, err = a.readTES4()
	case bytes.Equal(magic, ba2Magic[:]):
		a.format = FormatBA2
		recs, err = a.readBA2()
	default:
		return nil, openErrorf(name, "unrecognized magic %x", magic)
	}
	if err != nil {
		var ae *ArchiveError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, openError(name, err)
	}

	for _, rec := range recs {
		if _, dup := a.records[rec.key.String()]; !dup {
			a.keys = append(a.keys, rec.key)
		}
		a.records[rec.key.String()] = rec
	}
	slices.SortFunc(a.keys, pathkey.Key.Compare)

	a.log().Debug("opened archive", "archive", name, "format", a.format, "version", a.version, "entries", len(a.keys))
	return a, nil
}

// Name returns the name the archive was opened with.
func (a *Archive) Name() string { return a.name }

// Format returns the container format.
func (a *Archive) Format() Format { return a.format }

// Version returns the container version field.
func (a *Archive) Version() uint32 { return a.version }

// Len returns the number of distinct entries.
func (a *Archive) Len() int { return len(a.keys) }

// Entries returns the entry keys in folded order.
// The sequence can be iterated any number of times.
func (a *Archive) Entries() iter.Seq[pathkey.Key] {
	return func(yield func(pathkey.Key) bool) {
		for _, k := range a.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Contains reports whether key names an entry.
func (a *Archive) Contains(key pathkey.Key) bool {
	_, ok := a.records[key.String()]
	return ok
}

// Stat returns metadata for an entry.
func (a *Archive) Stat(key pathkey.Key) (EntryInfo, error) {
	rec, ok := a.records[key.String()]
	if !ok {
		return EntryInfo{}, &ArchiveError{Op: "stat", Archive: a.name, Entry: key.Display(), Kind: ErrEntryMissing}
	}
	info := EntryInfo{Key: rec.key}
	for _, c := range rec.chunks {
		info.StoredSize += uint64(c.packed)
		if c.codec != codecNone {
			info.Compressed = true
		}
	}
	return info, nil
}

// Read returns the decoded bytes of an entry.
func (a *Archive) Read(key pathkey.Key) ([]byte, error) {
	rec, ok := a.records[key.String()]
	if !ok {
		return nil, &ArchiveError{Op: "read", Archive: a.name, Entry: key.Display(), Kind: ErrEntryMissing}
	}

	var out []byte
	for i, c := range rec.chunks {
		data, err := a.readChunk(c)
		if err != nil {
			kind := ErrArchiveCorrupt
			if errors.Is(err, ErrEntryTooLarge) {
				kind = ErrEntryTooLarge
			}
			return nil, &ArchiveError{Op: "read", Archive: a.name, Entry: rec.key.Display(), Kind: kind, Err: fmt.Errorf("chunk %d: %w", i, err)}
		}
		if len(rec.chunks) == 1 {
			return data, nil
		}
		out = append(out, data...)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// Open returns a reader over the decoded bytes of an entry.
func (a *Archive) Open(key pathkey.Key) (io.ReadCloser, error) {
	data, err := a.Read(key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Close releases the underlying file when the archive was opened by path.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func (a *Archive) readChunk(c chunk) ([]byte, error) {
	raw, err := a.src.readFull(c.offset, int64(c.packed))
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %d: %w", c.packed, c.offset, err)
	}

	if c.embeddedName {
		if len(raw) < 1 || len(raw) < 1+int(raw[0]) {
			return nil, errors.New("truncated embedded name")
		}
		raw = raw[1+int(raw[0]):]
	}

	size := c.unpacked
	if c.codec == codecNone {
		size = uint32(len(raw)) //nolint:gosec // bounded by packed size
	} else if c.sizePrefix {
		if len(raw) < 4 {
			return nil, errors.New("truncated size prefix")
		}
		size = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		raw = raw[4:]
	}
	if a.maxEntrySize > 0 && uint64(size) > a.maxEntrySize {
		return nil, fmt.Errorf("%w: %d > %d", ErrEntryTooLarge, size, a.maxEntrySize)
	}
	return a.pool.decode(c.codec, raw, size)
}

func (a *Archive) addRecord(recs []*record, name string, chunks ...chunk) []*record {
	key, err := pathkey.Normalize(name)
	if err != nil {
		a.log().Warn("skipping archive entry with invalid name", "archive", a.name, "entry", name, "error", err)
		return recs
	}
	return append(recs, &record{key: key, chunks: chunks})
}
