package bsa

import (
	"fmt"
)

var tes4Magic = [4]byte{'B', 'S', 'A', 0}

// TES4 archive versions.
const (
	VersionOblivion = 103
	VersionFallout3 = 104 // also New Vegas and Skyrim LE
	VersionSkyrimSE = 105
)

// TES4 archive flags.
const (
	tes4DirNames     = 0x1
	tes4FileNames    = 0x2
	tes4Compressed   = 0x4
	tes4EmbedNames   = 0x100
	tes4SizeMask     = 0x3FFFFFFF
	tes4CompressFlip = 0x40000000
)

type tes4Folder struct {
	count uint32
}

// readTES4 parses an Oblivion, Fallout 3 or Skyrim archive.
//
// Layout: 36-byte header, folder records, per-folder blocks (name then file
// records), the file name table, data. The tables are read sequentially so
// the per-folder offset fields are not consulted.
func (a *Archive) readTES4() ([]*record, error) {
	r := a.src.section(4)
	version := r.u32()
	folderOffset := r.u32()
	flags := r.u32()
	folderCount := r.u32()
	fileCount := r.u32()
	r.u32() // total folder name length
	r.u32() // total file name length
	r.u16() // file flags
	r.u16()
	if r.err != nil {
		return nil, fmt.Errorf("header: %w", r.err)
	}
	a.version = version
	if int64(fileCount)*16+int64(folderCount)*16 > a.src.size {
		return nil, fmt.Errorf("%d folders and %d files cannot fit in %d bytes", folderCount, fileCount, a.src.size)
	}

	var comp codec
	switch version {
	case VersionOblivion, VersionFallout3:
		comp = codecZlib
	case VersionSkyrimSE:
		comp = codecLZ4Frame
	default:
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	if flags&tes4DirNames == 0 || flags&tes4FileNames == 0 {
		return nil, fmt.Errorf("archive flags %#x lack directory or file names", flags)
	}
	defaultCompressed := flags&tes4Compressed != 0
	embedNames := version != VersionOblivion && flags&tes4EmbedNames != 0

	r = a.src.section(int64(folderOffset))
	folders := make([]tes4Folder, folderCount)
	for i := range folders {
		r.u64() // name hash
		folders[i].count = r.u32()
		if version == VersionSkyrimSE {
			r.u32()
			r.u64()
		} else {
			r.u32()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("folder records: %w", r.err)
	}

	type pending struct {
		folder string
		size   uint32
		offset uint32
	}
	files := make([]pending, 0, fileCount)
	for _, f := range folders {
		nameLen := int(r.u8())
		folder := cstring(r.bytes(nameLen))
		for range f.count {
			r.u64() // name hash
			size := r.u32()
			offset := r.u32()
			files = append(files, pending{folder: folder, size: size, offset: offset})
		}
		if r.err != nil {
			return nil, fmt.Errorf("folder %q: %w", folder, r.err)
		}
	}
	if uint32(len(files)) != fileCount { //nolint:gosec // len is bounded by folder counts
		return nil, fmt.Errorf("folder records list %d files, header says %d", len(files), fileCount)
	}

	recs := make([]*record, 0, len(files))
	for i, f := range files {
		name := readCString(r)
		if r.err != nil {
			return nil, fmt.Errorf("file name %d: %w", i, r.err)
		}
		compressed := defaultCompressed
		if f.size&tes4CompressFlip != 0 {
			compressed = !compressed
		}
		stored := f.size & tes4SizeMask
		if int64(f.offset)+int64(stored) > a.src.size {
			return nil, fmt.Errorf("file %q: data at %d+%d past end of file", name, f.offset, stored)
		}
		c := chunk{
			offset:       int64(f.offset),
			packed:       stored,
			embeddedName: embedNames,
		}
		if compressed {
			c.codec = comp
			c.sizePrefix = true
		}
		path := name
		if f.folder != "" && f.folder != "." {
			path = f.folder + `\` + name
		}
		recs = a.addRecord(recs, path, c)
	}
	return recs, nil
}

func readCString(r *leReader) string {
	var b []byte
	for r.err == nil {
		c := r.u8()
		if r.err != nil || c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
