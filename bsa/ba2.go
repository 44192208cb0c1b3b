package bsa

import (
	"fmt"
)

var ba2Magic = [4]byte{'B', 'T', 'D', 'X'}

// BA2 archive types.
var (
	ba2General  = [4]byte{'G', 'N', 'R', 'L'}
	ba2Textures = [4]byte{'D', 'X', '1', '0'}
)

const (
	ba2Sentinel         = 0xBAADF00D
	ba2CompressionLZ4   = 3
	ba2MinRecordSize    = 24
	ba2MaxNameTableSize = 64 << 20
)

// readBA2 parses a Fallout 4 or Starfield archive.
//
// Layout: header, file records (one fixed record for general archives, a
// texture header followed by chunk records for texture archives), data, and
// a trailing name table of u16-length-prefixed paths.
func (a *Archive) readBA2() ([]*record, error) {
	r := a.src.section(4)
	version := r.u32()
	kind := [4]byte(r.bytes(4))
	count := r.u32()
	nameTableOffset := r.u64()
	if r.err != nil {
		return nil, fmt.Errorf("header: %w", r.err)
	}
	a.version = version
	if int64(count)*ba2MinRecordSize > a.src.size {
		return nil, fmt.Errorf("%d file records cannot fit in %d bytes", count, a.src.size)
	}

	comp := codecZlib
	switch version {
	case 1, 7, 8:
	case 2:
		r.u64()
	case 3:
		r.u64()
		if r.u32() == ba2CompressionLZ4 {
			comp = codecLZ4Block
		}
	default:
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	if r.err != nil {
		return nil, fmt.Errorf("header: %w", r.err)
	}

	var chunks [][]chunk
	var err error
	switch kind {
	case ba2General:
		chunks, err = readBA2General(r, count, comp)
	case ba2Textures:
		chunks, err = readBA2Textures(r, count, comp)
	default:
		return nil, fmt.Errorf("unsupported archive type %q", kind[:])
	}
	if err != nil {
		return nil, err
	}
	for i, cs := range chunks {
		for _, c := range cs {
			if c.offset+int64(c.packed) > a.src.size {
				return nil, fmt.Errorf("file %d: data at %d+%d past end of file", i, c.offset, c.packed)
			}
		}
	}

	if nameTableOffset == 0 || int64(nameTableOffset) >= a.src.size { //nolint:gosec // compared against file size
		return nil, fmt.Errorf("name table offset %d out of range", nameTableOffset)
	}
	if a.src.size-int64(nameTableOffset) > ba2MaxNameTableSize { //nolint:gosec // checked above
		return nil, fmt.Errorf("name table larger than %d bytes", ba2MaxNameTableSize)
	}
	names := a.src.section(int64(nameTableOffset)) //nolint:gosec // checked above
	recs := make([]*record, 0, count)
	for i := range chunks {
		n := names.u16()
		name := string(names.bytes(int(n)))
		if names.err != nil {
			return nil, fmt.Errorf("name %d: %w", i, names.err)
		}
		recs = a.addRecord(recs, name, chunks[i]...)
	}
	return recs, nil
}

func readBA2General(r *leReader, count uint32, comp codec) ([][]chunk, error) {
	out := make([][]chunk, 0, count)
	for i := range count {
		r.u32()   // name hash
		r.skip(4) // extension
		r.u32()   // directory hash
		r.u32()   // flags
		offset := r.u64()
		packed := r.u32()
		unpacked := r.u32()
		sentinel := r.u32()
		if r.err != nil {
			return nil, fmt.Errorf("file record %d: %w", i, r.err)
		}
		if sentinel != ba2Sentinel {
			return nil, fmt.Errorf("file record %d: bad sentinel %#x", i, sentinel)
		}
		out = append(out, []chunk{ba2Chunk(offset, packed, unpacked, comp)})
	}
	return out, nil
}

func readBA2Textures(r *leReader, count uint32, comp codec) ([][]chunk, error) {
	out := make([][]chunk, 0, count)
	for i := range count {
		r.u32()   // name hash
		r.skip(4) // extension
		r.u32()   // directory hash
		r.u8()
		numChunks := r.u8()
		r.u16()   // chunk header size
		r.skip(8) // height, width, mips, format, cubemap, tile mode
		cs := make([]chunk, 0, numChunks)
		for range numChunks {
			offset := r.u64()
			packed := r.u32()
			unpacked := r.u32()
			r.u16() // start mip
			r.u16() // end mip
			sentinel := r.u32()
			if r.err == nil && sentinel != ba2Sentinel {
				return nil, fmt.Errorf("texture %d: bad chunk sentinel %#x", i, sentinel)
			}
			cs = append(cs, ba2Chunk(offset, packed, unpacked, comp))
		}
		if r.err != nil {
			return nil, fmt.Errorf("texture record %d: %w", i, r.err)
		}
		out = append(out, cs)
	}
	return out, nil
}

// ba2Chunk builds a chunk; a packed size of zero means stored uncompressed.
func ba2Chunk(offset uint64, packed, unpacked uint32, comp codec) chunk {
	if packed == 0 {
		return chunk{offset: int64(offset), packed: unpacked, unpacked: unpacked} //nolint:gosec // bounds checked by caller
	}
	return chunk{offset: int64(offset), packed: packed, unpacked: unpacked, codec: comp} //nolint:gosec // bounds checked by caller
}
