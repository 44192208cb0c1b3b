package bsa

import (
	"encoding/binary"
	"fmt"
)

// tes3Magic is the version field of a Morrowind archive, which doubles as
// its magic number.
var tes3Magic = [4]byte{0x00, 0x01, 0x00, 0x00}

const tes3HeaderSize = 12

// readTES3 parses a Morrowind archive.
//
// Layout: header (version, hash table offset, file count), file records
// (size, offset), name offsets, NUL-terminated names, name hashes, data.
// Record offsets are relative to the start of the data section.
func (a *Archive) readTES3() ([]*record, error) {
	hdr := a.src.section(4)
	hashOffset := hdr.u32()
	count := hdr.u32()
	if hdr.err != nil {
		return nil, fmt.Errorf("header: %w", hdr.err)
	}
	a.version = 0x100

	recordsSize := int64(count) * 12
	if int64(hashOffset) < recordsSize {
		return nil, fmt.Errorf("hash table offset %d inside %d file records", hashOffset, count)
	}
	dataStart := tes3HeaderSize + int64(hashOffset) + int64(count)*8
	if dataStart > a.src.size {
		return nil, fmt.Errorf("data section starts at %d past end of %d byte file", dataStart, a.src.size)
	}

	table, err := a.src.readFull(tes3HeaderSize, int64(hashOffset))
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	sizes := table[:count*8]
	nameOffsets := table[count*8 : count*12]
	names := table[count*12:]

	recs := make([]*record, 0, count)
	for i := range count {
		size := binary.LittleEndian.Uint32(sizes[i*8:])
		offset := binary.LittleEndian.Uint32(sizes[i*8+4:])
		nameOff := binary.LittleEndian.Uint32(nameOffsets[i*4:])
		if int(nameOff) >= len(names) {
			return nil, fmt.Errorf("file %d: name offset %d out of range", i, nameOff)
		}
		abs := dataStart + int64(offset)
		if abs+int64(size) > a.src.size {
			return nil, fmt.Errorf("file %d: data at %d+%d past end of file", i, abs, size)
		}
		recs = a.addRecord(recs, cstring(names[nameOff:]), chunk{
			offset: abs,
			packed: size,
		})
	}
	return recs, nil
}
