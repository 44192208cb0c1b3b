package testutil

import (
	"bytes"
	"encoding/binary"
	"slices"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// ArchiveFile is one entry written into a test archive.
// Name uses either separator style; Data is stored as given.
type ArchiveFile struct {
	Name string
	Data []byte
}

// leBuffer appends little-endian values.
type leBuffer struct {
	bytes.Buffer
}

func (b *leBuffer) u8(v uint8) { b.WriteByte(v) }

func (b *leBuffer) u16(v uint16) {
	b.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (b *leBuffer) u32(v uint32) {
	b.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (b *leBuffer) u64(v uint64) {
	b.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// TES3Archive builds a Morrowind archive. Name hashes are left zero; readers
// locate entries by name.
func TES3Archive(files []ArchiveFile) []byte {
	var names bytes.Buffer
	nameOffsets := make([]uint32, len(files))
	for i, f := range files {
		nameOffsets[i] = uint32(names.Len()) //nolint:gosec // test fixture sizes are small
		names.WriteString(strings.ReplaceAll(f.Name, "/", `\`))
		names.WriteByte(0)
	}

	count := uint32(len(files)) //nolint:gosec // test fixture sizes are small
	var out leBuffer
	out.u32(0x100)
	out.u32(count*12 + uint32(names.Len())) //nolint:gosec // test fixture sizes are small
	out.u32(count)

	var offset uint32
	for _, f := range files {
		out.u32(uint32(len(f.Data))) //nolint:gosec // test fixture sizes are small
		out.u32(offset)
		offset += uint32(len(f.Data)) //nolint:gosec // test fixture sizes are small
	}
	for _, off := range nameOffsets {
		out.u32(off)
	}
	out.Write(names.Bytes())
	for range files {
		out.u64(0)
	}
	for _, f := range files {
		out.Write(f.Data)
	}
	return out.Bytes()
}

// TES4Options controls TES4Archive output.
type TES4Options struct {
	// Version is 103, 104 or 105.
	Version uint32
	// Compress stores every entry compressed (zlib, or LZ4 frames for 105).
	Compress bool
	// EmbedNames prefixes each entry's data with its full path.
	EmbedNames bool
}

type tes4Folder struct {
	name  string
	files []ArchiveFile
}

// TES4Archive builds an Oblivion, Fallout 3 or Skyrim archive.
func TES4Archive(files []ArchiveFile, opts TES4Options) []byte {
	folders := groupFolders(files)

	folderRecSize := 16
	if opts.Version == 105 {
		folderRecSize = 24
	}
	var totalFolderNames, totalFileNames int
	for _, f := range folders {
		totalFolderNames += len(f.name) + 1
		for _, file := range f.files {
			totalFileNames += len(fileName(file.Name)) + 1
		}
	}
	fileCount := len(files)
	dirSize := 36 + len(folders)*folderRecSize + len(folders) + totalFolderNames + fileCount*16 + totalFileNames

	// Encode data blocks first so record sizes and offsets are known.
	var blocks [][]byte
	for _, f := range folders {
		for _, file := range f.files {
			var d bytes.Buffer
			if opts.EmbedNames && opts.Version != 103 {
				full := f.name + `\` + fileName(file.Name)
				d.WriteByte(byte(len(full)))
				d.WriteString(full)
			}
			if opts.Compress {
				d.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(file.Data)))) //nolint:gosec // test fixture sizes are small
				if opts.Version == 105 {
					d.Write(lz4Frame(file.Data))
				} else {
					d.Write(zlibBytes(file.Data))
				}
			} else {
				d.Write(file.Data)
			}
			blocks = append(blocks, d.Bytes())
		}
	}

	flags := uint32(0x1 | 0x2)
	if opts.Compress {
		flags |= 0x4
	}
	if opts.EmbedNames && opts.Version != 103 {
		flags |= 0x100
	}

	var out leBuffer
	out.Write([]byte{'B', 'S', 'A', 0})
	out.u32(opts.Version)
	out.u32(36)
	out.u32(flags)
	out.u32(uint32(len(folders)))     //nolint:gosec // test fixture sizes are small
	out.u32(uint32(fileCount))        //nolint:gosec // test fixture sizes are small
	out.u32(uint32(totalFolderNames)) //nolint:gosec // test fixture sizes are small
	out.u32(uint32(totalFileNames))   //nolint:gosec // test fixture sizes are small
	out.u16(0)
	out.u16(0)

	blockOffset := 36 + len(folders)*folderRecSize
	for _, f := range folders {
		out.u64(0)
		out.u32(uint32(len(f.files))) //nolint:gosec // test fixture sizes are small
		if opts.Version == 105 {
			out.u32(0)
			out.u64(uint64(blockOffset + totalFileNames)) //nolint:gosec // test fixture sizes are small
		} else {
			out.u32(uint32(blockOffset + totalFileNames)) //nolint:gosec // test fixture sizes are small
		}
		blockOffset += 1 + len(f.name) + 1 + len(f.files)*16
	}

	dataOffset := dirSize
	i := 0
	for _, f := range folders {
		out.u8(uint8(len(f.name) + 1)) //nolint:gosec // test fixture sizes are small
		out.WriteString(f.name)
		out.u8(0)
		for range f.files {
			out.u64(0)
			out.u32(uint32(len(blocks[i]))) //nolint:gosec // test fixture sizes are small
			out.u32(uint32(dataOffset))     //nolint:gosec // test fixture sizes are small
			dataOffset += len(blocks[i])
			i++
		}
	}
	for _, f := range folders {
		for _, file := range f.files {
			out.WriteString(fileName(file.Name))
			out.u8(0)
		}
	}
	for _, b := range blocks {
		out.Write(b)
	}
	return out.Bytes()
}

// BA2Archive builds a Fallout 4 general archive (version 1).
// When compress is set entries are zlib compressed.
func BA2Archive(files []ArchiveFile, compress bool) []byte {
	const headerSize, recordSize = 24, 36
	dataOffset := headerSize + len(files)*recordSize

	var records, data leBuffer
	for _, f := range files {
		stored := f.Data
		packed := uint32(0)
		if compress {
			stored = zlibBytes(f.Data)
			packed = uint32(len(stored)) //nolint:gosec // test fixture sizes are small
		}
		records.u32(0)
		records.Write(extension(f.Name))
		records.u32(0)
		records.u32(0)
		records.u64(uint64(dataOffset + data.Len())) //nolint:gosec // test fixture sizes are small
		records.u32(packed)
		records.u32(uint32(len(f.Data))) //nolint:gosec // test fixture sizes are small
		records.u32(0xBAADF00D)
		data.Write(stored)
	}
	return assembleBA2("GNRL", len(files), records.Bytes(), data.Bytes(), files)
}

// BA2TextureArchive builds a Fallout 4 texture archive (version 1) whose
// entries are split into zlib compressed chunks of at most chunkSize bytes.
func BA2TextureArchive(files []ArchiveFile, chunkSize int) []byte {
	const headerSize = 24
	recordsSize := 0
	chunked := make([][][]byte, len(files))
	for i, f := range files {
		for start := 0; start < len(f.Data); start += chunkSize {
			chunked[i] = append(chunked[i], f.Data[start:min(start+chunkSize, len(f.Data))])
		}
		recordsSize += 24 + 24*len(chunked[i])
	}
	dataOffset := headerSize + recordsSize

	var records, data leBuffer
	for i, f := range files {
		records.u32(0)
		records.Write(extension(f.Name))
		records.u32(0)
		records.u8(0)
		records.u8(uint8(len(chunked[i]))) //nolint:gosec // test fixture sizes are small
		records.u16(24)
		records.u16(4)
		records.u16(4)
		records.u8(1)
		records.u8(0)
		records.u8(0)
		records.u8(8)
		for _, part := range chunked[i] {
			packed := zlibBytes(part)
			records.u64(uint64(dataOffset + data.Len())) //nolint:gosec // test fixture sizes are small
			records.u32(uint32(len(packed)))             //nolint:gosec // test fixture sizes are small
			records.u32(uint32(len(part)))               //nolint:gosec // test fixture sizes are small
			records.u16(0)
			records.u16(0)
			records.u32(0xBAADF00D)
			data.Write(packed)
		}
	}
	return assembleBA2("DX10", len(files), records.Bytes(), data.Bytes(), files)
}

func assembleBA2(kind string, count int, records, data []byte, files []ArchiveFile) []byte {
	var out leBuffer
	out.WriteString("BTDX")
	out.u32(1)
	out.WriteString(kind)
	out.u32(uint32(count))                         //nolint:gosec // test fixture sizes are small
	out.u64(uint64(24 + len(records) + len(data))) //nolint:gosec // test fixture sizes are small
	out.Write(records)
	out.Write(data)
	for _, f := range files {
		name := strings.ReplaceAll(f.Name, "/", `\`)
		out.u16(uint16(len(name))) //nolint:gosec // test fixture sizes are small
		out.WriteString(name)
	}
	return out.Bytes()
}

func groupFolders(files []ArchiveFile) []tes4Folder {
	byName := make(map[string]*tes4Folder)
	var order []string
	for _, f := range files {
		dir := folderName(f.Name)
		folder, ok := byName[dir]
		if !ok {
			folder = &tes4Folder{name: dir}
			byName[dir] = folder
			order = append(order, dir)
		}
		folder.files = append(folder.files, f)
	}
	slices.Sort(order)
	out := make([]tes4Folder, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func folderName(name string) string {
	name = strings.ReplaceAll(name, "/", `\`)
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[:i]
	}
	return "."
}

func fileName(name string) string {
	name = strings.ReplaceAll(name, "/", `\`)
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func extension(name string) []byte {
	ext := make([]byte, 4)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		copy(ext, strings.ToLower(name[i+1:]))
	}
	return ext
}

func zlibBytes(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(data) //nolint:errcheck // writes to bytes.Buffer do not fail
	_ = w.Close()        //nolint:errcheck // writes to bytes.Buffer do not fail
	return buf.Bytes()
}

func lz4Frame(data []byte) []byte {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, _ = w.Write(data) //nolint:errcheck // writes to bytes.Buffer do not fail
	_ = w.Close()        //nolint:errcheck // writes to bytes.Buffer do not fail
	return buf.Bytes()
}
