package bsa

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"
)

// source provides random access to archive bytes.
//
// Readers that are not known to support concurrent ReadAt calls are guarded
// by a per-archive mutex.
type source struct {
	r    io.ReaderAt
	size int64
	mu   *sync.Mutex
}

func newSource(r io.ReaderAt, size int64, concurrent bool) *source {
	s := &source{r: r, size: size}
	if !concurrent && !concurrentSafe(r) {
		s.mu = new(sync.Mutex)
	}
	return s
}

func concurrentSafe(r io.ReaderAt) bool {
	switch r.(type) {
	case *os.File, *bytes.Reader, *strings.Reader:
		return true
	}
	return false
}

// ReadAt implements io.ReaderAt.
func (s *source) ReadAt(p []byte, off int64) (int, error) {
	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.r.ReadAt(p, off)
}

// readFull reads exactly n bytes at off.
func (s *source) readFull(off int64, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.size {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	read, err := s.ReadAt(buf, off)
	if int64(read) == n {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// section returns a buffered little-endian reader positioned at off.
func (s *source) section(off int64) *leReader {
	return &leReader{r: bufio.NewReader(io.NewSectionReader(s, off, s.size-off))}
}

// leReader decodes little-endian values and keeps the first error.
type leReader struct {
	r   *bufio.Reader
	buf [8]byte
	err error
}

func (l *leReader) fill(n int) []byte {
	if l.err != nil {
		return l.buf[:n]
	}
	if _, err := io.ReadFull(l.r, l.buf[:n]); err != nil {
		l.err = err
	}
	return l.buf[:n]
}

func (l *leReader) u8() uint8   { return l.fill(1)[0] }
func (l *leReader) u16() uint16 { return binary.LittleEndian.Uint16(l.fill(2)) }
func (l *leReader) u32() uint32 { return binary.LittleEndian.Uint32(l.fill(4)) }
func (l *leReader) u64() uint64 { return binary.LittleEndian.Uint64(l.fill(8)) }

func (l *leReader) bytes(n int) []byte {
	b := make([]byte, n)
	if l.err != nil {
		return b
	}
	if _, err := io.ReadFull(l.r, b); err != nil {
		l.err = err
	}
	return b
}

func (l *leReader) skip(n int) {
	if l.err != nil {
		return
	}
	if _, err := l.r.Discard(n); err != nil {
		l.err = err
	}
}

// cstring trims a NUL terminator and anything after it.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
