package bsa

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

type codec uint8

const (
	codecNone codec = iota
	codecZlib
	codecLZ4Frame
	codecLZ4Block
)

func (c codec) String() string {
	switch c {
	case codecNone:
		return "none"
	case codecZlib:
		return "zlib"
	case codecLZ4Frame:
		return "lz4-frame"
	case codecLZ4Block:
		return "lz4-block"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// decompressPool manages reusable zlib and LZ4 frame readers so concurrent
// reads of one archive never share decoder state.
type decompressPool struct {
	zlib sync.Pool
	lz4  sync.Pool
}

func newDecompressPool() *decompressPool {
	return &decompressPool{}
}

// zlibDecoder is the reader type returned by zlib.NewReader.
type zlibDecoder interface {
	io.ReadCloser
	zlib.Resetter
}

// zlibReader returns a zlib reader over r and a release func that must be
// called when done. If an error is returned, no release is needed.
func (p *decompressPool) zlibReader(r io.Reader) (io.Reader, func(), error) {
	if zr, ok := p.zlib.Get().(zlibDecoder); ok {
		if err := zr.Reset(r, nil); err != nil {
			p.zlib.Put(zr)
			return nil, nil, err
		}
		return zr, func() { p.zlib.Put(zr) }, nil
	}
	rc, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	zr, ok := rc.(zlibDecoder)
	if !ok {
		return rc, func() {}, nil
	}
	return zr, func() { p.zlib.Put(zr) }, nil
}

func (p *decompressPool) lz4Reader(r io.Reader) (*lz4.Reader, func()) {
	if lr, ok := p.lz4.Get().(*lz4.Reader); ok {
		lr.Reset(r)
		return lr, func() { p.lz4.Put(lr) }
	}
	lr := lz4.NewReader(r)
	return lr, func() { p.lz4.Put(lr) }
}

// decode decompresses src into a buffer of exactly size bytes.
func (p *decompressPool) decode(c codec, src []byte, size uint32) ([]byte, error) {
	switch c {
	case codecNone:
		return src, nil
	case codecZlib:
		zr, release, err := p.zlibReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("zlib header: %w", err)
		}
		defer release()
		return readExact(zr, size)
	case codecLZ4Frame:
		lr, release := p.lz4Reader(bytes.NewReader(src))
		defer release()
		return readExact(lr, size)
	case codecLZ4Block:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 block: %w", err)
		}
		if n != int(size) {
			return nil, fmt.Errorf("lz4 block: decoded %d bytes, want %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %s", c)
	}
}

// readExact reads exactly size bytes and requires the stream to end there,
// which also makes the decoder verify its trailing checksum.
func readExact(r io.Reader, size uint32) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%d bytes expected: %w", size, err)
	}
	var probe [1]byte
	switch _, err := io.ReadFull(r, probe[:]); err {
	case io.EOF:
		return out, nil
	case nil:
		return nil, fmt.Errorf("stream longer than %d bytes", size)
	default:
		return nil, err
	}
}
