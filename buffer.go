package rdb

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// buffer is the minimal cursor a entryDecoder needs over its input: pull n
// bytes at a time, report how far in it is, and fork an independent cursor
// (a bufferView) over the same underlying data starting at some position.
// memSliceBuffer backs the in-memory paths (ReadValue, Decode);
// fileSpanBuffer backs ReadFile's streaming path over a whole snapshot file.
type buffer interface {
	Get(n int) ([]byte, error)
	Pos() int
	View(pos int) (bufferView, error)
}

// bufferView is a buffer forked from another one at some position. It owns
// whatever resources that fork needed (a reopened file descriptor, for
// fileSpanBuffer) and must be Closed once the caller is done with it.
type bufferView interface {
	buffer
	Close() error
}

// memSliceBuffer reads from an in-memory byte slice already fully resident,
// as when decoding a single value via ReadValue/Decode.
type memSliceBuffer struct {
	buf []byte
	len int
	pos int
}

func newMemSliceBuffer(buf []byte) *memSliceBuffer {
	return &memSliceBuffer{
		buf: buf,
		len: len(buf),
	}
}

func (b *memSliceBuffer) Get(n int) ([]byte, error) {
	if b.len < b.pos+n {
		return nil, io.ErrUnexpectedEOF
	}

	value := b.buf[b.pos : b.pos+n]
	b.pos += n
	return value, nil
}

func (b *memSliceBuffer) Pos() int {
	return b.pos
}

type memSliceBufferView struct {
	buf *memSliceBuffer
}

func (b *memSliceBuffer) View(pos int) (bufferView, error) {
	return &memSliceBufferView{
		buf: &memSliceBuffer{
			buf: b.buf,
			len: b.len,
			pos: pos,
		},
	}, nil
}

func (v *memSliceBufferView) Get(n int) ([]byte, error) {
	return v.buf.Get(n)
}

func (v *memSliceBufferView) Pos() int {
	return v.buf.Pos()
}

func (v *memSliceBufferView) View(pos int) (bufferView, error) {
	return nil, errors.New("cannot take a view of a view")
}

func (v *memSliceBufferView) Close() error {
	return nil
}

// fileSpanBuffer reads from an open *os.File in bufCap-sized chunks, as when
// streaming a whole snapshot through ReadFile without loading it all at once.
// It optionally accumulates a running CRC-64 over every byte it reads.
type fileSpanBuffer struct {
	file    *os.File
	fileLen int
	filePos int
	bufCap  int
	buf     []byte
	len     int
	pos     int
	calcCRC bool
	crc     uint64
}

func newFileSpanBuffer(file *os.File, fileLen int, bufCap int) *fileSpanBuffer {
	return &fileSpanBuffer{
		file:    file,
		fileLen: fileLen,
		bufCap:  bufCap,
		buf:     make([]byte, 0),
	}
}

func (b *fileSpanBuffer) Get(n int) ([]byte, error) {
	if b.fileLen < b.filePos+n {
		// we use the file pos as the source of truth
		return nil, io.ErrUnexpectedEOF
	}

	if b.len < b.pos+n {
		// there are enough bytes in the file, but not in the buffer.
		// we need to read some more bytes into buffer. after this call
		// it is guaranteed that b.pos + n <= b.len
		err := b.read(n)
		if err != nil {
			return nil, err
		}
	}

	value := b.buf[b.pos : b.pos+n]
	b.pos += n
	b.filePos += n
	return value, nil
}

func (b *fileSpanBuffer) Pos() int {
	return b.filePos
}

type fileSpanBufferView struct {
	file *os.File
	buf  *fileSpanBuffer
}

func (b *fileSpanBuffer) View(pos int) (bufferView, error) {
	// reopen the same file, and seek to the current position
	file, err := os.Open(b.file.Name())
	if err != nil {
		return nil, err
	}

	shouldSeek := int64(headerLen + pos)
	seek, err := file.Seek(shouldSeek, 0) // from the start
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	if seek != shouldSeek {
		_ = file.Close()
		return nil, fmt.Errorf("expected to seek %d, but it was %d", shouldSeek, seek)
	}

	buf := newFileSpanBuffer(file, b.fileLen, b.bufCap)
	buf.filePos = pos

	return &fileSpanBufferView{
		file: file,
		buf:  buf,
	}, nil
}

func (v *fileSpanBufferView) Get(n int) ([]byte, error) {
	return v.buf.Get(n)
}

func (v *fileSpanBufferView) Pos() int {
	return v.buf.Pos()
}

func (v *fileSpanBufferView) View(pos int) (bufferView, error) {
	return nil, errors.New("cannot take a view of a view")
}

func (v *fileSpanBufferView) Close() error {
	return v.file.Close()
}

// initCRC starts CRC-64 accumulation over payload (bytes already consumed
// before streaming began) and over every byte Get returns from here on.
func (b *fileSpanBuffer) initCRC(payload []byte) {
	b.calcCRC = true
	b.crc = getCRC(b.crc, payload)
}

// caller must guarantee that there are at least n bytes in the file starting
// at file pos, and there are not enough not-yet-read bytes in the buffer.
func (b *fileSpanBuffer) read(n int) error {
	remaining := b.len - b.pos // not-yet-read bytes in the buffer

	// Get hands out slices of b.buf that callers may turn into strings via
	// bytesToString/stringToBytes, which alias the backing array instead of
	// copying. Overwriting b.buf in place would retroactively mutate those
	// strings, so each refill allocates a fresh array instead.
	dst := make([]byte, max(b.bufCap, n)) // n might be >> bufCap
	copied := copy(dst, b.buf[b.pos:])    // carry forward the unread tail
	if copied != remaining {
		return fmt.Errorf("expected to copy %d bytes, but it was %d", remaining, copied)
	}
	b.buf = dst
	b.len = len(dst)
	b.pos = 0

	// we don't want to read more than the file len we know. there might
	// be more bytes after file len, but reading them would result
	// in a wrong CRC calculation.
	readLen := min(b.len, b.fileLen-b.filePos) - remaining
	read, err := b.file.Read(b.buf[remaining : remaining+readLen])
	if err != nil {
		return err
	}

	if read != readLen {
		return fmt.Errorf("expected to read %d bytes, but it was %d", readLen, read)
	}

	if b.calcCRC {
		b.crc = getCRC(b.crc, b.buf[remaining:remaining+readLen])
	}

	return nil
}
