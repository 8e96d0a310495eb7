package rdb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackedBuffer(t *testing.T) {
	buf := newMemSliceBuffer([]byte("hello world"))

	got, err := buf.Get(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.Equal(t, 5, buf.Pos())

	view, err := buf.View(6)
	require.NoError(t, err)
	defer view.Close()

	got, err = view.Get(5)
	require.NoError(t, err)
	require.Equal(t, "world", string(got))

	// original buffer position is unaffected by the view.
	require.Equal(t, 5, buf.Pos())

	_, err = buf.Get(100)
	require.Error(t, err)
}

func TestMemoryBackedBufferViewOfViewFails(t *testing.T) {
	buf := newMemSliceBuffer([]byte("abc"))
	view, err := buf.View(0)
	require.NoError(t, err)

	_, err = view.View(1)
	require.Error(t, err)
}

func TestFileBackedBuffer(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/payload.bin"
	payload := []byte(magicStr + "0011" + "hello world, this is more than one chunk of data")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(headerLen, 0)
	require.NoError(t, err)

	fileLen := len(payload) - headerLen
	buf := newFileSpanBuffer(f, fileLen, 8) // tiny chunk size to force refills

	got, err := buf.Get(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	view, err := buf.View(6)
	require.NoError(t, err)
	defer view.Close()

	got, err = view.Get(5)
	require.NoError(t, err)
	require.Equal(t, "world", string(got))

	rest, err := buf.Get(fileLen - 5)
	require.NoError(t, err)
	require.Equal(t, " world, this is more than one chunk of data", string(rest))

	_, err = buf.Get(1)
	require.Error(t, err)
}

func TestFileBackedBufferCRC(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/crc.bin"
	header := []byte(magicStr + "0011")
	body := []byte("payload-bytes")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, header...), body...), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(headerLen, 0)
	require.NoError(t, err)

	buf := newFileSpanBuffer(f, len(body), 4)
	buf.initCRC(header)

	_, err = buf.Get(len(body))
	require.NoError(t, err)

	require.Equal(t, getCRC(0, append(append([]byte{}, header...), body...)), buf.crc)
}
