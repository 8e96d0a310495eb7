package rdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeValue writes the type byte followed by whatever the given write
// callback produces, mirroring the <type><value> framing readObject expects.
func encodeValue(t *testing.T, typ Type, write func(w *Writer) error) []byte {
	t.Helper()
	w := NewWriter()
	require.NoError(t, w.WriteType(typ))
	require.NoError(t, write(w))
	return w.GetBuffer()
}

func TestWriterStringRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeString, func(w *Writer) error {
		return w.WriteString("hello")
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.Equal(t, "hello", h.strings["k"])
}

func TestWriterListRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeList, func(w *Writer) error {
		return w.WriteList([]string{"a", "b", "c"})
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.Equal(t, []string{"a", "b", "c"}, h.lists["k"])
}

func TestWriterSetRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeSet, func(w *Writer) error {
		return w.WriteSet([]string{"x", "y"})
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.ElementsMatch(t, []string{"x", "y"}, h.sets["k"])
}

func TestWriterZsetRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeZset2, func(w *Writer) error {
		return w.WriteZset([]string{"a", "b"}, []float64{1.5, 2.5})
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.ElementsMatch(t, []zsetEntry{{"a", 1.5}, {"b", 2.5}}, h.zsets["k"])
}

func TestWriterHashRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeHash, func(w *Writer) error {
		return w.WriteHash(map[string]string{"f1": "v1", "f2": "v2"})
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, h.hashes["k"])
}

func TestWriterJSONRoundTrip(t *testing.T) {
	payload := encodeValue(t, TypeModule2, func(w *Writer) error {
		return w.WriteJSON(`{"a":1}`)
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.JSONEq(t, `{"a":1}`, h.modules["k"])
}

func TestWriterStreamRoundTrip(t *testing.T) {
	stream := &Stream{
		Entries: []StreamEntry{
			{ID: StreamID{Millis: 1, Seq: 0}, Value: []string{"field", "value"}},
		},
		Length: 1,
		LastID: StreamID{Millis: 1, Seq: 0},
	}

	payload := encodeValue(t, TypeStreamListpacks, func(w *Writer) error {
		return w.WriteStream(stream)
	})

	h := newRecordingHandler()
	require.NoError(t, ReadValue("k", payload, h))
	require.Len(t, h.streams["k"], 1)
	require.Equal(t, []string{"field", "value"}, h.streams["k"][0].Value)
}

func TestWriterChecksum(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteType(TypeString))
	require.NoError(t, w.WriteString("abc"))

	preChecksum := append([]byte{}, w.GetBuffer()...)
	require.NoError(t, w.WriteChecksum(2))

	full := w.GetBuffer()
	require.True(t, len(full) > len(preChecksum))
	require.NoError(t, VerifyValueChecksum(full))
}
