package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// rawRDB assembles the smallest valid snapshot: header, one SELECTDB, one
// string key, EOF, zero checksum (checksum disabled).
func rawRDB(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("REDIS0012")
	buf.WriteByte(0xFE) // SELECTDB
	buf.WriteByte(0x00)
	buf.WriteByte(0x00) // string type
	buf.WriteByte(0x03)
	buf.WriteString("foo")
	buf.WriteByte(0x03)
	buf.WriteString("bar")
	buf.WriteByte(0xFF) // EOF
	buf.Write(make([]byte, 8))
	return buf.Bytes()
}

func writeTempRDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")
	require.NoError(t, os.WriteFile(path, rawRDB(t), 0o644))
	return path
}

func TestRunDecodesFileAsJSON(t *testing.T) {
	path := writeTempRDB(t)
	out := filepath.Join(t.TempDir(), "out.json")

	code := run([]string{"-f", "json", "-o", out, path})
	require.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), `"foo"`)
	require.Contains(t, string(data), `"bar"`)
}

func TestRunRejectsMissingArgs(t *testing.T) {
	code := run([]string{"-f", "json"})
	require.Equal(t, 2, code)
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	path := writeTempRDB(t)
	code := run([]string{"-f", "bogus", path})
	require.Equal(t, 2, code)
}

func TestRunFiltersByType(t *testing.T) {
	path := writeTempRDB(t)
	out := filepath.Join(t.TempDir(), "out.json")

	code := run([]string{"-f", "json", "-t", "hash", "-o", out, path})
	require.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(data), `"foo"`)
}

func TestRunDiscardFormat(t *testing.T) {
	path := writeTempRDB(t)
	code := run([]string{"-f", "nil", path})
	require.Equal(t, 0, code)
}
