package sink

import (
	"bytes"
	"strings"
	"testing"

	rdb "github.com/rdbstream/rdbview"
	"github.com/stretchr/testify/require"
)

func TestJSONSinkEmitsOneRecordPerKey(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSON(&buf)

	require.NoError(t, j.StartDatabase(0))
	require.NoError(t, j.HandleString("greeting", "hello"))

	h := j.HashEntryHandler("profile")
	require.NoError(t, h("name", "ada"))
	require.NoError(t, h("role", "engineer"))

	// starting a different key flushes "profile" before it appears.
	require.NoError(t, j.HandleString("other", "x"))
	require.NoError(t, j.EndDatabase(0, 3, 0))
	require.NoError(t, j.EndRDB(true))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Contains(t, out, `"greeting"`)
	require.Contains(t, out, `"profile"`)
	require.Contains(t, out, `"engineer"`)
	require.True(t, len(lines) >= 5) // start_db, greeting, profile, other, end_db, end_rdb
}

func TestPlainSinkWritesAlignedLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)

	require.NoError(t, p.HandleString("k", "v"))
	lst := p.ListEntryHandler("mylist")
	require.NoError(t, lst("a"))
	require.NoError(t, lst("b"))
	require.NoError(t, p.EndRDB(true))

	out := buf.String()
	require.Contains(t, out, "k")
	require.Contains(t, out, "v")
	require.Contains(t, out, "mylist[0]")
	require.Contains(t, out, "mylist[1]")
}

func TestProtocolSinkEmitsRestoreCommands(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocolWriter(&buf)

	require.NoError(t, p.HandleString("k", "v"))
	require.NoError(t, p.EndDatabase(0, 1, 0))
	require.NoError(t, p.EndRDB(true))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "*"))
	require.Contains(t, out, "RESTORE")
	require.Contains(t, out, "REPLACE")
	require.Contains(t, out, "k")
}

func TestProtocolSinkSkipsStreamsAndModules(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocolWriter(&buf)

	require.NoError(t, p.HandleModule("doc", `{"a":1}`, rdb.JSONModuleMarker))
	p.HandleStreamEnding("events", 0)
	require.NoError(t, p.EndRDB(true))

	require.Equal(t, []string{"doc", "events"}, p.Skipped)
	require.Empty(t, buf.String())
}

func TestDiscardSinkIgnoresEverything(t *testing.T) {
	h := Discard()
	require.NoError(t, h.HandleString("k", "v"))
	require.NoError(t, h.StartRDB(12))
	require.NoError(t, h.EndRDB(true))
}
