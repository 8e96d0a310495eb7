package filterconfig

import (
	"os"
	"testing"

	rdb "github.com/rdbstream/rdbview"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesDocument(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/filter.yaml"
	require.NoError(t, os.WriteFile(path, []byte("databases: [0, 2]\ntypes: [string, hash]\nkeyPattern: \"^session:\"\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	require.True(t, f.MatchesDB(0))
	require.False(t, f.MatchesDB(1))
	require.True(t, f.MatchesType(rdb.TypeString))
	require.False(t, f.MatchesType(rdb.TypeList))
	require.True(t, f.MatchesKey("session:1"))
	require.False(t, f.MatchesKey("other:1"))
}

func TestLoadRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/filter.yaml"
	require.NoError(t, os.WriteFile(path, []byte("types: [bogus]\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestFromDocumentFieldsEmpty(t *testing.T) {
	f, err := FromDocumentFields(nil, nil, "")
	require.NoError(t, err)
	require.True(t, f.MatchesDB(7))
	require.True(t, f.MatchesType(rdb.TypeHash))
	require.True(t, f.MatchesKey("anything"))
}
