package dump

import (
	"testing"

	rdb "github.com/rdbstream/rdbview"
	"github.com/stretchr/testify/require"
)

func TestEncoderStringRoundTrip(t *testing.T) {
	var e Encoder
	payload, err := e.String("hello")
	require.NoError(t, err)
	require.NoError(t, rdb.VerifyValueChecksum(payload))

	// strip the 10-byte checksum trailer before handing the rest to VerifyValue.
	value := payload[:len(payload)-rdb.ValueChecksumSize]
	require.NoError(t, rdb.VerifyValue(value, rdb.VerifyValueOptions{}))
}

func TestEncoderHashRoundTrip(t *testing.T) {
	var e Encoder
	payload, err := e.Hash(map[string]string{"f1": "v1"})
	require.NoError(t, err)
	require.NoError(t, rdb.VerifyValueChecksum(payload))
}

func TestEncoderSortedSetRoundTrip(t *testing.T) {
	var e Encoder
	payload, err := e.SortedSet([]string{"a", "b"}, []float64{1, 2})
	require.NoError(t, err)
	require.NoError(t, rdb.VerifyValueChecksum(payload))
}
