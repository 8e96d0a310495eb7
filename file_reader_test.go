package rdb

import (
	"encoding/binary"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// rdbBuilder hand-assembles the opcode stream ReadFile/Decode understand,
// byte by byte, since no fixture-generation tooling is available here.
type rdbBuilder struct {
	t   *testing.T
	buf []byte
}

func newRDBBuilder(t *testing.T) *rdbBuilder {
	return &rdbBuilder{t: t, buf: []byte(magicStr + "0012")}
}

func (b *rdbBuilder) raw(bs []byte) *rdbBuilder {
	b.buf = append(b.buf, bs...)
	return b
}

func (b *rdbBuilder) opcode(t Type) *rdbBuilder {
	return b.raw([]byte{byte(t)})
}

func (b *rdbBuilder) selectDB(n uint64) *rdbBuilder {
	w := NewWriter()
	require.NoError(b.t, w.writeLen(n))
	return b.opcode(typeOpCodeSelectDB).raw(w.GetBuffer())
}

func (b *rdbBuilder) resizeDB(dbSize, expiresSize uint64) *rdbBuilder {
	w := NewWriter()
	require.NoError(b.t, w.writeLen(dbSize))
	require.NoError(b.t, w.writeLen(expiresSize))
	return b.opcode(typeOpCodeResizeDB).raw(w.GetBuffer())
}

func (b *rdbBuilder) expireTimeMS(ms uint64) *rdbBuilder {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, ms)
	return b.opcode(typeOpCodeExpireTimeMS).raw(buf)
}

func (b *rdbBuilder) aux(key, value string) *rdbBuilder {
	w := NewWriter()
	require.NoError(b.t, w.WriteString(key))
	require.NoError(b.t, w.WriteString(value))
	return b.opcode(typeOpCodeAux).raw(w.GetBuffer())
}

// stringEntry appends a <type><key><value> entry of type TypeString.
func (b *rdbBuilder) stringEntry(key, value string) *rdbBuilder {
	w := NewWriter()
	require.NoError(b.t, w.WriteString(key))
	require.NoError(b.t, w.WriteString(value))
	return b.opcode(TypeString).raw(w.GetBuffer())
}

func (b *rdbBuilder) hashEntry(key string, fields map[string]string) *rdbBuilder {
	w := NewWriter()
	require.NoError(b.t, w.WriteString(key))
	require.NoError(b.t, w.WriteHash(fields))
	return b.opcode(TypeHash).raw(w.GetBuffer())
}

func (b *rdbBuilder) eof() *rdbBuilder {
	return b.opcode(typeOpCodeEOF)
}

// bytes returns everything written so far (header inclusive) without a CRC
// trailer, as fed to Decode for the no-checksum scenarios.
func (b *rdbBuilder) bytes() []byte {
	return append([]byte{}, b.buf...)
}

// bytesWithCRC appends a real CRC-64 trailer over everything written so far.
func (b *rdbBuilder) bytesWithCRC() []byte {
	crc := getCRC(0, b.buf)
	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint64(trailer, crc)
	return append(append([]byte{}, b.buf...), trailer...)
}

// bytesWithZeroCRC appends an all-zero trailer, as Redis does when checksum
// computation is disabled in its config.
func (b *rdbBuilder) bytesWithZeroCRC() []byte {
	return append(append([]byte{}, b.buf...), make([]byte, 8)...)
}

func (b *rdbBuilder) writeFile(path string) {
	require.NoError(b.t, os.WriteFile(path, b.bytesWithCRC(), 0o644))
}

func TestReadFileBasicStringEntry(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/basic.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.resizeDB(1, 0)
	b.stringEntry("greeting", "hello")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	require.NoError(t, ReadFile(path, DefaultFilter{}, h))
	require.Equal(t, "hello", h.strings["greeting"])
	require.Equal(t, []uint64{0}, h.dbs)
	require.Equal(t, dbEnd{0, 1, 0}, h.dbEnds[0])
	require.NotNil(t, h.rdbEndOK)
	require.True(t, *h.rdbEndOK)
}

func TestReadFileExpireTime(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/expire.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.expireTimeMS(1700000000000)
	b.stringEntry("k", "v")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	require.NoError(t, ReadFile(path, DefaultFilter{}, h))
	require.Equal(t, "v", h.strings["k"])
	require.Contains(t, h.expireTimes, "k")
}

func TestReadFileAuxFieldsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/aux.rdb"

	b := newRDBBuilder(t)
	b.aux("redis-ver", "7.2.0")
	b.selectDB(0)
	b.stringEntry("k", "v")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	require.NoError(t, ReadFile(path, DefaultFilter{}, h))
	require.Equal(t, "v", h.strings["k"])
}

func TestReadFileZeroCRCIsTreatedAsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nocrc.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k", "v")
	b.eof()
	require.NoError(t, os.WriteFile(path, b.bytesWithZeroCRC(), 0o644))

	h := newRecordingHandler()
	require.NoError(t, ReadFile(path, DefaultFilter{}, h))
	require.NotNil(t, h.rdbEndOK)
	require.True(t, *h.rdbEndOK)
}

func TestReadFileBadCRCFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/badcrc.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k", "v")
	b.eof()

	data := b.bytesWithCRC()
	data[len(data)-1] ^= 0xFF // corrupt the trailing CRC
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h := newRecordingHandler()
	err := ReadFile(path, DefaultFilter{}, h)
	require.Error(t, err)
}

func TestReadFileBadHeaderFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/badheader.rdb"
	require.NoError(t, os.WriteFile(path, []byte("NOTRDB0012"), 0o644))

	h := newRecordingHandler()
	err := ReadFile(path, DefaultFilter{}, h)
	require.Error(t, err)
}

func TestReadFileUnsupportedVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/badversion.rdb"
	require.NoError(t, os.WriteFile(path, []byte(magicStr+"9999"), 0o644))

	h := newRecordingHandler()
	err := ReadFile(path, DefaultFilter{}, h)
	require.Error(t, err)
}

func TestReadFileMultiDatabase(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/multidb.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k0", "v0")
	b.selectDB(1)
	b.stringEntry("k1", "v1")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	require.NoError(t, ReadFile(path, DefaultFilter{}, h))
	require.Equal(t, "v0", h.strings["k0"])
	require.Equal(t, "v1", h.strings["k1"])
	require.Equal(t, []uint64{0, 1}, h.dbs)
	require.Len(t, h.dbEnds, 2)
}

func TestReadFileFilterByDB(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/filterdb.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k0", "v0")
	b.selectDB(1)
	b.stringEntry("k1", "v1")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	filter := &ConfiguredFilter{DBs: []uint64{1}}
	require.NoError(t, ReadFile(path, filter, h))
	require.Empty(t, h.strings["k0"])
	require.Equal(t, "v1", h.strings["k1"])
}

func TestReadFileFilterByKeyPattern(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/filterkey.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("user:1", "a")
	b.stringEntry("session:1", "b")
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	filter := &ConfiguredFilter{KeyPattern: regexp.MustCompile("^user:")}
	require.NoError(t, ReadFile(path, filter, h))
	require.Equal(t, "a", h.strings["user:1"])
	require.NotContains(t, h.strings, "session:1")
}

func TestReadFileFilterByType(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/filtertype.rdb"

	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("str", "v")
	b.hashEntry("h", map[string]string{"f": "v"})
	b.eof()
	b.writeFile(path)

	h := newRecordingHandler()
	filter := &ConfiguredFilter{Types: []CanonicalType{CanonicalHash}}
	require.NoError(t, ReadFile(path, filter, h))
	require.NotContains(t, h.strings, "str")
	require.Equal(t, map[string]string{"f": "v"}, h.hashes["h"])
}

func TestDecodeMemoryBackedPayload(t *testing.T) {
	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k", "v")
	b.eof()

	h := newRecordingHandler()
	require.NoError(t, Decode(b.bytesWithCRC(), DefaultFilter{}, h))
	require.Equal(t, "v", h.strings["k"])
	require.True(t, *h.rdbEndOK)
}

func TestDecodeMemoryBackedPayloadZeroCRC(t *testing.T) {
	b := newRDBBuilder(t)
	b.selectDB(0)
	b.stringEntry("k", "v")
	b.eof()

	h := newRecordingHandler()
	require.NoError(t, Decode(b.bytesWithZeroCRC(), DefaultFilter{}, h))
	require.Equal(t, "v", h.strings["k"])
}
