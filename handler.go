package rdb

import "time"

// ValueHandler receives the decoded contents of a single RDB value. It is
// the formatter contract the top-level driver and the value-level decode
// entry point (ReadValue) both drive.
type ValueHandler interface {
	// whether the handler can skip known but not yet supported types or not.
	AllowPartialRead() bool

	// called when a string value is read for the key.
	HandleString(key, value string) error

	// returned function is called for the each enty read for the key.
	ListEntryHandler(key string) func(elem string) error

	// called when the list is read completely, with the name and the number of entries read.
	HandleListEnding(key string, entriesRead uint64)

	// returned function is called for the each enty read for the key.
	SetEntryHandler(key string) func(elem string) error

	// returned function is called for the each enty read for the key.
	ZsetEntryHandler(key string) func(elem string, score float64) error

	// called when the zset is read completely, with the name and the number of entries read.
	HandleZsetEnding(key string, entriesRead uint64)

	// returned function is called for the each enty read for the key.
	HashEntryHandler(key string) func(field, value string) error

	// returned function is called for each field of a hash entry that
	// carries a per-field TTL (HASH_METADATA, HASH_LISTPACK_EX). ttl is 0
	// when the field has no expiry, otherwise an absolute epoch-millisecond
	// timestamp.
	HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error

	// called when a module value is read for the key.
	HandleModule(key, value string, marker ModuleMarker) error

	// returned function is called for the each stream enty read for the key.
	StreamEntryHandler(key string) func(entry StreamEntry) error

	// returned function is called for the each stream group read for the key.
	StreamGroupHandler(key string) func(group StreamConsumerGroup) error

	// called when the stream entries and groups are read completely,
	// with the name and the number of entries read.
	HandleStreamEnding(key string, entriesRead uint64)
}

// FileHandler is an extension of ValueHandler driven by the top-level
// driver (ReadFile / Decode): it brackets every database and the whole
// source with start/end events, and carries expiration information that
// only exists alongside a key, never inside a bare value payload.
type FileHandler interface {
	ValueHandler

	// called once, right after the magic/version preamble is verified.
	StartRDB(version int) error

	// called whenever a SELECTDB opcode switches the active database.
	StartDatabase(db uint64) error

	// called when the active database changes again, or at EOF, with the
	// sizes the source's RESIZEDB opcode reported for it (0 if none was sent).
	EndDatabase(db uint64, dbSize, expiresSize uint64) error

	// called once the EOF opcode, and the trailing checksum if present,
	// have been consumed.
	EndRDB(checksumValid bool) error

	HandleExpireTime(key string, expireTime time.Duration) error
}

// DiscardHandler ignores every value it is handed. It is used both as the
// CLI's "nil" sink and, internally, as the skip path for keys the active
// Filter excludes: decoding into it walks exactly the same bytes decoding
// into a real handler would, without materializing anything.
type DiscardHandler struct{}

func (DiscardHandler) AllowPartialRead() bool { return true }

func (DiscardHandler) HandleString(key, value string) error { return nil }

func (DiscardHandler) ListEntryHandler(key string) func(elem string) error {
	return func(elem string) error { return nil }
}

func (DiscardHandler) HandleListEnding(key string, entriesRead uint64) {}

func (DiscardHandler) SetEntryHandler(key string) func(elem string) error {
	return func(elem string) error { return nil }
}

func (DiscardHandler) ZsetEntryHandler(key string) func(elem string, score float64) error {
	return func(elem string, score float64) error { return nil }
}

func (DiscardHandler) HandleZsetEnding(key string, entriesRead uint64) {}

func (DiscardHandler) HashEntryHandler(key string) func(field, value string) error {
	return func(field, value string) error { return nil }
}

func (DiscardHandler) HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error {
	return func(field, value string, ttl uint64) error { return nil }
}

func (DiscardHandler) HandleModule(key, value string, marker ModuleMarker) error { return nil }

func (DiscardHandler) StreamEntryHandler(key string) func(entry StreamEntry) error {
	return func(entry StreamEntry) error { return nil }
}

func (DiscardHandler) StreamGroupHandler(key string) func(group StreamConsumerGroup) error {
	return func(group StreamConsumerGroup) error { return nil }
}

func (DiscardHandler) HandleStreamEnding(key string, entriesRead uint64) {}

func (DiscardHandler) StartRDB(version int) error { return nil }

func (DiscardHandler) StartDatabase(db uint64) error { return nil }

func (DiscardHandler) EndDatabase(db uint64, dbSize, expiresSize uint64) error { return nil }

func (DiscardHandler) EndRDB(checksumValid bool) error { return nil }

func (DiscardHandler) HandleExpireTime(key string, expireTime time.Duration) error { return nil }
