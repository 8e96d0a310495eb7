package rdb

import (
	"time"
)

// recordingHandler captures every callback FileHandler/ValueHandler makes,
// for assertions in table-driven tests across this package.
type recordingHandler struct {
	startRDBVersion int
	dbs             []uint64
	dbEnds          []dbEnd
	rdbEndOK        *bool

	strings map[string]string
	lists   map[string][]string
	sets    map[string][]string
	zsets   map[string][]zsetEntry
	hashes  map[string]map[string]string
	hashTTL map[string]map[string]uint64
	modules map[string]string
	streams map[string][]StreamEntry

	expireTimes map[string]time.Duration
}

type dbEnd struct {
	db          uint64
	size        uint64
	expiresSize uint64
}

type zsetEntry struct {
	elem  string
	score float64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		strings:     make(map[string]string),
		lists:       make(map[string][]string),
		sets:        make(map[string][]string),
		zsets:       make(map[string][]zsetEntry),
		hashes:      make(map[string]map[string]string),
		hashTTL:     make(map[string]map[string]uint64),
		modules:     make(map[string]string),
		streams:     make(map[string][]StreamEntry),
		expireTimes: make(map[string]time.Duration),
	}
}

func (h *recordingHandler) AllowPartialRead() bool { return true }

func (h *recordingHandler) HandleString(key, value string) error {
	h.strings[key] = value
	return nil
}

func (h *recordingHandler) ListEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		h.lists[key] = append(h.lists[key], elem)
		return nil
	}
}

func (h *recordingHandler) HandleListEnding(key string, entriesRead uint64) {}

func (h *recordingHandler) SetEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		h.sets[key] = append(h.sets[key], elem)
		return nil
	}
}

func (h *recordingHandler) ZsetEntryHandler(key string) func(elem string, score float64) error {
	return func(elem string, score float64) error {
		h.zsets[key] = append(h.zsets[key], zsetEntry{elem, score})
		return nil
	}
}

func (h *recordingHandler) HandleZsetEnding(key string, entriesRead uint64) {}

func (h *recordingHandler) HashEntryHandler(key string) func(field, value string) error {
	if h.hashes[key] == nil {
		h.hashes[key] = make(map[string]string)
	}
	return func(field, value string) error {
		h.hashes[key][field] = value
		return nil
	}
}

func (h *recordingHandler) HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error {
	if h.hashes[key] == nil {
		h.hashes[key] = make(map[string]string)
	}
	if h.hashTTL[key] == nil {
		h.hashTTL[key] = make(map[string]uint64)
	}
	return func(field, value string, ttl uint64) error {
		h.hashes[key][field] = value
		h.hashTTL[key][field] = ttl
		return nil
	}
}

func (h *recordingHandler) HandleModule(key, value string, marker ModuleMarker) error {
	h.modules[key] = value
	return nil
}

func (h *recordingHandler) StreamEntryHandler(key string) func(entry StreamEntry) error {
	return func(entry StreamEntry) error {
		h.streams[key] = append(h.streams[key], entry)
		return nil
	}
}

func (h *recordingHandler) StreamGroupHandler(key string) func(group StreamConsumerGroup) error {
	return func(group StreamConsumerGroup) error { return nil }
}

func (h *recordingHandler) HandleStreamEnding(key string, entriesRead uint64) {}

func (h *recordingHandler) StartRDB(version int) error {
	h.startRDBVersion = version
	return nil
}

func (h *recordingHandler) StartDatabase(db uint64) error {
	h.dbs = append(h.dbs, db)
	return nil
}

func (h *recordingHandler) EndDatabase(db uint64, dbSize, expiresSize uint64) error {
	h.dbEnds = append(h.dbEnds, dbEnd{db, dbSize, expiresSize})
	return nil
}

func (h *recordingHandler) EndRDB(checksumValid bool) error {
	h.rdbEndOK = &checksumValid
	return nil
}

func (h *recordingHandler) HandleExpireTime(key string, expireTime time.Duration) error {
	h.expireTimes[key] = expireTime
	return nil
}
