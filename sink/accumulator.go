package sink

import (
	"time"

	rdb "github.com/rdbstream/rdbview"
)

// pendingValue buffers everything decoded for one key. The ValueHandler
// contract has no "value finished" event for strings, hashes or module
// values (only lists/zsets/streams get an explicit ending call), so a sink
// that needs the complete value - to emit one JSON object or one RESTORE
// command per key - has to notice completion indirectly: either a
// different key starts, or the owning database ends.
type pendingValue struct {
	key     string
	kind    rdb.CanonicalType
	str     string
	list    []string
	set     []string
	members []string
	scores  []float64
	hash    map[string]string
	hashTTL map[string]uint64
	module  string
	isMod   bool
	stream  []rdb.StreamEntry
	groups  []rdb.StreamConsumerGroup
	isStrm  bool
	ttl     time.Duration
	hasTTL  bool
}

// accumulator drives the buffer-until-next-key state machine shared by the
// JSON and protocol sinks.
type accumulator struct {
	pending *pendingValue
	flush   func(pendingValue)
}

func newAccumulator(flush func(pendingValue)) *accumulator {
	return &accumulator{flush: flush}
}

// start returns the pending value for key, flushing whatever was pending
// under a different key first, and allocating a fresh one if needed.
func (a *accumulator) start(key string, kind rdb.CanonicalType) *pendingValue {
	a.flushIfDifferentKey(key)
	if a.pending == nil {
		a.pending = &pendingValue{key: key, kind: kind}
	}
	return a.pending
}

func (a *accumulator) flushIfDifferentKey(key string) {
	if a.pending != nil && a.pending.key != key {
		a.flush(*a.pending)
		a.pending = nil
	}
}

func (a *accumulator) expireTime(key string, ttl time.Duration) {
	if a.pending != nil && a.pending.key == key {
		a.pending.ttl = ttl
		a.pending.hasTTL = true
	}
}

// endDatabase flushes whatever is still pending. Called on both
// EndDatabase and EndRDB so the final key of a database is never dropped.
func (a *accumulator) endDatabase() {
	if a.pending != nil {
		a.flush(*a.pending)
		a.pending = nil
	}
}
