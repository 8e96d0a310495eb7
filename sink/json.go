package sink

import (
	"fmt"
	"io"
	"time"

	rdb "github.com/rdbstream/rdbview"

	"github.com/ohler55/ojg/oj"
)

// JSON writes one newline-delimited JSON object per key, plus sibling
// "event" lines for database boundaries. It buffers a key's entries until
// the key is known complete (see accumulator) so every record is a single
// JSON object rather than one line per element.
type JSON struct {
	rdb.DiscardHandler
	w   io.Writer
	acc *accumulator
}

func NewJSON(w io.Writer) *JSON {
	j := &JSON{w: w}
	j.acc = newAccumulator(j.writeRecord)
	return j
}

func (j *JSON) AllowPartialRead() bool { return true }

func (j *JSON) StartDatabase(db uint64) error {
	return j.writeLine(map[string]any{"event": "start_database", "db": db})
}

func (j *JSON) EndDatabase(db uint64, dbSize, expiresSize uint64) error {
	j.acc.endDatabase()
	return j.writeLine(map[string]any{
		"event": "end_database", "db": db, "size": dbSize, "expires": expiresSize,
	})
}

func (j *JSON) EndRDB(checksumValid bool) error {
	j.acc.endDatabase()
	return j.writeLine(map[string]any{"event": "end_rdb", "checksum_valid": checksumValid})
}

func (j *JSON) HandleExpireTime(key string, expireTime time.Duration) error {
	j.acc.expireTime(key, expireTime)
	return nil
}

func (j *JSON) HandleString(key, value string) error {
	j.acc.start(key, rdb.CanonicalString).str = value
	return nil
}

func (j *JSON) ListEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		p := j.acc.start(key, rdb.CanonicalList)
		p.list = append(p.list, elem)
		return nil
	}
}

func (j *JSON) SetEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		p := j.acc.start(key, rdb.CanonicalSet)
		p.set = append(p.set, elem)
		return nil
	}
}

func (j *JSON) ZsetEntryHandler(key string) func(elem string, score float64) error {
	return func(elem string, score float64) error {
		p := j.acc.start(key, rdb.CanonicalSortedSet)
		p.members = append(p.members, elem)
		p.scores = append(p.scores, score)
		return nil
	}
}

func (j *JSON) HashEntryHandler(key string) func(field, value string) error {
	return func(field, value string) error {
		p := j.acc.start(key, rdb.CanonicalHash)
		if p.hash == nil {
			p.hash = make(map[string]string)
		}
		p.hash[field] = value
		return nil
	}
}

func (j *JSON) HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error {
	return func(field, value string, ttl uint64) error {
		p := j.acc.start(key, rdb.CanonicalHash)
		if p.hash == nil {
			p.hash = make(map[string]string)
			p.hashTTL = make(map[string]uint64)
		}
		p.hash[field] = value
		if ttl != 0 {
			p.hashTTL[field] = ttl
		}
		return nil
	}
}

func (j *JSON) HandleModule(key, value string, marker rdb.ModuleMarker) error {
	p := j.acc.start(key, 0)
	p.isMod = true
	p.module = value
	return nil
}

func (j *JSON) StreamEntryHandler(key string) func(entry rdb.StreamEntry) error {
	return func(entry rdb.StreamEntry) error {
		p := j.acc.start(key, 0)
		p.isStrm = true
		p.stream = append(p.stream, entry)
		return nil
	}
}

func (j *JSON) StreamGroupHandler(key string) func(group rdb.StreamConsumerGroup) error {
	return func(group rdb.StreamConsumerGroup) error {
		p := j.acc.start(key, 0)
		p.isStrm = true
		p.groups = append(p.groups, group)
		return nil
	}
}

func (j *JSON) writeRecord(p pendingValue) {
	record := map[string]any{"event": "key", "key": p.key}
	if p.hasTTL {
		record["ttl_ms"] = p.ttl.Milliseconds()
	}

	switch {
	case p.isMod:
		record["type"] = "module"
		record["value"] = p.module
	case p.isStrm:
		record["type"] = "stream"
		record["entries"] = streamEntriesToJSON(p.stream)
		record["groups"] = streamGroupsToJSON(p.groups)
	case p.hash != nil:
		record["type"] = "hash"
		record["value"] = p.hash
		if len(p.hashTTL) > 0 {
			record["field_ttl_ms"] = p.hashTTL
		}
	case p.list != nil:
		record["type"] = "list"
		record["value"] = p.list
	case p.set != nil:
		record["type"] = "set"
		record["value"] = p.set
	case p.members != nil:
		record["type"] = "sortedset"
		record["members"] = p.members
		record["scores"] = p.scores
	default:
		record["type"] = "string"
		record["value"] = p.str
	}

	_ = j.writeLine(record)
}

func (j *JSON) writeLine(v any) error {
	_, err := fmt.Fprintln(j.w, oj.JSON(v))
	return err
}

func streamEntriesToJSON(entries []rdb.StreamEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":    fmt.Sprintf("%d-%d", e.ID.Millis, e.ID.Seq),
			"value": e.Value,
		})
	}
	return out
}

func streamGroupsToJSON(groups []rdb.StreamConsumerGroup) []map[string]any {
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]any{
			"name":         g.Name,
			"last_id":      fmt.Sprintf("%d-%d", g.LastID.Millis, g.LastID.Seq),
			"entries_read": g.EntriesRead,
		})
	}
	return out
}
