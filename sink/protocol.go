package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	rdb "github.com/rdbstream/rdbview"
	"github.com/rdbstream/rdbview/dump"

	"github.com/redis/go-redis/v9"
)

// Protocol re-serializes every decoded value with the dump encoder and
// either writes it as a RESP RESTORE command to an io.Writer, or issues it
// live against a go-redis client. Streams and module values have no
// canonical shape the dump encoder understands (it only knows the five
// canonical types, see dump.Encoder), so they are skipped; every skip is
// reported to Skipped for the caller to log.
type Protocol struct {
	rdb.DiscardHandler
	acc     *accumulator
	encoder dump.Encoder

	writer io.Writer
	client *redis.Client
	ctx    context.Context

	Skipped []string
	err     error
}

// NewProtocolWriter writes RESTORE commands in RESP wire format to w.
func NewProtocolWriter(w io.Writer) *Protocol {
	p := &Protocol{writer: w}
	p.acc = newAccumulator(p.flush)
	return p
}

// NewProtocolClient issues RESTORE commands live against client.
func NewProtocolClient(ctx context.Context, client *redis.Client) *Protocol {
	p := &Protocol{client: client, ctx: ctx}
	p.acc = newAccumulator(p.flush)
	return p
}

func (p *Protocol) AllowPartialRead() bool { return true }

func (p *Protocol) EndDatabase(db uint64, dbSize, expiresSize uint64) error {
	p.acc.endDatabase()
	return p.err
}

func (p *Protocol) EndRDB(checksumValid bool) error {
	p.acc.endDatabase()
	return p.err
}

func (p *Protocol) HandleExpireTime(key string, expireTime time.Duration) error {
	p.acc.expireTime(key, expireTime)
	return nil
}

func (p *Protocol) HandleString(key, value string) error {
	p.acc.start(key, rdb.CanonicalString).str = value
	return nil
}

func (p *Protocol) ListEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		v := p.acc.start(key, rdb.CanonicalList)
		v.list = append(v.list, elem)
		return nil
	}
}

func (p *Protocol) SetEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		v := p.acc.start(key, rdb.CanonicalSet)
		v.set = append(v.set, elem)
		return nil
	}
}

func (p *Protocol) ZsetEntryHandler(key string) func(elem string, score float64) error {
	return func(elem string, score float64) error {
		v := p.acc.start(key, rdb.CanonicalSortedSet)
		v.members = append(v.members, elem)
		v.scores = append(v.scores, score)
		return nil
	}
}

func (p *Protocol) HashEntryHandler(key string) func(field, value string) error {
	return func(field, value string) error {
		v := p.acc.start(key, rdb.CanonicalHash)
		if v.hash == nil {
			v.hash = make(map[string]string)
		}
		v.hash[field] = value
		return nil
	}
}

func (p *Protocol) HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error {
	return func(field, value string, ttl uint64) error {
		v := p.acc.start(key, rdb.CanonicalHash)
		if v.hash == nil {
			v.hash = make(map[string]string)
		}
		v.hash[field] = value
		return nil
	}
}

func (p *Protocol) HandleModule(key, value string, marker rdb.ModuleMarker) error {
	p.acc.flushIfDifferentKey(key)
	p.Skipped = append(p.Skipped, key)
	return nil
}

func (p *Protocol) StreamEntryHandler(key string) func(entry rdb.StreamEntry) error {
	return func(entry rdb.StreamEntry) error {
		p.acc.flushIfDifferentKey(key)
		return nil
	}
}

func (p *Protocol) HandleStreamEnding(key string, entriesRead uint64) {
	p.acc.flushIfDifferentKey(key)
	p.Skipped = append(p.Skipped, key)
}

func (p *Protocol) flush(v pendingValue) {
	if p.err != nil {
		return
	}

	payload, err := p.encode(v)
	if err != nil {
		p.err = fmt.Errorf("encoding %q: %w", v.key, err)
		return
	}
	if payload == nil {
		p.Skipped = append(p.Skipped, v.key)
		return
	}

	ttl := int64(0)
	if v.hasTTL {
		ttl = v.ttl.Milliseconds()
		if ttl < 0 {
			ttl = 0
		}
	}

	if p.client != nil {
		p.err = p.client.RestoreReplace(p.ctx, v.key, time.Duration(ttl)*time.Millisecond, string(payload)).Err()
		return
	}

	p.err = writeRestoreCommand(p.writer, v.key, ttl, payload)
}

func (p *Protocol) encode(v pendingValue) ([]byte, error) {
	switch {
	case v.hash != nil:
		return p.encoder.Hash(v.hash)
	case v.list != nil:
		return p.encoder.List(v.list)
	case v.set != nil:
		return p.encoder.Set(v.set)
	case v.members != nil:
		return p.encoder.SortedSet(v.members, v.scores)
	case v.isMod, v.isStrm:
		return nil, nil
	default:
		return p.encoder.String(v.str)
	}
}

// writeRestoreCommand writes `RESTORE key ttl payload REPLACE` as a RESP
// array of bulk strings, the wire shape a redis-cli -x/--pipe style loader
// consumes directly.
func writeRestoreCommand(w io.Writer, key string, ttlMillis int64, payload []byte) error {
	var buf bytes.Buffer
	args := []string{"RESTORE", key, fmt.Sprintf("%d", ttlMillis)}
	fmt.Fprintf(&buf, "*%d\r\n", len(args)+2)
	for _, a := range args {
		writeBulkString(&buf, a)
	}
	writeBulkBytes(&buf, payload)
	writeBulkString(&buf, "REPLACE")

	_, err := w.Write(buf.Bytes())
	return err
}

func writeBulkString(buf *bytes.Buffer, s string) {
	writeBulkBytes(buf, []byte(s))
}

func writeBulkBytes(buf *bytes.Buffer, b []byte) {
	fmt.Fprintf(buf, "$%d\r\n", len(b))
	buf.Write(b)
	buf.WriteString("\r\n")
}
