package sink

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	rdb "github.com/rdbstream/rdbview"
)

// Plain is a redis-cli-flavored human-readable sink: one aligned line per
// element, written through a tabwriter so values line up in a column.
type Plain struct {
	rdb.DiscardHandler
	tw *tabwriter.Writer
}

func NewPlain(w io.Writer) *Plain {
	return &Plain{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (p *Plain) AllowPartialRead() bool { return true }

func (p *Plain) StartDatabase(db uint64) error {
	fmt.Fprintf(p.tw, "# database %d\n", db)
	return nil
}

func (p *Plain) HandleString(key, value string) error {
	fmt.Fprintf(p.tw, "%s\t->\t%s\n", key, value)
	return nil
}

func (p *Plain) ListEntryHandler(key string) func(elem string) error {
	i := 0
	return func(elem string) error {
		fmt.Fprintf(p.tw, "%s[%d]\t->\t%s\n", key, i, elem)
		i++
		return nil
	}
}

func (p *Plain) SetEntryHandler(key string) func(elem string) error {
	return func(elem string) error {
		fmt.Fprintf(p.tw, "%s\t->\t%s\n", key, elem)
		return nil
	}
}

func (p *Plain) ZsetEntryHandler(key string) func(elem string, score float64) error {
	return func(elem string, score float64) error {
		fmt.Fprintf(p.tw, "%s\t->\t%s\t%g\n", key, elem, score)
		return nil
	}
}

func (p *Plain) HashEntryHandler(key string) func(field, value string) error {
	return func(field, value string) error {
		fmt.Fprintf(p.tw, "%s{%s}\t->\t%s\n", key, field, value)
		return nil
	}
}

func (p *Plain) HashWithExpEntryHandler(key string) func(field, value string, ttl uint64) error {
	return func(field, value string, ttl uint64) error {
		if ttl == 0 {
			fmt.Fprintf(p.tw, "%s{%s}\t->\t%s\n", key, field, value)
		} else {
			fmt.Fprintf(p.tw, "%s{%s}\t->\t%s\tttl=%d\n", key, field, value, ttl)
		}
		return nil
	}
}

func (p *Plain) HandleModule(key, value string, marker rdb.ModuleMarker) error {
	fmt.Fprintf(p.tw, "%s\t->\t%s\n", key, value)
	return nil
}

func (p *Plain) StreamEntryHandler(key string) func(entry rdb.StreamEntry) error {
	return func(entry rdb.StreamEntry) error {
		fmt.Fprintf(p.tw, "%s[%d-%d]\t->\t%v\n", key, entry.ID.Millis, entry.ID.Seq, entry.Value)
		return nil
	}
}

func (p *Plain) HandleExpireTime(key string, expireTime time.Duration) error {
	fmt.Fprintf(p.tw, "%s\tttl\t%s\n", key, expireTime)
	return nil
}

func (p *Plain) EndRDB(checksumValid bool) error {
	return p.tw.Flush()
}
