// Package dump re-serializes a single decoded value back into the RDB wire
// encoding a RESTORE command expects as its payload argument. It is not a
// snapshot writer: there is no SELECTDB/EOF framing here, only the five
// canonical value shapes the decoder produces.
package dump

import rdb "github.com/rdbstream/rdbview"

// Encoder serializes one value at a time. It holds no state between calls.
type Encoder struct{}

func (Encoder) String(value string) ([]byte, error) {
	return encode(rdb.TypeString, func(w *rdb.Writer) error {
		return w.WriteString(value)
	})
}

func (Encoder) List(values []string) ([]byte, error) {
	return encode(rdb.TypeList, func(w *rdb.Writer) error {
		return w.WriteList(values)
	})
}

func (Encoder) Set(values []string) ([]byte, error) {
	return encode(rdb.TypeSet, func(w *rdb.Writer) error {
		return w.WriteSet(values)
	})
}

func (Encoder) SortedSet(members []string, scores []float64) ([]byte, error) {
	return encode(rdb.TypeZset2, func(w *rdb.Writer) error {
		return w.WriteZset(members, scores)
	})
}

func (Encoder) Hash(fields map[string]string) ([]byte, error) {
	return encode(rdb.TypeHash, func(w *rdb.Writer) error {
		return w.WriteHash(fields)
	})
}

func encode(t rdb.Type, write func(w *rdb.Writer) error) ([]byte, error) {
	w := rdb.NewWriter()
	if err := w.WriteType(t); err != nil {
		return nil, err
	}
	if err := write(w); err != nil {
		return nil, err
	}
	if err := w.WriteChecksum(rdb.Version); err != nil {
		return nil, err
	}
	return w.GetBuffer(), nil
}
