package rdb

import (
	"encoding/binary"
)

// StreamWriter encodes stream entries, metadata, and consumer groups in the
// on-disk layout stream_reader.go decodes.
type StreamWriter struct {
	writer *Writer
}

// lpAccum writes a run of listpack entries into w, tallying the encoded byte
// count and entry count it needs to backfill the listpack header with. The
// first error encountered is latched and every later call becomes a no-op,
// so a WriteEntries loop can call it freely and check err once at the end.
type lpAccum struct {
	w     *Writer
	bytes uint32
	count uint32
	err   error
}

func (a *lpAccum) int(v int64) {
	if a.err != nil {
		return
	}
	size, err := a.w.writeListpackIntEntry(v)
	if err != nil {
		a.err = err
		return
	}
	a.bytes += size
	a.count++
}

func (a *lpAccum) str(v string, buf [5]byte) {
	if a.err != nil {
		return
	}
	size, err := a.w.writeListpackEntry(v, buf)
	if err != nil {
		a.err = err
		return
	}
	a.bytes += size
	a.count++
}

// WriteEntries writes a stream's PEL-less entries. Rather than delta-encode
// a run of entries against a shared master entry the way Redis does, each
// entry is written as its own single-entry listpack, trading a larger
// payload for a much simpler encoder.
func (sw *StreamWriter) WriteEntries(entries []StreamEntry) error {
	if err := sw.writer.writeLen(uint64(len(entries))); err != nil {
		return err
	}

	var masterIDBuf [16]byte
	var backLenBuf [5]byte
	for _, entry := range entries {
		binary.BigEndian.PutUint64(masterIDBuf[:8], entry.ID.Millis)
		binary.BigEndian.PutUint64(masterIDBuf[8:], entry.ID.Seq)
		sw.writer.WriteString(bytesToString(masterIDBuf[:]))

		// The listpack's own length prefix, lpbytes and lpcount fields
		// aren't known until the listpack is fully written, so dummy
		// values are written first and patched in afterwards.
		strLenPos := sw.writer.pos
		if err := sw.writer.writeLenUint64(0); err != nil {
			return err
		}

		lpBytesPos := sw.writer.pos
		if err := sw.writer.writeUint32(0); err != nil {
			return err
		}
		if err := sw.writer.writeUint16(0); err != nil {
			return err
		}

		a := lpAccum{w: sw.writer}
		a.int(1)                            // count: always 1, one listpack per entry
		a.int(0)                            // deleted: always 0, deleted entries aren't written
		a.int(int64(len(entry.Value) / 2)) // num fields

		// field names, then flags/deltas, then values. entry.Value is a
		// flat <field><value>...<field><value> run.
		for i := 0; i < len(entry.Value); i += 2 {
			a.str(entry.Value[i], backLenBuf)
		}
		a.int(0) // terminator matching the 0 at the end of a real master entry
		a.int(2) // flags: field names are identical to the master entry above
		a.int(0) // millis delta: always 0, there is no separate master entry
		a.int(0) // seq delta: always 0, there is no separate master entry
		for i := 1; i < len(entry.Value); i += 2 {
			a.str(entry.Value[i], backLenBuf)
		}
		// lp-entry count for this entry's own listpack slot: the fields
		// written above (len(entry.Value)/2) plus the flags, millis
		// delta and seq delta.
		a.int(int64(3 + len(entry.Value)/2))
		if a.err != nil {
			return a.err
		}

		if err := sw.writer.writeUint8(listpackEnd); err != nil {
			return err
		}
		lpBytes := a.bytes + 4 + 2 + 1 // + lpbytes + lpcount + lpend
		lpCount := a.count
		if lpCount >= uint32(listpackLenBig) {
			lpCount = uint32(listpackLenBig)
		}

		pos := sw.writer.pos
		sw.writer.pos = lpBytesPos
		if err := sw.writer.writeUint32(lpBytes); err != nil {
			return err
		}
		if err := sw.writer.writeUint16(uint16(lpCount)); err != nil {
			return err
		}

		sw.writer.pos = strLenPos
		if err := sw.writer.writeLenUint64(uint64(lpBytes)); err != nil {
			return err
		}

		sw.writer.pos = pos
	}

	return nil
}

// WriteMetadata writes a stream's reported length and last assigned ID.
func (sw *StreamWriter) WriteMetadata(length uint64, lastID StreamID) error {
	if err := sw.writer.writeLen(length); err != nil {
		return err
	}
	if err := sw.writer.writeLen(lastID.Millis); err != nil {
		return err
	}
	return sw.writer.writeLen(lastID.Seq)
}

// WriteConsumerGroups writes a stream's consumer groups, each with its
// global pending-entries list (derived from its consumers' own PELs) and
// then its consumers.
func (sw *StreamWriter) WriteConsumerGroups(groups []StreamConsumerGroup) error {
	if err := sw.writer.writeLen(uint64(len(groups))); err != nil {
		return err
	}

	for _, group := range groups {
		if err := sw.writeConsumerGroup(group); err != nil {
			return err
		}
	}

	return nil
}

func (sw *StreamWriter) writeConsumerGroup(group StreamConsumerGroup) error {
	if err := sw.writer.WriteString(group.Name); err != nil {
		return err
	}
	if err := sw.writer.writeLen(group.LastID.Millis); err != nil {
		return err
	}
	if err := sw.writer.writeLen(group.LastID.Seq); err != nil {
		return err
	}

	globalPEL := make(map[StreamID]*StreamPendingEntry)
	for _, consumer := range group.Consumers {
		for _, pe := range consumer.PendingEntries {
			globalPEL[pe.Entry.ID] = pe
		}
	}

	if err := sw.writer.writeLen(uint64(len(globalPEL))); err != nil {
		return err
	}
	for _, pe := range globalPEL {
		if err := sw.writer.writeUint64BE(pe.Entry.ID.Millis); err != nil {
			return err
		}
		if err := sw.writer.writeUint64BE(pe.Entry.ID.Seq); err != nil {
			return err
		}
		if err := sw.writer.writeUint64(uint64(pe.DeliveryTime)); err != nil {
			return err
		}
		if err := sw.writer.writeLen(pe.DeliveryCount); err != nil {
			return err
		}
	}

	if err := sw.writer.writeLen(uint64(len(group.Consumers))); err != nil {
		return err
	}
	for _, consumer := range group.Consumers {
		if err := sw.writeConsumer(consumer); err != nil {
			return err
		}
	}

	return nil
}

func (sw *StreamWriter) writeConsumer(consumer StreamConsumer) error {
	if err := sw.writer.WriteString(consumer.Name); err != nil {
		return err
	}
	if err := sw.writer.writeUint64(uint64(consumer.SeenTime)); err != nil {
		return err
	}
	if err := sw.writer.writeLen(uint64(len(consumer.PendingEntries))); err != nil {
		return err
	}

	for _, pe := range consumer.PendingEntries {
		if err := sw.writer.writeUint64BE(pe.Entry.ID.Millis); err != nil {
			return err
		}
		if err := sw.writer.writeUint64BE(pe.Entry.ID.Seq); err != nil {
			return err
		}
	}

	return nil
}
