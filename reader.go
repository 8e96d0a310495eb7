package rdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ReadValue reads the single RDB value given in the payload into the handler.
// The given key is passed into the handler methods directly.
func ReadValue(key string, payload []byte, handler ValueHandler) error {
	return readValue(key, payload, handler, 0)
}

func readValue(key string, payload []byte, handler ValueHandler, lz77Limit uint64) error {
	reader := entryDecoder{
		src:       newMemSliceBuffer(payload),
		lz77Limit: lz77Limit,
	}

	t, err := reader.ReadType()
	if err != nil {
		return err
	}

	return reader.readObject(key, t, handler)
}

var errZMUnexpectedEnd = errors.New("unexpected end of zipmap")
var errZLUnexpectedEnd = errors.New("unexpected end of ziplist")
var errLPUnexpectedEnd = errors.New("unexpected end of listpack")
var errTooBigLz77String = errors.New("uncompressed length of the string is too big")

// errLegacyModule is returned for value-type tag 6, the pre-Module2 module
// encoding. Redis itself has refused to load these since module API v1 was
// retired; rather than let the generic decoder fall into readListpackEntry
// or some other sub-decoder on garbage bytes, the tag is rejected up front.
var errLegacyModule = errors.New("legacy module encoding (type 6) is not supported, only Module2 values can be decoded")

// entryDecoder walks the byte layout of a single RDB value and replays it
// against a ValueHandler one piece at a time. One entryDecoder is created
// per top-level value (ReadValue) or per snapshot body (ReadFile/Decode,
// which reuse it for every key); container sub-decoders (listpacks, ziplists, nested
// module strings) get their own throwaway instance via nested, sharing the
// same LZF expansion limit as their parent.
type entryDecoder struct {
	src       buffer
	lz77Limit uint64
}

// nested builds a decoder over an in-memory blob that was itself read out of
// the parent stream (a listpack payload, a module string, ...), inheriting
// the parent's LZF guard so nested compressed strings can't bypass it.
func (r *entryDecoder) nested(data string) entryDecoder {
	return entryDecoder{src: newMemSliceBuffer(stringToBytes(data)), lz77Limit: r.lz77Limit}
}

// fromView builds a decoder over a view into the parent's own backing
// buffer (used to make a second pass over a span already consumed once,
// such as a stream's entries or consumer groups), inheriting the LZF guard.
func (r *entryDecoder) fromView(v bufferView) entryDecoder {
	return entryDecoder{src: v, lz77Limit: r.lz77Limit}
}

// listReader, zsetReader and streamReader are the shapes every container
// decoder that reports a trailing entry count conforms to: they consume a
// per-element callback and hand back how many elements they walked.
type listReader func(func(string) error) (uint64, error)
type zsetReader func(func(string, float64) error) (uint64, error)
type streamReader func(func(StreamEntry) error, func(StreamConsumerGroup) error) (uint64, error)

func (r *entryDecoder) dispatchList(key string, handler ValueHandler, read listReader) error {
	n, err := read(handler.ListEntryHandler(key))
	if err != nil {
		return err
	}
	handler.HandleListEnding(key, n)
	return nil
}

func (r *entryDecoder) dispatchZset(key string, handler ValueHandler, read zsetReader) error {
	n, err := read(handler.ZsetEntryHandler(key))
	if err != nil {
		return err
	}
	handler.HandleZsetEnding(key, n)
	return nil
}

func (r *entryDecoder) dispatchStream(key string, handler ValueHandler, read streamReader) error {
	n, err := read(handler.StreamEntryHandler(key), handler.StreamGroupHandler(key))
	if err != nil {
		return err
	}
	handler.HandleStreamEnding(key, n)
	return nil
}

// readObject dispatches on the value-type tag that precedes every RDB value
// and replays the decoded object against handler. Containers that Redis
// reports a trailing length for (lists, sorted sets, streams) go through the
// dispatch* helpers above so the "read, then fire the *Ending callback"
// bookkeeping lives in one place instead of once per encoding variant; sets
// and hashes never had a trailing-count callback to begin with and are
// called directly.
func (r *entryDecoder) readObject(key string, t Type, handler ValueHandler) error {
	switch t {
	case TypeString:
		value, err := r.ReadString()
		if err != nil {
			return err
		}
		return handler.HandleString(key, value)

	case TypeList:
		return r.dispatchList(key, handler, r.ReadList)
	case TypeListZiplist:
		return r.dispatchList(key, handler, r.ReadListZiplist)
	case TypeListQuicklist:
		return r.dispatchList(key, handler, r.ReadListQuicklist)
	case TypeListQuicklist2:
		return r.dispatchList(key, handler, r.ReadListQuicklist2)

	case TypeSet:
		return r.ReadSet(handler.SetEntryHandler(key))
	case TypeSetIntset:
		return r.ReadSetIntset(handler.SetEntryHandler(key))
	case TypeSetListpack:
		return r.ReadSetListpack(handler.SetEntryHandler(key))

	case TypeZset:
		return r.dispatchZset(key, handler, r.ReadZset)
	case TypeZset2:
		return r.dispatchZset(key, handler, r.ReadZset2)
	case TypeZsetZiplist:
		return r.dispatchZset(key, handler, r.ReadZsetZiplist)
	case TypeZsetListpack:
		return r.dispatchZset(key, handler, r.ReadZsetListpack)

	case TypeHash:
		return r.ReadHash(handler.HashEntryHandler(key))
	case TypeHashZipmap:
		return r.ReadHashZipmap(handler.HashEntryHandler(key))
	case TypeHashZiplist:
		return r.ReadHashZiplist(handler.HashEntryHandler(key))
	case TypeHashListpack:
		return r.ReadHashListpack(handler.HashEntryHandler(key))
	case TypeHashMetadata:
		return r.ReadHashMetadata(handler.HashWithExpEntryHandler(key))
	case TypeHashListpackEx:
		return r.ReadHashListpackEx(handler.HashWithExpEntryHandler(key))

	case TypeStreamListpacks:
		return r.dispatchStream(key, handler, r.ReadStreamListpacks)
	case TypeStreamListpacks2:
		return r.dispatchStream(key, handler, r.ReadStreamListpacks2)
	case TypeStreamListpacks3:
		return r.dispatchStream(key, handler, r.ReadStreamListpacks3)

	case TypeModule2:
		value, marker, err := r.ReadModule2(handler.AllowPartialRead())
		if err != nil {
			return err
		}
		return handler.HandleModule(key, value, marker)
	case TypeModule:
		return errLegacyModule

	default:
		return fmt.Errorf("unknown RDB object type %d", t)
	}
}

// ReadType consumes the one-byte tag that precedes every top-level value
// or opcode in the stream.
func (r *entryDecoder) ReadType() (Type, error) {
	objType, err := r.readUint8()
	if err != nil {
		return 0, err
	}

	return Type(objType), nil
}

// readLen decodes a Redis length-prefixed integer, which doubles as either
// a plain count or a special-encoding marker depending on its leading bits.
//
// The length is variable-width, signified by the first byte:
//
// 00xxxxxx => 6 bit unsigned length
// 01xxxxxx => 14 bit unsigned length, constructed by reading one more byte
// 10000000 => 32 bit unsigned big endian length, from the next 4 bytes
// 10000001 => 64 bit unsigned big endian length, from the next 8 bytes
// 11000000 => Special encoding, next object is an 8 bit signed integer
// 11000001 => Special encoding, next object is a 16 bit signed integer
// 11000010 => Special encoding, next object is a 32 bit signed integer
// 11000011 => Special encoding, next object is a FastLZ(LZ77) compressed string
func (r *entryDecoder) readLen() (uint64, bool, error) {
	b0, err := r.readUint8()
	if err != nil {
		return 0, false, err
	}

	switch b0 & 0xC0 {
	case len6Bit:
		return uint64(b0 & 0x3F), false, nil
	case len14Bit:
		b1, err := r.readUint8()
		if err != nil {
			return 0, false, err
		}

		return uint64(b0&0x3F)<<8 | uint64(b1), false, nil
	case len32Or64Bit:
		switch b0 {
		case len32Bit:
			length, err := r.readUint32BE()
			if err != nil {
				return 0, false, err
			}

			return uint64(length), false, nil
		case len64Bit:
			length, err := r.readUint64BE()
			if err != nil {
				return 0, false, err
			}

			return length, false, nil
		}
	case lenEncodedValue:
		return uint64(b0 & 0x3F), true, nil
	}

	return 0, false, errors.New("unexpected length encoding")
}

// ReadString reads a length-prefixed string, transparently expanding the
// three special encodings readLen can report in place of a literal byte
// count:
//   - an 8, 16, or 32 bit signed integer (encoding 0, 1, 2), rendered back
//     out as its decimal string form
//   - an LZ77/LZF-compressed run (encoding 3): a compressed length, an
//     uncompressed length, then that many compressed bytes
//
// Anything else is a plain byte count followed by that many raw bytes.
func (r *entryDecoder) ReadString() (string, error) {
	length, encoded, err := r.readLen()
	if err != nil {
		return "", err
	}

	if encoded {
		switch length {
		case lenEncodingInt8:
			value, err := r.readUint8()
			if err != nil {
				return "", err
			}

			return strconv.Itoa(int(int8(value))), nil
		case lenEncodingInt16:
			value, err := r.readUint16()
			if err != nil {
				return "", err
			}

			return strconv.Itoa(int(int16(value))), nil
		case lenEncodingInt32:
			value, err := r.readUint32()
			if err != nil {
				return "", err
			}

			return strconv.Itoa(int(int32(value))), nil
		case lenEncodingLZF:
			compressedLen, _, err := r.readLen()
			if err != nil {
				return "", err
			}

			uncompressedLen, _, err := r.readLen()
			if err != nil {
				return "", err
			}

			if r.lz77Limit > 0 && uncompressedLen > r.lz77Limit {
				return "", errTooBigLz77String
			}

			compressed, err := r.read(int(compressedLen))
			if err != nil {
				return "", err
			}

			decompressed, err := decompressLZ77(compressed, int(uncompressedLen))
			if err != nil {
				return "", err
			}

			return bytesToString(decompressed), nil
		default:
			return "", errors.New("unexpected string encoding")
		}
	}

	data, err := r.read(int(length))
	if err != nil {
		return "", err
	}

	return bytesToString(data), nil
}

// ReadList walks a plain (uncompressed) list: a count followed by that many
// string elements.
// For each list element read, the cb is called with that element.
// The list has the following form:
// <len><elem>...<elem>
// where
// <len> is a length encoded integer, and there are exactly <len> <elem>s.
// <elem> is a string
func (r *entryDecoder) ReadList(cb func(string) error) (uint64, error) {
	length, _, err := r.readLen()
	if err != nil {
		return 0, err
	}

	for i := 0; i < int(length); i++ {
		elem, err := r.ReadString()
		if err != nil {
			return 0, err
		}

		err = cb(elem)
		if err != nil {
			return 0, err
		}
	}

	return length, nil
}

// ReadSet walks a plain set encoding: a count followed by that many
// distinct string members.
// For each set element read, the cb is called with that element.
// The set has the following form:
// <len><elem>...<elem>
// where
// <len> is a length encoded integer, and there are exactly <len> <elem>s
// <elem> is a string
func (r *entryDecoder) ReadSet(cb func(string) error) error {
	length, _, err := r.readLen()
	if err != nil {
		return err
	}

	for i := 0; i < int(length); i++ {
		elem, err := r.ReadString()
		if err != nil {
			return err
		}

		err = cb(elem)
		if err != nil {
			return err
		}
	}

	return nil
}

// ReadZset walks the original sorted-set encoding, where each member's
// score is stored as a length-prefixed ASCII string rather than a raw
// float64 (see ReadZset2).
// For each sorted set element score pair read, the cb is called with that pair.
// The sorted set has the following form:
// <len><elem><score>...<elem><score>
// where
// <len> is a length encoded integer, and there are exactly <len> <elem><score> pairs.
// <elem> is a string
// <score> is described by its first byte:
//   - If it is equal to 255, the score is negative infinity
//   - If it is equal to 254, the score is positive infinity
//   - If it is equal to 253, the score is NaN
//   - Else, this byte is interpreted as an unsigned 8 bit integer,
//     describing the length of the score. Then, length many bytes are read, which is
//     an ASCII-encoded string representation of a float64.
func (r *entryDecoder) ReadZset(cb func(string, float64) error) (uint64, error) {
	length, _, err := r.readLen()
	if err != nil {
		return 0, err
	}

	for i := 0; i < int(length); i++ {
		elem, err := r.ReadString()
		if err != nil {
			return 0, err
		}

		scoreLen, err := r.readUint8()
		if err != nil {
			return 0, err
		}

		var score float64
		switch scoreLen {
		case 255:
			score = math.Inf(-1)
		case 254:
			score = math.Inf(1)
		case 253:
			score = math.NaN()
		default:
			data, err := r.read(int(scoreLen))
			if err != nil {
				return 0, err
			}

			score, err = strconv.ParseFloat(bytesToString(data), 64)
			if err != nil {
				return 0, err
			}
		}

		err = cb(elem, score)
		if err != nil {
			return 0, err
		}
	}

	return length, nil
}

// ReadHash walks a plain hash encoding: a count followed by that many
// field/value string pairs.
// For each hash field value pair read, the cb is called with that pair.
// The hash has the following form:
// <len><field><value>...<field><value>
// where
// <len> is a length encoded integer, and there are exactly <len> <field><value> pairs.
// <field> is a string
// <value> is a string:
func (r *entryDecoder) ReadHash(cb func(string, string) error) error {
	length, _, err := r.readLen()
	if err != nil {
		return err
	}

	for i := 0; i < int(length); i++ {
		field, err := r.ReadString()
		if err != nil {
			return err
		}

		value, err := r.ReadString()
		if err != nil {
			return err
		}

		err = cb(field, value)
		if err != nil {
			return err
		}
	}

	return nil
}

// ReadZset2 walks the binary sorted-set encoding introduced to replace
// ReadZset's string-formatted scores with a raw little-endian float64.
// For each sorted set element score pair read, the cb is called with that pair.
// The sorted set has the following form:
// <len><elem><score>...<elem><score>
// where
// <len> is a length encoded integer, and there are exactly <len> <elem><score> pairs.
// <elem> is a string
// <score> is 8 byte long number, encoded as the IEEE 754 binary representation of a float64
func (r *entryDecoder) ReadZset2(cb func(string, float64) error) (uint64, error) {
	length, _, err := r.readLen()
	if err != nil {
		return 0, err
	}

	for i := 0; i < int(length); i++ {
		elem, err := r.ReadString()
		if err != nil {
			return 0, err
		}

		bits, err := r.readUint64()
		if err != nil {
			return 0, err
		}

		score := math.Float64frombits(bits)

		err = cb(elem, score)
		if err != nil {
			return 0, err
		}
	}

	return length, nil
}

// ReadModule2 replays a module-defined value's opcode stream. Redis modules
// serialize their own state as a sequence of typed opcodes (see the
// moduleOpCode* constants); this walks that stream generically, recognizing
// the RedisJSON module specifically via jsonModuleID so its tree can be
// reconstructed, and otherwise requires the caller to opt into skipping
// values it doesn't understand.
//
// The value opens with a length-encoded 64 bit module id that packs both a
// name and a version: the id splits into ten fields of 6|6|6|6|6|6|6|6|6|10
// bits, the first nine indexing the charset [A-Z][a-z][0-9][-_] to spell out
// the module name and the last holding its version. Once the name is
// resolved, the rest of the stream is that module's own opcode sequence,
// always closed by an EOF opcode.
func (r *entryDecoder) ReadModule2(skipUnsupported bool) (string, ModuleMarker, error) {
	id, _, err := r.readLen()
	if err != nil {
		return "", EmptyModuleMarker, err
	}

	version := id & 0x3FF
	mReader := moduleValueReader{decoder: r}

	switch id &^ 0x3FF {
	case jsonModuleID:
		value, err := mReader.ReadJSON(version)
		if err != nil {
			return "", EmptyModuleMarker, err
		}

		return value, JSONModuleMarker, nil
	}

	if skipUnsupported {
		err = mReader.Skip()
		return "", EmptyModuleMarker, err
	}

	name := constructModuleName(id)
	return "", EmptyModuleMarker, errors.New("unsupported module " + name)
}

// ReadHashZipmap decodes the zipmap encoding, a flat byte run predating
// ziplists that Redis still emits for hashes created by very old servers.
// For each hash field value pair read, the cb is called with that pair.
// Zipmap is a string that represents field value pairs.
// The byte array representation of the string has the following form:
// <zmlen><len><field><len><free><value><free-bytes>...<len><field><len><free><value><free-bytes><zmend>
// where
// <zmlen> is a 1 byte number that describes the length of the zipmap.
//   - If it is less than 254, this is the length of the zipmap.
//   - If not, the zipmap has to traversed to find out the length.
//
// <len> is the length of the <field> or <value>, and it is different than
// the length encoded integer. It is either 1 or 5 bytes long.
//   - If the first byte is less than or equal to 253, it is the length of the
//     <field> or <value>.
//   - If it is equal to 254, the next 4 bytes describes the length.
//   - 255 is reserved for <zmend> and it is not a valid first byte for the <len>.
//
// <free> is the number of unused bytes after the <value>.
// These bytes should be skipped.
// <free-bytes> is the bytes that should be skipped.
// <zmend> is always 255.
func (r *entryDecoder) ReadHashZipmap(cb func(string, string) error) error {
	zipmap, err := r.ReadString()
	if err != nil {
		return err
	}

	reader := r.nested(zipmap)

	zmlen, err := reader.readUint8()
	if err != nil {
		return err
	}

	var limit int
	if zmlen < zipmapLenBig {
		limit = int(zmlen)
	} else {
		limit = math.MaxInt
	}

	for i := 0; i < limit; i++ {
		len0, err := reader.readUint8()
		if err != nil {
			return err
		}

		if len0 == zipmapEnd {
			if limit == math.MaxInt {
				return nil
			} else {
				return errZMUnexpectedEnd
			}
		}

		var fieldLen uint32
		if len0 < zipmapLenBig {
			fieldLen = uint32(len0)
		} else {
			fieldLen, err = reader.readUint32()
			if err != nil {
				return err
			}
		}

		fieldData, err := reader.read(int(fieldLen))
		if err != nil {
			return err
		}

		len0, err = reader.readUint8()
		if err != nil {
			return err
		}

		if len0 == zipmapEnd {
			return errZMUnexpectedEnd
		}

		var valueLen uint32
		if len0 < zipmapLenBig {
			valueLen = uint32(len0)
		} else {
			valueLen, err = reader.readUint32()
			if err != nil {
				return err
			}
		}

		freeLen, err := reader.readUint8()
		if err != nil {
			return err
		}

		valueData, err := reader.read(int(valueLen))
		if err != nil {
			return err
		}

		if err := reader.skip(int(freeLen)); err != nil {
			return err
		}

		err = cb(bytesToString(fieldData), bytesToString(valueData))
		if err != nil {
			return err
		}
	}

	// <zmlen> was < 254, we should read the <zmend>
	zmend, err := reader.readUint8()
	if err != nil {
		return err
	}

	if zmend != zipmapEnd {
		return errZMUnexpectedEnd
	}

	return nil
}

// ReadListZiplist decodes a list stored as a single ziplist blob: the
// predecessor encoding to listpacks, kept around for values written by
// older Redis versions.
//
// A ziplist blob is <zlbytes><zltail><zllen><zlentry>...<zlentry><zlend>: a
// 4 byte total-byte-count, a 4 byte offset to the last entry, a 2 byte entry
// count (pinned to 0xFFFF once there are more than 2^16-2 entries, forcing a
// full scan), the entries, and a trailing 0xFF terminator.
//
// Each entry is <prevlen><encoding>[<zlentry-data>]. prevlen is the byte
// size of the entry before it: one byte if that size is <= 253, or 254
// followed by a 4 byte length (255 is reserved for zlend and never a valid
// prevlen). encoding is tagged by its leading bits:
//
//	00xxxxxx  string, 6 bit length
//	01xxxxxx  string, 14 bit length (6 tag bits + next byte), big endian
//	10000000  string, 4 byte big endian length follows
//	11000000  2 byte signed int
//	11010000  4 byte signed int
//	11100000  8 byte signed int
//	11110000  3 byte signed int
//	11111110  1 byte signed int
//	1111xxxx  (xxxx in 0001..1101) immediate int 0-12, value = xxxx-1, no
//	          extra bytes read
//
// <zlend> is always 255
func (r *entryDecoder) ReadListZiplist(cb func(string) error) (uint64, error) {
	ziplist, err := r.ReadString()
	if err != nil {
		return 0, err
	}

	reader := r.nested(ziplist)

	// <zlbytes> + <zltail>
	if err := reader.skip(8); err != nil {
		return 0, err
	}

	zllen, err := reader.readUint16()
	if err != nil {
		return 0, err
	}

	var limit int
	if zllen == ziplistLenBig {
		limit = math.MaxInt
	} else {
		limit = int(zllen)
	}

	for i := 0; i < limit; i++ {
		elem, err := reader.readZiplistEntry()

		if err == errZLUnexpectedEnd && limit == math.MaxInt {
			// The ziplist size was unbounded and we read <zlend>, as expected
			return uint64(i), nil
		}

		if err != nil {
			return 0, err
		}

		err = cb(elem)
		if err != nil {
			return 0, err
		}
	}

	// <zllen> was < 65535, we should read the <zlend>
	zlend, err := reader.readUint8()
	if err != nil {
		return 0, err
	}

	if zlend != ziplistEnd {
		return 0, errZLUnexpectedEnd
	}

	return uint64(zllen), nil
}

// ReadSetIntset decodes a set of integers packed into a sorted, fixed-width
// intset blob rather than stored as individual string members.
// For each set element read, the cb is called with that element.
// Intset is a string that represents the set elements.
// The byte array representation of the string has the following form:
// <encoding><len><elem>...<elem>
// where
// <encoding> is a 4 byte unsigned integer that is either equal to 2, 4, or 8
// that describes the length of the elements.
// <len> is a 4 byte unsigned integer that describes the length of the set.
// <elem> is either a 2, 4, or 8 bytes long signed integer.
func (r *entryDecoder) ReadSetIntset(cb func(string) error) error {
	intset, err := r.ReadString()
	if err != nil {
		return err
	}

	reader := r.nested(intset)

	encoding, err := reader.readUint32()
	if err != nil {
		return err
	}

	length, err := reader.readUint32()
	if err != nil {
		return err
	}

	for i := 0; i < int(length); i++ {
		var elem int
		switch encoding {
		case intsetEncInt16:
			elem0, err := reader.readUint16()
			if err != nil {
				return err
			}
			elem = int(int16(elem0))
		case intsetEncInt32:
			elem0, err := reader.readUint32()
			if err != nil {
				return err
			}
			elem = int(int32(elem0))
		case intsetEncInt64:
			elem0, err := reader.readUint64()
			if err != nil {
				return err
			}
			elem = int(elem0)
		default:
			return errors.New("unexpected intset encoding")
		}

		err = cb(strconv.Itoa(elem))
		if err != nil {
			return err
		}
	}

	return nil
}

// ReadZsetZiplist decodes a sorted set stored as member/score pairs packed
// into a single ziplist blob.
// For each sorted set element score pair read, the cb is called with that pair.
// It has the same structure as the ziplist. The ziplist consists of
// element score pairs, which are <zlentry> tuples stored back to back.
func (r *entryDecoder) ReadZsetZiplist(cb func(string, float64) error) (uint64, error) {
	ziplist, err := r.ReadString()
	if err != nil {
		return 0, err
	}

	reader := r.nested(ziplist)

	// <zlbytes> + <zltail>
	if err := reader.skip(8); err != nil {
		return 0, err
	}

	zllen, err := reader.readUint16()
	if err != nil {
		return 0, err
	}

	var limit int
	if zllen == ziplistLenBig {
		limit = math.MaxInt
	} else {
		limit = int(zllen)
	}

	for i := 0; i < limit; i += 2 {
		elem, err := reader.readZiplistEntry()

		if err == errZLUnexpectedEnd && limit == math.MaxInt {
			// The ziplist size was unbounded and we read <zlend>, as expected
			return uint64(i / 2), nil
		}

		if err != nil {
			return 0, err
		}

		score0, err := reader.readZiplistEntry()
		if err != nil {
			return 0, err
		}

		score, err := strconv.ParseFloat(score0, 64)
		if err != nil {
			return 0, err
		}

		err = cb(elem, score)
		if err != nil {
			return 0, err
		}
	}

	// <zllen> was < 65535, we should read the <zlend>
	zlend, err := reader.readUint8()
	if err != nil {
		return 0, err
	}

	if zlend != ziplistEnd {
		return 0, errZLUnexpectedEnd
	}

	return uint64(zllen / 2), nil
}

// ReadHashZiplist decodes a hash stored as field/value pairs packed into a
// single ziplist blob.
// For each hash field value pair read, the cb is called with that pair.
// It has the same structure as the ziplist. The ziplist consists of
// field value pairs, which are <zlentry> tuples stored back to back.
func (r *entryDecoder) ReadHashZiplist(cb func(string, string) error) error {
	ziplist, err := r.ReadString()
	if err != nil {
		return err
	}

	reader := r.nested(ziplist)

	// <zlbytes> + <zltail>
	if err := reader.skip(8); err != nil {
		return err
	}

	zllen, err := reader.readUint16()
	if err != nil {
		return err
	}

	var limit int
	if zllen == ziplistLenBig {
		limit = math.MaxInt
	} else {
		limit = int(zllen)
	}

	for i := 0; i < limit; i += 2 {
		field, err := reader.readZiplistEntry()

		if err == errZLUnexpectedEnd && limit == math.MaxInt {
			// The ziplist size was unbounded and we read <zlend>, as expected
			return nil
		}

		if err != nil {
			return err
		}

		value, err := reader.readZiplistEntry()
		if err != nil {
			return err
		}

		err = cb(field, value)
		if err != nil {
			return err
		}
	}

	// <zllen> was < 65535, we should read the <zlend>
	zlend, err := reader.readUint8()
	if err != nil {
		return err
	}

	if zlend != ziplistEnd {
		return errZLUnexpectedEnd
	}

	return nil
}

// ReadListQuicklist decodes the first-generation quicklist encoding: a
// count of nodes, each node itself a ziplist blob.
// For each list element read, the cb is called with that element.
// Quicklist is a sequence of ziplists and has the following form:
// <len><ziplist>...<ziplist>
// where
// <len> is the number of ziplists, as a length encoded integer.
// <ziplist> has the same structure as the ziplist defined in the ListZipList
//
// The list is the concatenation of all the elements in all the ziplists.
func (r *entryDecoder) ReadListQuicklist(cb func(string) error) (uint64, error) {
	length, _, err := r.readLen()
	if err != nil {
		return 0, err
	}

	var totalRead uint64
	for i := 0; i < int(length); i++ {
		read, err := r.ReadListZiplist(cb)
		if err != nil {
			return 0, err
		}
		totalRead += read
	}

	return totalRead, nil
}

// ReadHashListpack decodes a hash stored as field/value pairs packed into a
// single listpack blob, the successor to the ziplist encoding.
// For each hash field value pair read, the cb is called with that pair.
// It has the same structure as the listpack. The listpack consists of
// field value pairs, which are <lpentry> tuples stored back to back.
func (r *entryDecoder) ReadHashListpack(cb func(string, string) error) error {
	listpack, err := r.ReadString()
	if err != nil {
		return err
	}

	reader := r.nested(listpack)

	// <lpbytes>
	if err := reader.skip(4); err != nil {
		return err
	}

	lplen, err := reader.readUint16()
	if err != nil {
		return err
	}

	var limit int
	if lplen == listpackLenBig {
		limit = math.MaxInt
	} else {
		limit = int(lplen)
	}

	for i := 0; i < limit; i += 2 {
		field, err := reader.readListpackEntry()

		if err == errLPUnexpectedEnd && limit == math.MaxInt {
			// The listpack size was unbounded and we read <lpend>, as expected
			return nil
		}

		if err != nil {
			return err
		}

		value, err := reader.readListpackEntry()
		if err != nil {
			return err
		}

		err = cb(field, value)
		if err != nil {
			return err
		}
	}

	// <lplen> was < 65535, we should read the <lpend>
	lpend, err := reader.readUint8()
	if err != nil {
		return err
	}

	if lpend != listpackEnd {
		return errLPUnexpectedEnd
	}

	return nil
}

// ReadZsetListpack decodes a sorted set stored as member/score pairs packed
// into a single listpack blob.
// For each sorted set element score pair read, the cb is called with that pair.
// It has the same structure as the listpack. The listpack consists of
// element score pairs, which are <lpentry> tuples stored back to back.
func (r *entryDecoder) ReadZsetListpack(cb func(string, float64) error) (uint64, error) {
	listpack, err := r.ReadString()
	if err != nil {
		return 0, err
	}

	reader := r.nested(listpack)

	// <lpbytes>
	if err := reader.skip(4); err != nil {
		return 0, err
	}

	lplen, err := reader.readUint16()
	if err != nil {
		return 0, err
	}

	var limit int
	if lplen == listpackLenBig {
		limit = math.MaxInt
	} else {
		limit = int(lplen)
	}

	for i := 0; i < limit; i += 2 {
		elem, err := reader.readListpackEntry()

		if err == errLPUnexpectedEnd && limit == math.MaxInt {
			// The listpack size was unbounded and we read <lpend>, as expected
			return uint64(i / 2), nil
		}

		if err != nil {
			return 0, err
		}

		score0, err := reader.readListpackEntry()
		if err != nil {
			return 0, err
		}

		score, err := strconv.ParseFloat(score0, 64)
		if err != nil {
			return 0, err
		}

		err = cb(elem, score)
		if err != nil {
			return 0, err
		}
	}

	// <lplen> was < 65535, we should read the <lpend>
	lpend, err := reader.readUint8()
	if err != nil {
		return 0, err
	}

	if lpend != listpackEnd {
		return 0, errLPUnexpectedEnd
	}

	return uint64(lplen / 2), nil
}

// ReadListQuicklist2 decodes the second-generation quicklist encoding: a
// count of nodes, each either a listpack blob or, for PLAIN nodes, a single
// oversized element stored uncompressed.
// For each list element read, the cb is called with that element.
// Quicklist2 is a sequence of list nodes and has the following form:
// <len><list-node>...<list-node>
// where
// <len> is the number of list nodes, as a length encoded integer.
// <list-node> has the following form
// <container-type><node-content>
// where
// <container-type> is a length encoded integer and either equals to 1
// which means the <node-content> is a plain string, or equals to 2
// which means the <node-content> is a listpack.
// The list is the concatenation of all the elements in all the list nodes.
func (r *entryDecoder) ReadListQuicklist2(cb func(string) error) (uint64, error) {
	length, _, err := r.readLen()
	if err != nil {
		return 0, err
	}

	var totalRead uint64
	for i := 0; i < int(length); i++ {
		container, _, err := r.readLen()
		if err != nil {
			return 0, err
		}

		data, err := r.ReadString()
		if err != nil {
			return 0, err
		}

		switch container {
		case quicklist2NodePlain:
			err = cb(data)
			if err != nil {
				return 0, err
			}
			totalRead++
		case quicklist2NodePacked:
			read, err := r.readListpack(data, cb)
			if err != nil {
				return 0, err
			}
			totalRead += read
		default:
			return 0, errors.New("unexpected quicklist2 container")
		}
	}
	return totalRead, nil
}

// ReadSetListpack decodes a set packed into a single listpack blob.
// For each set element read, the cb is called with that element.
// It has the same structure as the listpack. The listpack consists of
// set elements.
func (r *entryDecoder) ReadSetListpack(cb func(string) error) error {
	listpack, err := r.ReadString()
	if err != nil {
		return err
	}

	_, err = r.readListpack(listpack, cb)
	return err
}

// ReadStreamListpacks decodes the original stream encoding (RDB_TYPE_STREAM_LISTPACKS).
// For each stream entry and group read, the corresponding cb is called with that entry or group.
func (r *entryDecoder) ReadStreamListpacks(
	entryCB func(StreamEntry) error,
	groupCB func(StreamConsumerGroup) error,
) (uint64, error) {
	return r.readStreamListpacks0(TypeStreamListpacks, entryCB, groupCB)
}

// ReadStreamListpacks2 decodes the stream encoding revision that added the
// first-entry id, max-deleted id and entries-added counter to the stream
// metadata and an entries-read counter to each consumer group
// (RDB_TYPE_STREAM_LISTPACKS_2).
// For each stream entry and group read, the corresponding cb is called with that entry or group.
func (r *entryDecoder) ReadStreamListpacks2(
	entryCB func(StreamEntry) error,
	groupCB func(StreamConsumerGroup) error,
) (uint64, error) {
	return r.readStreamListpacks0(TypeStreamListpacks2, entryCB, groupCB)
}

// ReadStreamListpacks3 decodes the current stream encoding, which adds
// each consumer's active-time (RDB_TYPE_STREAM_LISTPACKS_3). The on-disk layout common to all three
// stream encodings is documented on readStreamListpacks0.
func (r *entryDecoder) ReadStreamListpacks3(
	entryCB func(StreamEntry) error,
	groupCB func(StreamConsumerGroup) error,
) (uint64, error) {
	return r.readStreamListpacks0(TypeStreamListpacks3, entryCB, groupCB)
}

// ReadHashMetadata decodes a hash whose fields each carry an optional
// expiration, stored as explicit field/value/ttl triplets.
// For each hash field value pair read, the cb is called with that pair and its TTL.
// The hash has the following form:
// <min-expire><len><ttl><field><value>...<ttl><field><value>
// where
// <min-expire> is an 8 byte little-endian epoch-millisecond base for the field expiries.
// <len> is a length encoded integer, and there are exactly <len> <ttl><field><value> triplets.
// <ttl> is a length encoded integer added to <min-expire> to give the field's expiration time (0 means no TTL)
// <field> is a string
// <value> is a string
func (r *entryDecoder) ReadHashMetadata(cb func(string, string, uint64) error) error {
	minExpirationTs, err := r.readUint64()
	if err != nil {
		return err
	}

	length, _, err := r.readLen()
	if err != nil {
		return err
	}

	for i := 0; i < int(length); i++ {
		expVal, _, err := r.readLen()
		if err != nil {
			return err
		}
		var ttl uint64
		if expVal > 0 {
			ttl = minExpirationTs + expVal
		}
		field, err := r.ReadString()
		if err != nil {
			return err
		}

		value, err := r.ReadString()
		if err != nil {
			return err
		}

		if err := cb(field, value, ttl); err != nil {
			return err
		}
	}

	return nil
}

// ReadHashListpackEx decodes the listpack-packed form of a hash with
// per-field expirations: field/value/ttl triplets packed into one blob.
// For each hash field value TTL triplet read, the cb is called with that triplet.
// It has the same structure as the listpack. The listpack consists of
// field-value-ttl triplets, which are <lpentry> values stored back to back.
func (r *entryDecoder) ReadHashListpackEx(cb func(string, string, uint64) error) error {
	// minExpire is reserved for a future streaming-to-FLASH use case; this
	// decoder has no need to track it, so it's read and discarded.
	if _, err := r.readUint64(); err != nil {
		return err
	}
	listpack, err := r.ReadString()
	if err != nil {
		return err
	}

	reader := r.nested(listpack)

	// <lpbytes>
	if err := reader.skip(4); err != nil {
		return err
	}

	lplen, err := reader.readUint16()
	if err != nil {
		return err
	}

	var limit int
	if lplen == listpackLenBig {
		limit = math.MaxInt
	} else {
		limit = int(lplen)
	}

	// Read entries in triplets (field, value, TTL)
	for i := 0; i < limit; i += 3 {
		field, err := reader.readListpackEntry()
		if err == errLPUnexpectedEnd && limit == math.MaxInt {
			// The listpack size was unbounded and we read <lpend>, as expected
			return nil
		}
		if err != nil {
			return err
		}

		value, err := reader.readListpackEntry()
		if err != nil {
			return err
		}

		expStr, err := reader.readListpackEntry()
		if err != nil {
			return err
		}
		expVal, err := strconv.ParseInt(expStr, 10, 64)
		if err != nil {
			return err
		}

		if err := cb(field, value, uint64(expVal)); err != nil {
			return err
		}
	}

	// <lplen> was < 65535, we should read the <lpend>
	lpend, err := reader.readUint8()
	if err != nil {
		return err
	}

	if lpend != listpackEnd {
		return errLPUnexpectedEnd
	}

	return nil
}

// A listpack blob is <lpbytes><lplen><lpentry>...<lpentry><lpend>: a 4 byte
// total-byte-count, a 2 byte entry count (pinned to 0xFFFF, forcing a full
// scan, once the listpack holds more than 2^16-2 entries), the entries
// themselves, and a trailing 0xFF terminator.
//
// Each entry is <encoding>[<lpentry-data>]<backlen>. encoding is tagged by
// its leading bits:
//
//	0xxxxxxx  7 bit unsigned int, carried entirely in the tag byte
//	10xxxxxx  string, 6 bit length
//	110xxxxx  13 bit signed int (5 tag bits + next byte), big endian
//	1110xxxx  string, 12 bit length (4 tag bits + next byte), big endian
//	11110000  string, 4 byte big endian length follows
//	11110001  2 byte signed int
//	11110010  3 byte signed int
//	11110011  4 byte signed int
//	11110100  8 byte signed int
//
// backlen restates the combined size of encoding+lpentry-data, encoded as
// 1-5 bytes (see backLen in writer.go for the exact bit-packing), so a
// reader can walk the listpack from its tail.
func (r *entryDecoder) readListpack(listpack string, cb func(string) error) (uint64, error) {
	reader := r.nested(listpack)

	// <lpbytes>
	if err := reader.skip(4); err != nil {
		return 0, err
	}

	lplen, err := reader.readUint16()
	if err != nil {
		return 0, err
	}

	var limit int
	if lplen == listpackLenBig {
		limit = math.MaxInt
	} else {
		limit = int(lplen)
	}

	for i := 0; i < limit; i++ {
		entry, err := reader.readListpackEntry()

		if err == errLPUnexpectedEnd && limit == math.MaxInt {
			// The listpack size was unbounded and we read <lpend>, as expected
			return uint64(i), nil
		}

		if err != nil {
			return 0, err
		}

		err = cb(entry)
		if err != nil {
			return 0, err
		}
	}

	// <lplen> was < 65535, we should read the <lpend>
	lpend, err := reader.readUint8()
	if err != nil {
		return 0, err
	}

	if lpend != listpackEnd {
		return 0, errLPUnexpectedEnd
	}

	return uint64(lplen), nil
}

func (r *entryDecoder) readListpackEntry() (string, error) {
	encoding, err := r.readUint8()
	if err != nil {
		return "", err
	}

	if encoding == listpackEnd {
		return "", errLPUnexpectedEnd
	}

	var entry string
	if encoding&0x80 == listpackEncUint7 {
		value := encoding & 0x7F
		entry = strconv.Itoa(int(value))
	} else if encoding&0xE0 == listpackEncInt13 {
		valueLsb, err := r.readUint8()
		if err != nil {
			return "", err
		}

		value := int16(encoding&0x1F) << 8
		value |= int16(valueLsb)
		// This is a signed integer, we need to shift right after setting the sign bit
		value = (value << 3) >> 3

		entry = strconv.Itoa(int(value))
	} else if encoding == listpackEncInt16 {
		val, err := r.readUint16()
		if err != nil {
			return "", err
		}

		entry = strconv.Itoa(int(int16(val)))
	} else if encoding == listpackEncInt24 {
		valueBytes, err := r.read(3)
		if err != nil {
			return "", nil
		}

		value := int32(valueBytes[0])
		value |= int32(valueBytes[1]) << 8
		value |= int32(valueBytes[2]) << 16
		// This is a signed integer, we need to shift right after setting the sign bit
		value = (value << 8) >> 8

		entry = strconv.Itoa(int(value))

	} else if encoding == listpackEncInt32 {
		value, err := r.readUint32()
		if err != nil {
			return "", err
		}

		entry = strconv.Itoa(int(int32(value)))
	} else if encoding == listpackEncInt64 {
		value, err := r.readUint64()
		if err != nil {
			return "", err
		}

		entry = strconv.Itoa(int(int64(value)))
	}

	if entry != "" {
		// read an integer as the entry, we should skip
		// 1 byte (because backlen is < 127) and return

		if err := r.skip(1); err != nil {
			return "", err
		}

		return entry, nil
	}

	var valueLen, backLen int
	if encoding&0xC0 == listpackEnc6bitStrLen {
		valueLen = int(encoding & 0x3F)
		backLen = 1 + valueLen
	} else if encoding&0xF0 == listpackEnc12bitStrLen {
		valueLenLsb, err := r.readUint8()
		if err != nil {
			return "", nil
		}

		valueLen = int(encoding&0x0F)<<8 | int(valueLenLsb)
		backLen = 2 + valueLen
	} else if encoding == listpackEnc32bitStrLen {
		valueLen0, err := r.readUint32()
		if err != nil {
			return "", nil
		}

		valueLen = int(valueLen0)
		backLen = 5 + valueLen
	} else {
		return "", errors.New("unexpected listpack encoding")
	}

	data, err := r.read(valueLen)
	if err != nil {
		return "", nil
	}

	var skip int
	if backLen <= 127 {
		skip = 1
	} else if backLen < 16383 {
		skip = 2
	} else if backLen < 2097151 {
		skip = 3
	} else if backLen < 268435455 {
		skip = 4
	} else {
		skip = 5
	}

	if err := r.skip(skip); err != nil {
		return "", err
	}

	return bytesToString(data), nil
}

func (r *entryDecoder) readZiplistEntry() (string, error) {
	prevLen0, err := r.readUint8()
	if err != nil {
		return "", err
	}

	if prevLen0 == ziplistPrevLenBig {
		err := r.skip(4)
		if err != nil {
			return "", err
		}
	} else if prevLen0 == ziplistEnd {
		return "", errZLUnexpectedEnd
	}

	encoding, err := r.readUint8()
	if err != nil {
		return "", err
	}

	length := -1
	switch encoding & 0xC0 {
	case ziplistEnc6BitStrLen:
		length = int(encoding & 0x3F)
	case ziplistEnc14BitStrLen:
		lengthLsb, err := r.readUint8()
		if err != nil {
			return "", nil
		}

		length = int(encoding&0x3F) << 8
		length = length | int(lengthLsb)
	case ziplistEnc32BitStrLen:
		length0, err := r.readUint32BE()
		if err != nil {
			return "", nil
		}
		length = int(length0)
	}

	if length != -1 {
		data, err := r.read(int(length))
		if err != nil {
			return "", nil
		}

		return bytesToString(data), nil
	}

	// encoding & 0xC0 == 3, since length is read

	switch encoding {
	case ziplistEncInt8:
		entry, err := r.readUint8()
		if err != nil {
			return "", nil
		}

		return strconv.Itoa(int(int8(entry))), nil
	case ziplistEncInt16:
		entry, err := r.readUint16()
		if err != nil {
			return "", nil
		}

		return strconv.Itoa(int(int16(entry))), nil
	case ziplistEncInt24:
		raw, err := r.read(3)
		if err != nil {
			return "", nil
		}

		val := int32(raw[0]) << 8
		val |= int32(raw[1]) << 16
		val |= int32(raw[2]) << 24
		// This is a signed integer, we need to shift right after setting the sign bit
		val >>= 8

		return strconv.Itoa(int(val)), nil
	case ziplistEncInt32:
		val, err := r.readUint32()
		if err != nil {
			return "", nil
		}

		return strconv.Itoa(int(int32(val))), nil
	case ziplistEncInt64:
		val, err := r.readUint64()
		if err != nil {
			return "", nil
		}

		return strconv.Itoa(int(int64(val))), nil
	default:
		// 1111xxxx
		// Unsigned int between 0 and 12, after extracting 1 from the last 4 bits
		return strconv.Itoa(int(encoding - 0xF1)), nil
	}
}

func (r *entryDecoder) readUint8() (uint8, error) {
	b, err := r.src.Get(1)
	if err != nil {
		return 0, err
	}

	value := b[0]
	return value, nil
}

func (r *entryDecoder) readUint16() (uint16, error) {
	b, err := r.src.Get(2)
	if err != nil {
		return 0, err
	}

	value := binary.LittleEndian.Uint16(b)
	return value, nil
}

func (r *entryDecoder) readUint32() (uint32, error) {
	b, err := r.src.Get(4)
	if err != nil {
		return 0, err
	}

	value := binary.LittleEndian.Uint32(b)
	return value, nil
}

func (r *entryDecoder) readUint32BE() (uint32, error) {
	b, err := r.src.Get(4)
	if err != nil {
		return 0, err
	}

	value := binary.BigEndian.Uint32(b)
	return value, nil
}

func (r *entryDecoder) readUint64() (uint64, error) {
	b, err := r.src.Get(8)
	if err != nil {
		return 0, err
	}

	value := binary.LittleEndian.Uint64(b)
	return value, nil
}

func (r *entryDecoder) readUint64BE() (uint64, error) {
	b, err := r.src.Get(8)
	if err != nil {
		return 0, err
	}

	value := binary.BigEndian.Uint64(b)
	return value, nil
}

func (r *entryDecoder) read(n int) ([]byte, error) {
	return r.src.Get(n)
}

func (r *entryDecoder) skip(n int) error {
	_, err := r.src.Get(n)
	return err
}
