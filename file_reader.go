package rdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

const magicStr = "REDIS"
const magicLen = 5
const versionLen = 4
const headerLen = magicLen + versionLen
const crcLen = 8

// ReadFile reads the RDB file at the given path and calls the appropriate
// methods of handler for every object it decodes, for every database and
// key the filter allows. An RDB file has the following form:
//
//	<magic><version>[<select-db>[<resize-db>]<entry>*]*[<aux>*][<module-aux>*][<function>*]<eof>[<crc>]
//
// <magic> is always the string REDIS. <version> is a 4 digit string such
// as "0012". Then comes the optional metadata (aux fields, module aux
// data, function payloads), followed by the actual data stored in the
// file. Each database starts with <select-db>, a length-encoded integer
// prefixed by opcode 254, optionally followed by <resize-db> (opcode 251,
// two length-encoded integers describing the database size and the number
// of keys with an expiry). Then come the <entry>s:
//
//	[<expire-time>[<freq>][<idle>]]<type><key><value>
//
// <expire-time> is opcode 253 (4-byte seconds) or opcode 252 (8-byte
// milliseconds). <freq> (opcode 249, 1 byte) and <idle> (opcode 248,
// length-encoded) carry eviction metadata when present. <type> is one of
// the RDB type tags, <key> is an RDB string and <value> depends on <type>.
// The file ends with opcode 255 (EOF), optionally followed by an 8-byte
// little-endian CRC-64 of everything preceding it (0 if the source had
// checksums disabled). The CRC trailer was added in RDB version 5.
func ReadFile(path string, filter Filter, handler FileHandler) error {
	if filter == nil {
		filter = DefaultFilter{}
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]byte, headerLen)
	n, err := file.Read(header)
	if err != nil {
		return err
	}
	if n != headerLen {
		return io.ErrUnexpectedEOF
	}

	version, err := verifyPreamble(header)
	if err != nil {
		return err
	}

	endsWithCRC := version >= 5

	info, err := file.Stat()
	if err != nil {
		return err
	}

	fileLen := info.Size() - headerLen
	if endsWithCRC {
		// CRC is calculated excluding the last 8 bytes of the payload.
		fileLen -= crcLen
	}

	buf := newFileSpanBuffer(file, int(fileLen), min(int(fileLen), 1<<20))
	if endsWithCRC {
		buf.initCRC(header)
	}

	if err := decodeBody(buf, filter, handler); err != nil {
		return err
	}

	if !endsWithCRC {
		return handler.EndRDB(false)
	}

	trailer := make([]byte, crcLen)
	n, err = file.Read(trailer)
	if err != nil {
		return err
	}
	if n != crcLen {
		return errors.New("unexpected CRC length at the end of the RDB file")
	}

	crc := binary.LittleEndian.Uint64(trailer)
	if crc == 0 {
		// crc calculation can be disabled by the redis config. if it is
		// disabled, the crc bytes are still there but equal to 0.
		return handler.EndRDB(true)
	}

	if buf.crc != crc {
		return errors.New("wrong CRC at the end of the RDB file")
	}

	return handler.EndRDB(true)
}

// Decode reads a complete in-memory RDB snapshot (header through trailing
// checksum) and calls the appropriate methods of handler for every object
// it decodes. It shares ReadFile's framing, and is used whenever the
// bytes are already buffered - most notably the payload a replication
// FULLRESYNC hands over after the handshake.
func Decode(data []byte, filter Filter, handler FileHandler) error {
	if filter == nil {
		filter = DefaultFilter{}
	}

	if len(data) < headerLen {
		return io.ErrUnexpectedEOF
	}

	version, err := verifyPreamble(data[:headerLen])
	if err != nil {
		return err
	}

	endsWithCRC := version >= 5
	body := data[headerLen:]
	if endsWithCRC {
		if len(body) < crcLen {
			return io.ErrUnexpectedEOF
		}
		body = body[:len(body)-crcLen]
	}

	buf := newMemSliceBuffer(body)
	if err := decodeBody(buf, filter, handler); err != nil {
		return err
	}

	if !endsWithCRC {
		return handler.EndRDB(false)
	}

	crc := binary.LittleEndian.Uint64(data[headerLen+len(body):])
	if crc == 0 {
		return handler.EndRDB(true)
	}

	expected := getCRC(0, data[:headerLen+len(body)])
	if expected != crc {
		return errors.New("wrong CRC at the end of the RDB file")
	}

	return handler.EndRDB(true)
}

func verifyPreamble(header []byte) (int, error) {
	if bytesToString(header[:magicLen]) != magicStr {
		return 0, errors.New("wrong signature trying to load DB from file")
	}

	version, err := strconv.Atoi(bytesToString(header[magicLen:]))
	if err != nil {
		return 0, err
	}

	if version < 1 || version > int(Version) {
		return 0, fmt.Errorf("cannot handle RDB format version %d", version)
	}

	return version, nil
}

// decodeBody walks the opcode stream that follows the magic/version
// preamble, stopping right after consuming the EOF opcode. It is shared
// by the file-backed and memory-backed entry points above; only the way
// the CRC trailer is validated differs between them. A key is decoded
// into the real handler only when filter allows its database, type and
// name; otherwise it is decoded into a DiscardHandler, which consumes the
// exact same bytes without reporting anything.
func decodeBody(buf buffer, filter Filter, handler FileHandler) error {
	reader := &entryDecoder{src: buf}

	if err := handler.StartRDB(int(Version)); err != nil {
		return err
	}

	var curDB uint64
	var dbStarted bool
	var dbSize, expiresSize uint64
	var hasExpireTime bool
	var expireTime time.Duration

	endDB := func() error {
		if !dbStarted {
			return nil
		}
		return handler.EndDatabase(curDB, dbSize, expiresSize)
	}

	for {
		t, err := reader.ReadType()
		if err != nil {
			return err
		}

		switch t {
		case typeOpCodeEOF:
			return endDB()
		case typeOpCodeSelectDB:
			if err := endDB(); err != nil {
				return err
			}

			dbnum, _, err := reader.readLen()
			if err != nil {
				return err
			}

			curDB = dbnum
			dbSize = 0
			expiresSize = 0
			dbStarted = true

			if err := handler.StartDatabase(dbnum); err != nil {
				return err
			}
		case typeOpCodeExpireTime:
			t, err := reader.readUint32()
			if err != nil {
				return err
			}
			hasExpireTime = true
			expireTime = time.Duration(t) * time.Second
		case typeOpCodeExpireTimeMS:
			t, err := reader.readUint64()
			if err != nil {
				return err
			}
			hasExpireTime = true
			expireTime = time.Duration(t) * time.Millisecond
		case typeOpCodeResizeDB:
			dbSize, _, err = reader.readLen()
			if err != nil {
				return err
			}

			expiresSize, _, err = reader.readLen()
			if err != nil {
				return err
			}
		case typeOpCodeAux:
			_, err = reader.ReadString() // aux key
			if err != nil {
				return err
			}

			_, err = reader.ReadString() // aux value
			if err != nil {
				return err
			}
		case typeOpCodeFreq:
			_, err = reader.readUint8() // lfu freq
			if err != nil {
				return err
			}
		case typeOpCodeIdle:
			_, _, err = reader.readLen() // lru idle
			if err != nil {
				return err
			}
		case typeOpCodeModuleAux:
			_, _, err = reader.readLen() // module id
			if err != nil {
				return err
			}

			mReader := moduleValueReader{decoder: reader}
			if err := mReader.Skip(); err != nil {
				return err
			}
		case typeOpCodeFunctionPreGA:
			return errors.New("pre-release function format not supported")
		case typeOpCodeFunction2:
			if !handler.AllowPartialRead() {
				return errors.New("restoring function payload is not supported when the partial restore is not allowed")
			}

			_, err = reader.ReadString() // function payload
			if err != nil {
				return err
			}
		default:
			if t > TypeHashListpackEx {
				return fmt.Errorf("unknown RDB encoding type %d", t)
			}

			key, err := reader.ReadString()
			if err != nil {
				return err
			}

			matches := filter.MatchesDB(curDB) && filter.MatchesType(t) && filter.MatchesKey(key)

			var objHandler ValueHandler = handler
			if !matches {
				objHandler = DiscardHandler{}
			}

			if err := reader.readObject(key, t, objHandler); err != nil {
				return err
			}

			if hasExpireTime {
				if matches {
					if err := handler.HandleExpireTime(key, expireTime); err != nil {
						return err
					}
				}
				hasExpireTime = false
			}
		}
	}
}
