package rdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"
	"math/bits"
	"sync"
)

// ValueChecksumSize is the size of the trailing checksum block every
// top-level RDB payload carries: a 2 byte RDB version plus an 8 byte CRC-64.
const ValueChecksumSize = 10

// crc64Poly is the CRC-64 polynomial Redis itself uses (a Jones-variant
// reflected polynomial, distinct from the ISO and ECMA tables hash/crc64
// ships with), so a custom table has to be built rather than reusing one of
// crc64.MakeTable's presets.
const crc64Poly uint64 = 0xAD93D23594C935A9

var crc64TableOnce = sync.OnceValue(buildCRC64Table)

// VerifyValueChecksum validates the trailing checksum block of a top-level
// RDB payload: the RDB version it declares must be one this package
// understands, and the CRC-64 of everything before the block must match the
// CRC-64 stored in it.
func VerifyValueChecksum(payload []byte) error {
	n := len(payload)
	if n < ValueChecksumSize {
		return io.ErrUnexpectedEOF
	}

	version := binary.LittleEndian.Uint16(payload[n-ValueChecksumSize:])
	if version > Version {
		return fmt.Errorf("RDB version %d is not supported", version)
	}

	want := binary.LittleEndian.Uint64(payload[n-8:])
	if got := getCRC(0, payload[:n-8]); got != want {
		return errors.New("invalid CRC value for the payload")
	}

	return nil
}

// getCRC extends a running CRC-64 checksum over payload, using crc as the
// starting state (pass 0 to start fresh).
func getCRC(crc uint64, payload []byte) uint64 {
	table := crc64TableOnce()

	// hash/crc64 pre- and post-inverts the checksum state; Redis does
	// neither, so the inversion is undone on both ends here to line up
	// with what Redis itself computes.
	return ^crc64.Update(^crc, table, payload)
}

func buildCRC64Table() *crc64.Table {
	table := new(crc64.Table)

	for i := range table {
		var crc uint64
		for bit := uint8(1); bit != 0; bit <<= 1 {
			top := crc & 0x8000000000000000
			if uint8(i)&bit != 0 {
				top ^= 0x8000000000000000
			}

			crc <<= 1
			if top != 0 {
				crc ^= crc64Poly
			}
		}

		table[i] = bits.Reverse64(crc)
	}

	return table
}
