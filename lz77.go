package rdb

import "errors"

var errCorruptContent = errors.New("corrupt compressed string content")

// decompressLZ77 expands src, which was compressed with FastLZ's level-1
// algorithm (an LZ77 variant; see https://github.com/ariya/FastLZ), into a
// buffer of exactly outLen bytes.
//
// src is a run of opcodes, each starting with a tag byte:
//   - 000xxxxx: literal run. Copy (tag+1) bytes straight from src to the output.
//   - 111xxxxx: long match. Copy a run from earlier in the output; its length
//     is 9 plus the next src byte, and its start is 256*(tag&0x1F) + the byte
//     after that, counted back from the current output position.
//   - anything else: short match, same shape as a long match but the length
//     is 2 + the top 3 tag bits instead of a separate length byte.
//
// A match's source and destination ranges can overlap (the back-reference
// can point partway into bytes the match itself is still writing), so
// overlapping matches are expanded one byte at a time rather than via a bulk
// copy.
func decompressLZ77(src []byte, outLen int) ([]byte, error) {
	srcPos := 0
	srcLen := len(src)
	outIdx := 0
	out := make([]byte, 0, outLen)

	for srcPos < srcLen {
		ctrl := src[srcPos]
		srcPos++

		if ctrl < 32 {
			// Literal run, there are ctrl + 1 many bytes to copy from src to out
			run := int(ctrl + 1)

			if srcLen < srcPos+run {
				return nil, errCorruptContent
			}

			if outLen < outIdx+run {
				return nil, errCorruptContent
			}

			out = append(out, src[srcPos:srcPos+run]...)
			srcPos += run
			outIdx += run
		} else {
			// Back reference, we will be copying some bytes from the out to out
			matchLen := int(ctrl>>5) + 2

			if srcLen <= srcPos {
				return nil, errCorruptContent
			}

			if matchLen == 9 {
				// Long match, match len is 9 + next byte
				matchLen += int(src[srcPos])
				srcPos++

				if srcLen <= srcPos {
					return nil, errCorruptContent
				}
			}

			backRef := outIdx - (int(ctrl&0x1F) << 8) - 1
			backRef -= int(src[srcPos])
			srcPos++

			if outLen < outIdx+matchLen {
				return nil, errCorruptContent
			}

			if backRef < 0 {
				return nil, errCorruptContent
			}

			if backRef+matchLen < outIdx {
				// We have all the data we need to copy in the out buffer
				out = append(out, out[backRef:backRef+matchLen]...)
				outIdx += matchLen
			} else {
				// We need to copy more data than what we currently have in out
				outIdx += matchLen
				for matchLen > 0 {
					out = append(out, out[backRef])
					backRef++
					matchLen--
				}
			}
		}
	}

	if outIdx != outLen {
		return nil, errCorruptContent
	}

	return out, nil
}
