package racstream

import "encoding/binary"

// MagicNumber is both the required exact header magic and the minimum
// threshold a trailer's magic must meet to be considered valid. Future
// format revisions may write a larger trailer magic; readers accept any
// value >= MagicNumber.
const MagicNumber uint64 = 0x0000000002498634

// minRawLength is the smallest raw input length NewChunkReader accepts
// before reading anything; shorter inputs fail with ErrInvalidFile. It is
// larger than the 9 bytes a bare header needs (8-byte magic + a 1-byte
// zero config length varint); the 8+8+8 trailer region is not required
// for this minimum, only for trailer use. spec.md requires
// rawLength >= 16 before anything is read.
const minRawLength = 16

// trailerSize is the fixed-size tail written after the directory chunk
// frame: directoryStart (8B) + totalLogicalLength (8B) + trailer magic (8B).
const trailerSize = 24

// uvarint decodes an unsigned variable-length integer (7-bit groups, MSB
// continuation) from an in-memory buffer, as used for the chunk
// directory payload. Returns the value and the number of bytes consumed,
// n == 0 for a short buffer, or n < 0 on overflow, as
// encoding/binary.Uvarint does.
func uvarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}

// putUvarint appends v to buf and returns the resulting slice.
func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
