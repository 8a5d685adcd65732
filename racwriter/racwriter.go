// Package racwriter builds racstream-format byte buffers for tests. It
// is not a production writer: it exists only to synthesize fixtures
// (including deliberately malformed ones) that exercise ChunkReader's
// read paths, since racstream itself has no write side.
package racwriter

import (
	"encoding/binary"
	"hash/crc32"
)

// Writer accumulates a racstream file in memory.
type Writer struct {
	buf     []byte
	entries []directoryEntry
}

type directoryEntry struct {
	logicalStart  int64
	physicalStart int64
	logicalLength int64
}

// New starts a new file with the given header config (may be empty).
func New(config []byte) *Writer {
	w := &Writer{}
	w.putLong(0x0000000002498634)
	w.putUvarint(uint64(len(config)))
	w.buf = append(w.buf, config...)
	return w
}

// CompressFunc compresses a chunk's raw payload for on-disk storage. To
// build an uncompressed fixture, pass Identity (which returns src
// unchanged) and read the file with a ReadTransform that reports
// pass-through.
type CompressFunc func(src []byte) []byte

// WriteChunk appends one chunk frame holding payload, logically
// positioned at logicalStart, compressed by compress. The CRC recorded
// in the frame is always computed over the uncompressed payload, as
// ChunkReader verifies it after decompression.
func (w *Writer) WriteChunk(logicalStart int64, payload []byte, compress CompressFunc) {
	physicalStart := int64(len(w.buf))
	compressed := compress(payload)
	crc := crc32.ChecksumIEEE(payload)

	w.putUvarint(uint64(logicalStart))
	w.putUvarint(uint64(crc))
	w.putUvarint(uint64(len(compressed)))
	w.putUvarint(uint64(len(payload)))
	w.buf = append(w.buf, compressed...)

	w.entries = append(w.entries, directoryEntry{
		logicalStart:  logicalStart,
		physicalStart: physicalStart,
		logicalLength: int64(len(payload)),
	})
}

// WriteRawFrame appends an arbitrary, possibly-malformed frame header
// followed by raw bytes, bypassing CRC/compress bookkeeping. Used to
// construct corruption fixtures (bad CRC, truncated frames, and so on).
func (w *Writer) WriteRawFrame(logicalStart int64, crc uint32, payload []byte, declaredLogicalLength int64) {
	w.putUvarint(uint64(logicalStart))
	w.putUvarint(uint64(crc))
	w.putUvarint(uint64(len(payload)))
	w.putUvarint(uint64(declaredLogicalLength))
	w.buf = append(w.buf, payload...)
}

// totalLogicalLength returns the high-water mark of logicalStart+
// logicalLength across all WriteChunk calls so far. Summing lengths
// would overcount whenever a later chunk overwrites a range an earlier
// one already covers; the declared stream size is the furthest logical
// position any chunk reaches, not the sum of their individual sizes.
func (w *Writer) totalLogicalLength() int64 {
	var total int64
	for _, e := range w.entries {
		if end := e.logicalStart + e.logicalLength; end > total {
			total = end
		}
	}
	return total
}

// FinishWithTrailer appends the directory chunk frame plus the fixed
// trailer, and returns the complete file bytes. The directory frame is
// logically positioned at the end of the real data (logicalStart ==
// total so far), so it can never shadow or be selected as the owner of
// any position within the real logical stream, whether loaded via the
// trailer or recovered by scanning a file whose only damage is to the
// final 24 trailer bytes.
func (w *Writer) FinishWithTrailer(compress CompressFunc) []byte {
	payload := w.encodeDirectory()
	directoryStart := int64(len(w.buf))
	w.WriteChunk(w.totalLogicalLength(), payload, compress)
	// WriteChunk recorded a directory-entry for this frame too; drop it,
	// it must never appear in the readable directory itself.
	w.entries = w.entries[:len(w.entries)-1]

	total := w.totalLogicalLength()
	w.putLong(directoryStart)
	w.putLong(total)
	w.putLong(int64(0x0000000002498634))
	return w.buf
}

// FinishWithoutTrailer returns the file bytes as accumulated so far,
// with no trailer, forcing scan-recovery on read.
func (w *Writer) FinishWithoutTrailer() []byte {
	return w.buf
}

// encodeDirectory renders the accumulated entries in the on-disk
// directory payload format: varint(count), then per-entry
// (logicalStart, physicalStart, logicalLength).
func (w *Writer) encodeDirectory() []byte {
	var payload []byte
	payload = putUvarintTo(payload, uint64(len(w.entries)))
	for _, e := range w.entries {
		payload = putUvarintTo(payload, uint64(e.logicalStart))
		payload = putUvarintTo(payload, uint64(e.physicalStart))
		payload = putUvarintTo(payload, uint64(e.logicalLength))
	}
	return payload
}

func (w *Writer) putLong(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) putUvarint(v uint64) {
	w.buf = putUvarintTo(w.buf, v)
}

func putUvarintTo(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// Identity is a CompressFunc that performs no compression.
func Identity(src []byte) []byte {
	return append([]byte(nil), src...)
}
