package racstream

import "errors"

// Error kinds returned by this package. Recovery, if any, is the
// caller's choice; construction-time fallback (trailer -> scan) happens
// internally and is never surfaced as one of these unless both paths
// fail.
var (
	// ErrInvalidFile is returned when the raw file is too short to hold a
	// header, the header magic does not match, or both directory
	// construction paths (trailer and scan) fail.
	ErrInvalidFile = errors.New("racstream: invalid file")

	// ErrDirectoryCorrupt is returned internally by directory construction
	// when scan recovery itself cannot parse a chunk frame. Callers
	// observe this wrapped inside ErrInvalidFile.
	ErrDirectoryCorrupt = errors.New("racstream: chunk directory corrupt")

	// ErrFramingMismatch is returned when the on-disk logicalStart of a
	// chunk frame disagrees with the position the reader expected.
	ErrFramingMismatch = errors.New("racstream: chunk framing mismatch")

	// ErrCrcMismatch is returned when a decompressed chunk's CRC-32
	// disagrees with the value stored in its frame.
	ErrCrcMismatch = errors.New("racstream: chunk CRC mismatch")

	// ErrDecodeSizeMismatch is returned when a transform produces a
	// number of bytes different from the frame's declared logical length.
	ErrDecodeSizeMismatch = errors.New("racstream: transform output size mismatch")

	// ErrEndOfStream is returned when a read or refill is attempted past
	// the end of the logical stream.
	ErrEndOfStream = errors.New("racstream: end of stream")

	// ErrOutOfRange is returned when a LogicalCursor Seek or Slice targets
	// a position outside the cursor's view, and by
	// ChunkDirectory.FindOwningChunk when no entry covers a position.
	ErrOutOfRange = errors.New("racstream: seek out of range")

	// ErrChunkNotFound is returned when chunk resolution cannot locate
	// any entry covering a requested logical position; this indicates
	// producer-side corruption (an unresolvable "hole").
	ErrChunkNotFound = errors.New("racstream: chunk not found")

	// ErrAlreadyClosed is returned by a second Close of a LogicalCursor,
	// and by any operation attempted after Close.
	ErrAlreadyClosed = errors.New("racstream: cursor already closed")

	// ErrOperationAborted denotes an interrupted I/O or cache wait. No
	// operation in this package returns it: RawInput calls and
	// DecompressionCache.Lock waits cannot be cancelled.
	ErrOperationAborted = errors.New("racstream: operation aborted")
)
