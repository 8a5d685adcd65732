package racstream

import (
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"sort"

	"racstream/internal/logging"
)

// smallDirectoryThreshold is the entry count below which FindOwningChunk
// uses a plain linear scan instead of the binary-search bracket, per
// spec.md §4.A.
const smallDirectoryThreshold = 100

// ChunkRecord describes one physical chunk's place in the logical byte
// stream.
type ChunkRecord struct {
	LogicalStart  int64
	PhysicalStart int64
	LogicalLength int64
}

// ChunkDirectory is an in-memory, append-ordered index mapping logical
// ranges to physical chunk records. It is built once at reader
// construction and is immutable thereafter, so it is safe for
// concurrent read by clones of a LogicalCursor.
type ChunkDirectory struct {
	entries             []ChunkRecord // append order; later entries shadow earlier ones
	sortedIdx           []int         // indices into entries, sorted by LogicalStart, ties preserve append order
	totalLogicalLength  int64
	maxLogicalLength    int64
	directoryStart      int64 // physical offset of the directory frame; fileLength if scan-recovered
	recoveredByScanning bool
}

func newChunkDirectory(entries []ChunkRecord, totalLogicalLength, directoryStart int64, recovered bool) *ChunkDirectory {
	sortedIdx := make([]int, len(entries))
	var maxLen int64
	for i := range entries {
		sortedIdx[i] = i
		if entries[i].LogicalLength > maxLen {
			maxLen = entries[i].LogicalLength
		}
	}
	sort.SliceStable(sortedIdx, func(a, b int) bool {
		return entries[sortedIdx[a]].LogicalStart < entries[sortedIdx[b]].LogicalStart
	})
	return &ChunkDirectory{
		entries:             entries,
		sortedIdx:           sortedIdx,
		totalLogicalLength:  totalLogicalLength,
		maxLogicalLength:    maxLen,
		directoryStart:      directoryStart,
		recoveredByScanning: recovered,
	}
}

// Len returns the number of chunk records, in append order.
func (d *ChunkDirectory) Len() int { return len(d.entries) }

// Entry returns the i-th chunk record in append order.
func (d *ChunkDirectory) Entry(i int) ChunkRecord { return d.entries[i] }

// TotalLogicalLength returns the total size of the logical stream.
func (d *ChunkDirectory) TotalLogicalLength() int64 { return d.totalLogicalLength }

// MaxLogicalLength returns the largest LogicalLength across all entries.
func (d *ChunkDirectory) MaxLogicalLength() int64 { return d.maxLogicalLength }

// RecoveredByScanning reports whether this directory was reconstructed
// by scanning the body rather than loaded from a trailer.
func (d *ChunkDirectory) RecoveredByScanning() bool { return d.recoveredByScanning }

// FindOwningChunk returns the index of the entry that owns logical
// position p: the last entry (in append order) whose range contains p.
// Returns ErrOutOfRange if no entry covers p.
func (d *ChunkDirectory) FindOwningChunk(p int64) (int, error) {
	if len(d.entries) < smallDirectoryThreshold {
		return d.linearFindOwning(p)
	}
	return d.bracketedFindOwning(p)
}

// RunLength returns how many consecutive logical positions starting at p
// are still owned by entry idx (the value FindOwningChunk(p) would have
// returned). Ownership ends either at idx's own declared end or, sooner,
// at the first position where some later-appended entry begins a range
// that overlaps idx's — since that later entry would outrank idx for any
// position within its own span. A caller holding idx's decompressed
// buffer must re-resolve once it reaches p+RunLength(idx, p); copying
// past that point would silently surface bytes idx no longer owns.
func (d *ChunkDirectory) RunLength(idx int, p int64) int64 {
	e := d.entries[idx]
	end := e.LogicalStart + e.LogicalLength
	if boundary := d.nextShadowStart(idx, p, end); boundary < end {
		end = boundary
	}
	return end - p
}

// nextShadowStart returns the smallest LogicalStart strictly greater
// than p, among entries appended after idx, that is itself less than
// limit - or limit if no such entry exists. Entries are scanned in
// ascending LogicalStart order via sortedIdx so the first match found is
// the nearest one.
func (d *ChunkDirectory) nextShadowStart(idx int, p, limit int64) int64 {
	start := sort.Search(len(d.sortedIdx), func(i int) bool {
		return d.entries[d.sortedIdx[i]].LogicalStart > p
	})
	for i := start; i < len(d.sortedIdx); i++ {
		candidate := d.sortedIdx[i]
		ls := d.entries[candidate].LogicalStart
		if ls >= limit {
			break
		}
		if candidate > idx {
			return ls
		}
	}
	return limit
}

func (d *ChunkDirectory) linearFindOwning(p int64) (int, error) {
	best := -1
	for i, e := range d.entries {
		if e.LogicalStart <= p && p < e.LogicalStart+e.LogicalLength {
			best = i
		}
	}
	if best == -1 {
		return 0, ErrOutOfRange
	}
	return best, nil
}

func (d *ChunkDirectory) bracketedFindOwning(p int64) (int, error) {
	lowerBound := p - d.maxLogicalLength - 1
	start := sort.Search(len(d.sortedIdx), func(i int) bool {
		return d.entries[d.sortedIdx[i]].LogicalStart >= lowerBound
	})
	best := -1
	for i := start; i < len(d.sortedIdx); i++ {
		idx := d.sortedIdx[i]
		e := d.entries[idx]
		if e.LogicalStart > p {
			break // sorted ascending by LogicalStart: no further candidate can start <= p
		}
		if p < e.LogicalStart+e.LogicalLength && (best == -1 || idx > best) {
			best = idx
		}
	}
	if best == -1 {
		return 0, ErrOutOfRange
	}
	return best, nil
}

// buildChunkDirectory builds the directory for a freshly opened file,
// trying the trailer path first and falling through to scan recovery on
// any validation failure, per spec.md §4.A.
func buildChunkDirectory(r RawInput, transform ReadTransform, fileLength, bodyStart int64, logger *slog.Logger) (*ChunkDirectory, error) {
	logger = logging.Default(logger)

	dir, ok, err := buildDirectoryFromTrailer(r, transform, fileLength)
	if err == nil && ok {
		logger.Debug("chunk directory loaded from trailer", "entries", dir.Len())
		return dir, nil
	}
	if err != nil {
		logger.Debug("trailer directory load failed, falling back to scan", "error", err)
	}

	dir, err = buildDirectoryByScan(r, bodyStart, fileLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	logger.Debug("chunk directory recovered by scanning", "entries", dir.Len())
	return dir, nil
}

// buildDirectoryFromTrailer implements spec.md §4.A construction path 1.
// ok is false whenever the trailer is absent or fails validation; err is
// non-nil only for genuine I/O failures, not for "no trailer present".
func buildDirectoryFromTrailer(r RawInput, transform ReadTransform, fileLength int64) (dir *ChunkDirectory, ok bool, err error) {
	if fileLength < trailerSize {
		return nil, false, nil
	}
	if _, err := r.Seek(fileLength-16, io.SeekStart); err != nil {
		return nil, false, err
	}
	totalLogicalLength, err := r.ReadLong()
	if err != nil {
		return nil, false, err
	}
	trailerMagic, err := r.ReadLong()
	if err != nil {
		return nil, false, err
	}
	if uint64(trailerMagic) < MagicNumber {
		return nil, false, nil
	}

	if _, err := r.Seek(fileLength-trailerSize, io.SeekStart); err != nil {
		return nil, false, err
	}
	directoryStart, err := r.ReadLong()
	if err != nil {
		return nil, false, err
	}
	if directoryStart < 0 || directoryStart >= fileLength {
		return nil, false, nil
	}

	if _, err := r.Seek(directoryStart, io.SeekStart); err != nil {
		return nil, false, err
	}
	// The directory frame's own on-disk logicalStart has no independent
	// expectation to check it against here - it is whatever the writer
	// recorded (conventionally totalLogicalLength) - so framing is not
	// verified on this path. refillMiss verifies it for every chunk
	// frame since it already knows the expected value from the directory.
	payload, _, err := readAndDecodeFrame(r, transform, true)
	if err != nil {
		return nil, false, nil // treat any frame/CRC failure as "no usable trailer"
	}

	entries, parseErr := parseDirectoryPayload(payload)
	if parseErr != nil {
		return nil, false, nil
	}
	if err := validateEntries(entries, totalLogicalLength); err != nil {
		return nil, false, nil
	}

	return newChunkDirectory(entries, totalLogicalLength, directoryStart, false), true, nil
}

// parseDirectoryPayload decodes the decompressed directory payload:
// varint(count), then count * (logicalStart, physicalStart, logicalLength).
func parseDirectoryPayload(payload []byte) ([]ChunkRecord, error) {
	count, n := uvarint(payload)
	if n <= 0 {
		return nil, ErrDirectoryCorrupt
	}
	payload = payload[n:]

	entries := make([]ChunkRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		logicalStart, n1 := uvarint(payload)
		if n1 <= 0 {
			return nil, ErrDirectoryCorrupt
		}
		payload = payload[n1:]

		physicalStart, n2 := uvarint(payload)
		if n2 <= 0 {
			return nil, ErrDirectoryCorrupt
		}
		payload = payload[n2:]

		logicalLength, n3 := uvarint(payload)
		if n3 <= 0 {
			return nil, ErrDirectoryCorrupt
		}
		payload = payload[n3:]

		entries = append(entries, ChunkRecord{
			LogicalStart:  int64(logicalStart),
			PhysicalStart: int64(physicalStart),
			LogicalLength: int64(logicalLength),
		})
	}
	return entries, nil
}

// validateEntries checks spec.md §3's directory invariants.
func validateEntries(entries []ChunkRecord, total int64) error {
	for _, e := range entries {
		if e.LogicalStart < 0 || e.LogicalStart > total {
			return ErrDirectoryCorrupt
		}
		if e.LogicalLength < 0 {
			return ErrDirectoryCorrupt
		}
		if e.LogicalStart+e.LogicalLength > total {
			return ErrDirectoryCorrupt
		}
	}
	return nil
}

// buildDirectoryByScan implements spec.md §4.A construction path 2: parse
// chunk frame headers sequentially from bodyStart to fileLength, without
// decompressing or verifying CRC, recording one entry per frame and
// accumulating totalLogicalLength. If the file's tail still holds the
// directory's own chunk frame (only the 24-byte trailer region was lost),
// that frame is scanned and recorded like any other. A producer that
// encodes it with logicalStart equal to the true total logical length
// keeps it from owning any position below that length, but the recovered
// total then extends past the real data by the directory payload's
// length, and positions in that extension resolve to the directory frame.
func buildDirectoryByScan(r RawInput, bodyStart, fileLength int64) (*ChunkDirectory, error) {
	if _, err := r.Seek(bodyStart, io.SeekStart); err != nil {
		return nil, err
	}

	var entries []ChunkRecord
	var total int64
	for {
		pos, err := r.Tell()
		if err != nil {
			return nil, err
		}
		if pos >= fileLength {
			break
		}

		logicalStart, err := r.ReadVarLong()
		if err != nil {
			return nil, fmt.Errorf("%w: frame header at %d: %v", ErrDirectoryCorrupt, pos, err)
		}
		if _, err := r.ReadVarLong(); err != nil { // chunkCRC, unused during scan
			return nil, fmt.Errorf("%w: frame header at %d: %v", ErrDirectoryCorrupt, pos, err)
		}
		compressedSize, err := r.ReadVarLong()
		if err != nil {
			return nil, fmt.Errorf("%w: frame header at %d: %v", ErrDirectoryCorrupt, pos, err)
		}
		logicalLength, err := r.ReadVarLong()
		if err != nil {
			return nil, fmt.Errorf("%w: frame header at %d: %v", ErrDirectoryCorrupt, pos, err)
		}
		if _, err := r.Seek(int64(compressedSize), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("%w: skipping frame at %d: %v", ErrDirectoryCorrupt, pos, err)
		}

		entries = append(entries, ChunkRecord{
			LogicalStart:  int64(logicalStart),
			PhysicalStart: pos,
			LogicalLength: int64(logicalLength),
		})
		if end := int64(logicalStart) + int64(logicalLength); end > total {
			total = end
		}
	}

	return newChunkDirectory(entries, total, fileLength, true), nil
}

// readAndDecodeFrame reads one chunk frame at the current RawInput
// position (header + compressedSize bytes of payload), applies
// transform, and returns the decompressed payload together with the
// frame's on-disk logicalStart. If verifyCRC is set, a CRC mismatch is
// reported as an error.
func readAndDecodeFrame(r RawInput, transform ReadTransform, verifyCRC bool) ([]byte, int64, error) {
	onDiskLogicalStart, err := r.ReadVarLong()
	if err != nil {
		return nil, 0, err
	}
	chunkCRC, err := r.ReadVarLong()
	if err != nil {
		return nil, 0, err
	}
	chunkCRC &= 0xFFFFFFFF // spec.md §9: high bits reserved-must-be-zero, accepted silently on read
	compressedSize, err := r.ReadVarLong()
	if err != nil {
		return nil, 0, err
	}
	logicalLength, err := r.ReadVarLong()
	if err != nil {
		return nil, 0, err
	}

	compressed := make([]byte, compressedSize)
	if err := r.ReadBytes(compressed); err != nil {
		return nil, 0, err
	}

	dst := make([]byte, logicalLength)
	n, err := transform.Transform(compressed, 0, int(compressedSize), dst, int(logicalLength))
	if err != nil {
		return nil, 0, err
	}
	if n < 0 {
		dst = compressed
	} else if int64(n) != logicalLength {
		return nil, 0, ErrDecodeSizeMismatch
	}

	if verifyCRC {
		if uint64(crc32.ChecksumIEEE(dst)) != chunkCRC {
			return nil, 0, ErrCrcMismatch
		}
	}
	return dst, int64(onDiskLogicalStart), nil
}
