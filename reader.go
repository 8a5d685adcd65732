package racstream

import (
	"fmt"
	"io"
	"log/slog"

	"racstream/internal/logging"
)

// Options configures a ChunkReader. The zero value is valid: a fresh
// SharedBufferPool and DecompressionCache are created with default
// sizing, and logging is discarded.
type Options struct {
	// BufferPool supplies decompressed chunk buffers. Share one pool
	// across readers opened against the same underlying storage to
	// amortize allocation.
	BufferPool *SharedBufferPool

	// Cache memoizes decompressed chunks. Share one across readers the
	// same way as BufferPool, or leave nil to get a private cache sized
	// by CacheEntries.
	Cache *DecompressionCache

	// CacheEntries sizes a private cache when Cache is nil. <= 0 selects
	// defaultCacheEntries.
	CacheEntries int

	// Logger receives lifecycle-boundary diagnostics (open, directory
	// recovery mode). Nil selects a discard logger.
	Logger *slog.Logger
}

// ChunkReader opens a racstream file, parsing its header and chunk
// directory, and serves decompressed chunk payloads to LogicalCursors.
// A ChunkReader is safe for concurrent use by multiple cursors.
type ChunkReader struct {
	raw       RawInput
	transform ReadTransform
	dir       *ChunkDirectory
	bufPool   *SharedBufferPool
	cache     *DecompressionCache
	logger    *slog.Logger
	bodyStart int64
}

// NewChunkReader parses the header at the start of raw, builds the
// chunk directory (via trailer or scan recovery), and returns a reader
// ready to serve cursors. transform is used as a prototype: each
// concurrent decompression gets its own Copy() of it.
func NewChunkReader(raw RawInput, transform ReadTransform, opts Options) (*ChunkReader, error) {
	logger := logging.Default(opts.Logger)

	length, err := raw.Length()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if length < minRawLength {
		return nil, ErrInvalidFile
	}

	if _, err := raw.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	magic, err := raw.ReadLong()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if uint64(magic) != MagicNumber {
		return nil, ErrInvalidFile
	}

	configLen, err := raw.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	config := make([]byte, configLen)
	if configLen > 0 {
		if err := raw.ReadBytes(config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	}
	if err := transform.SetConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	bodyStart, err := raw.Tell()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	dir, err := buildChunkDirectory(raw, transform, length, bodyStart, logger)
	if err != nil {
		return nil, err
	}

	bufPool := opts.BufferPool
	if bufPool == nil {
		bufPool = NewSharedBufferPool()
	}
	cache := opts.Cache
	if cache == nil {
		var cacheErr error
		cache, cacheErr = NewDecompressionCache(opts.CacheEntries)
		if cacheErr != nil {
			return nil, cacheErr
		}
	}

	logger.Debug("chunk reader opened", "entries", dir.Len(), "totalLogicalLength", dir.TotalLogicalLength(), "scanRecovered", dir.RecoveredByScanning())

	return &ChunkReader{
		raw:       raw,
		transform: transform,
		dir:       dir,
		bufPool:   bufPool,
		cache:     cache,
		logger:    logger,
		bodyStart: bodyStart,
	}, nil
}

// TotalLength returns the logical stream's total length.
func (r *ChunkReader) TotalLength() int64 { return r.dir.TotalLogicalLength() }

// Directory exposes the reader's chunk directory, chiefly for tests and
// diagnostics.
func (r *ChunkReader) Directory() *ChunkDirectory { return r.dir }

// NewCursor returns a LogicalCursor positioned at logical offset 0,
// bounded to the whole stream.
func (r *ChunkReader) NewCursor() *LogicalCursor {
	return &LogicalCursor{
		reader:           r,
		logicalBase:      0,
		maxLogicalLength: r.dir.TotalLogicalLength(),
	}
}

// Close releases the underlying RawInput. Buffers already handed out to
// cursors remain valid until released.
func (r *ChunkReader) Close() error {
	return r.raw.Close()
}

// chunkAt resolves the chunk owning logical position pos, relative to
// the reader's full (unsliced) logical space, returning a retained
// SharedBuffer. Callers must Release it.
func (r *ChunkReader) chunkAt(pos int64) (*SharedBuffer, error) {
	buf, _, err := r.resolve(pos)
	return buf, err
}

// resolve is chunkAt plus the owning entry's directory index, which
// LogicalCursor needs to bound how far it may read from the returned
// buffer before a later-appended, shadowing chunk takes over mid-span
// (ChunkDirectory.RunLength).
func (r *ChunkReader) resolve(pos int64) (*SharedBuffer, int, error) {
	if pos < 0 {
		return nil, 0, ErrOutOfRange
	}
	total := r.dir.TotalLogicalLength()
	if pos >= total {
		return nil, 0, ErrEndOfStream
	}

	idx, err := r.dir.FindOwningChunk(pos)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: logical position %d", ErrChunkNotFound, pos)
	}
	entry := r.dir.Entry(idx)

	if buf, ok := r.cache.Get(entry.LogicalStart); ok {
		return buf, idx, nil
	}
	buf, err := r.refillMiss(entry)
	if err != nil {
		return nil, 0, err
	}
	return buf, idx, nil
}

// refillMiss decompresses entry's payload, serving a concurrent second
// caller from cache if one fills it first. The per-key critical section
// guarantees only one goroutine decompresses a given chunk at a time; a
// goroutine that wakes from the lock re-checks the cache rather than
// assuming the winner's result is still resident, since a weakly held
// entry may be reclaimed between the winner's Put and this wake.
func (r *ChunkReader) refillMiss(entry ChunkRecord) (*SharedBuffer, error) {
	r.cache.Lock(entry.LogicalStart)
	defer r.cache.Unlock(entry.LogicalStart)

	if buf, ok := r.cache.Get(entry.LogicalStart); ok {
		return buf, nil
	}

	clone, err := r.raw.Clone()
	if err != nil {
		return nil, err
	}
	defer clone.Close()

	if _, err := clone.Seek(entry.PhysicalStart, io.SeekStart); err != nil {
		return nil, err
	}
	payload, onDiskLogicalStart, err := readAndDecodeFrame(clone, r.transform.Copy(), true)
	if err != nil {
		return nil, err
	}
	if onDiskLogicalStart != entry.LogicalStart {
		return nil, fmt.Errorf("%w: physical offset %d: directory expected logicalStart %d, frame holds %d",
			ErrFramingMismatch, entry.PhysicalStart, entry.LogicalStart, onDiskLogicalStart)
	}

	buf := r.bufPool.Acquire(len(payload), entry.LogicalStart)
	copy(buf.Bytes(), payload)
	r.cache.Put(entry.LogicalStart, buf)

	return buf, nil
}
