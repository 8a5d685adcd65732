package racstream

import (
	"fmt"
	"runtime"
)

// LogicalCursor is a seekable read position into a ChunkReader's
// logical byte stream. A cursor keeps a retained reference to whichever
// chunk buffer currently covers its position, releasing it when a read
// (after sequential progress or a Seek) lands past the boundary where a
// different chunk takes over ownership, so repeated small reads within
// one uninterrupted run don't re-resolve the directory each time.
//
// A LogicalCursor is not safe for concurrent use; Clone an independent
// cursor per goroutine instead.
type LogicalCursor struct {
	reader           *ChunkReader
	logicalBase      int64 // offset into reader's logical space where this cursor's 0 sits
	maxLogicalLength int64 // this cursor's view length, starting at logicalBase
	pos              int64 // current position, relative to logicalBase
	curBuf           *SharedBuffer
	curRunStart      int64 // absolute logical position curBuf was resolved at
	curRunEnd        int64 // absolute logical position where curBuf's owner stops owning
	closed           bool
	closedAt         string // file:line of the first Close, for a second Close's error
}

// Tell returns the cursor's current logical position, relative to its
// own view (0 at the start of whatever Slice produced it, if any).
func (c *LogicalCursor) Tell() int64 { return c.pos }

// Length returns the length of this cursor's view.
func (c *LogicalCursor) Length() int64 { return c.maxLogicalLength }

// Seek repositions the cursor within its view. It does not itself touch
// any chunk buffer; resolution happens lazily on the next read.
func (c *LogicalCursor) Seek(pos int64) error {
	if c.closed {
		return ErrAlreadyClosed
	}
	if pos < 0 || pos > c.maxLogicalLength {
		return ErrOutOfRange
	}
	c.pos = pos
	return nil
}

// ReadByte returns the next byte and advances the cursor by one.
func (c *LogicalCursor) ReadByte() (byte, error) {
	if c.closed {
		return 0, ErrAlreadyClosed
	}
	if c.pos >= c.maxLogicalLength {
		return 0, ErrEndOfStream
	}
	buf, off, _, err := c.reconcilePosition(c.pos)
	if err != nil {
		return 0, err
	}
	b := buf.Bytes()[off]
	c.pos++
	return b, nil
}

// ReadBytes fills as much of dst as the view has remaining, returning
// the number of bytes read. It returns ErrEndOfStream only when zero
// bytes could be read because the cursor is already at the end of its
// view; a short, non-zero read at the end of the view is not an error.
func (c *LogicalCursor) ReadBytes(dst []byte) (int, error) {
	if c.closed {
		return 0, ErrAlreadyClosed
	}
	var n int
	for n < len(dst) {
		if c.pos >= c.maxLogicalLength {
			if n == 0 {
				return 0, ErrEndOfStream
			}
			break
		}

		buf, off, runEnd, err := c.reconcilePosition(c.pos)
		if err != nil {
			if n > 0 {
				break
			}
			return 0, err
		}

		avail := runEnd - (c.logicalBase + c.pos) // bytes before the next owner takes over
		remainInView := c.maxLogicalLength - c.pos
		want := int64(len(dst) - n)
		toCopy := min(avail, remainInView, want)

		copy(dst[n:], buf.Bytes()[off:off+int(toCopy)])
		n += int(toCopy)
		c.pos += toCopy
	}
	return n, nil
}

// Clone returns an independent cursor over the same view, positioned
// where c currently is, sharing c's currently resolved buffer (with an
// added reference) so the clone doesn't have to re-resolve it.
func (c *LogicalCursor) Clone() (*LogicalCursor, error) {
	if c.closed {
		return nil, ErrAlreadyClosed
	}
	clone := &LogicalCursor{
		reader:           c.reader,
		logicalBase:      c.logicalBase,
		maxLogicalLength: c.maxLogicalLength,
		pos:              c.pos,
		curRunStart:      c.curRunStart,
		curRunEnd:        c.curRunEnd,
	}
	if c.curBuf != nil {
		clone.curBuf = c.curBuf.Retain()
	}
	return clone, nil
}

// Slice returns a new cursor over the sub-range [offset, offset+length)
// of c's current view, positioned at its own offset 0. It does not
// consume or affect c's position.
func (c *LogicalCursor) Slice(offset, length int64) (*LogicalCursor, error) {
	if c.closed {
		return nil, ErrAlreadyClosed
	}
	if offset < 0 || length < 0 || offset+length > c.maxLogicalLength {
		return nil, ErrOutOfRange
	}
	return &LogicalCursor{
		reader:           c.reader,
		logicalBase:      c.logicalBase + offset,
		maxLogicalLength: length,
	}, nil
}

// Close releases the cursor's held chunk buffer, if any. A cursor must
// not be used after Close; a second Close returns ErrAlreadyClosed,
// wrapped with the call site of the first Close.
func (c *LogicalCursor) Close() error {
	if c.closed {
		return fmt.Errorf("%w: first closed at %s", ErrAlreadyClosed, c.closedAt)
	}
	c.closed = true
	if _, file, line, ok := runtime.Caller(1); ok {
		c.closedAt = fmt.Sprintf("%s:%d", file, line)
	}
	if c.curBuf != nil {
		c.curBuf.Release()
		c.curBuf = nil
	}
	return nil
}

// reconcilePosition ensures curBuf covers the absolute logical position
// corresponding to pos (relative to c's view), resolving a new chunk
// through the reader if necessary, and returns the buffer, the byte
// offset within it, and the absolute logical position (exclusive) up to
// which curBuf remains valid.
//
// A retained buffer is reused only while abs stays within the run it was
// resolved for ([curRunStart, curRunEnd)): curRunEnd already accounts for
// any later-appended chunk that begins shadowing curBuf's owner before
// its own declared end, so a read can never silently cross into bytes a
// different chunk owns. A backward seek past curRunStart always
// re-resolves, even if abs is still nominally inside curBuf's span,
// since an earlier shadow boundary may apply there that this run's
// bookkeeping never computed.
func (c *LogicalCursor) reconcilePosition(pos int64) (*SharedBuffer, int, int64, error) {
	abs := c.logicalBase + pos

	if c.curBuf != nil && abs >= c.curRunStart && abs < c.curRunEnd {
		return c.curBuf, int(abs - c.curBuf.LogicalStart()), c.curRunEnd, nil
	}
	if c.curBuf != nil {
		c.curBuf.Release()
		c.curBuf = nil
	}

	buf, idx, err := c.reader.resolve(abs)
	if err != nil {
		return nil, 0, 0, err
	}
	c.curBuf = buf
	c.curRunStart = abs
	c.curRunEnd = abs + c.reader.Directory().RunLength(idx, abs)
	return buf, int(abs - buf.LogicalStart()), c.curRunEnd, nil
}
