package racstream

import (
	"errors"
	"sync"
	"testing"

	"racstream/racwriter"
)

func openTestReader(t *testing.T, chunks map[int64][]byte, withTrailer bool) *ChunkReader {
	t.Helper()
	data := buildFixture(t, chunks, withTrailer)
	r, err := NewChunkReader(newMemInput(data), identityTransform{}, Options{})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	return r
}

func TestNewChunkReaderRejectsShortFile(t *testing.T) {
	_, err := NewChunkReader(newMemInput([]byte{1, 2, 3}), identityTransform{}, Options{})
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}
}

func TestNewChunkReaderRejectsBadMagic(t *testing.T) {
	data := buildFixture(t, map[int64][]byte{0: []byte("hi")}, true)
	data[0] ^= 0xFF // corrupt the magic
	_, err := NewChunkReader(newMemInput(data), identityTransform{}, Options{})
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}
}

func TestChunkReaderTotalLength(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("hello"), 5: []byte("world")}, true)
	if got, want := r.TotalLength(), int64(10); got != want {
		t.Fatalf("TotalLength = %d, want %d", got, want)
	}
}

func TestChunkReaderReadAcrossChunks(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("hello"), 5: []byte("world")}, true)
	cur := r.NewCursor()
	defer cur.Close()

	got := make([]byte, 10)
	n, err := cur.ReadBytes(got)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	if string(got) != "helloworld" {
		t.Fatalf("got %q", got)
	}
}

func TestChunkReaderCacheHitAvoidsRefill(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("hello")}, true)

	buf1, err := r.chunkAt(0)
	if err != nil {
		t.Fatalf("chunkAt: %v", err)
	}
	buf2, err := r.chunkAt(2)
	if err != nil {
		t.Fatalf("chunkAt: %v", err)
	}
	if buf1 != buf2 {
		t.Fatalf("expected the same cached SharedBuffer for positions in the same chunk")
	}
	buf1.Release()
	buf2.Release()
}

func TestChunkReaderEndOfStream(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("hi")}, true)
	if _, err := r.chunkAt(2); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestChunkReaderConcurrentRefillSingleDecompress(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("concurrent-payload")}, true)

	var wg sync.WaitGroup
	bufs := make([]*SharedBuffer, 20)
	for i := range bufs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := r.chunkAt(0)
			if err != nil {
				t.Errorf("chunkAt: %v", err)
				return
			}
			bufs[i] = buf
		}()
	}
	wg.Wait()

	var first *SharedBuffer
	for _, b := range bufs {
		if b == nil {
			continue
		}
		if first == nil {
			first = b
		} else if b != first {
			t.Errorf("expected every caller to share one decompressed SharedBuffer")
		}
		if string(b.Bytes()) != "concurrent-payload" {
			t.Errorf("got %q", b.Bytes())
		}
		b.Release()
	}
}

func TestLogicalCursorSeekOutOfRange(t *testing.T) {
	r := openTestReader(t, map[int64][]byte{0: []byte("hi")}, true)
	cur := r.NewCursor()
	defer cur.Close()

	if err := cur.Seek(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := cur.Seek(100); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
