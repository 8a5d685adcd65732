package racstream

import (
	"errors"
	"testing"

	"racstream/racwriter"
)

func buildFixture(t *testing.T, chunks map[int64][]byte, withTrailer bool) []byte {
	t.Helper()
	w := racwriter.New(nil)
	for _, start := range sortedKeys(chunks) {
		w.WriteChunk(start, chunks[start], racwriter.Identity)
	}
	if withTrailer {
		return w.FinishWithTrailer(racwriter.Identity)
	}
	return w.FinishWithoutTrailer()
}

func sortedKeys(m map[int64][]byte) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func TestBuildChunkDirectoryFromTrailer(t *testing.T) {
	data := buildFixture(t, map[int64][]byte{
		0: []byte("hello"),
		5: []byte("world"),
	}, true)

	r := newMemInput(data)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(data)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	if dir.RecoveredByScanning() {
		t.Fatalf("expected trailer path, got scan recovery")
	}
	if got, want := dir.TotalLogicalLength(), int64(10); got != want {
		t.Fatalf("total length = %d, want %d", got, want)
	}
	if dir.Len() != 2 {
		t.Fatalf("len = %d, want 2", dir.Len())
	}
}

func TestBuildChunkDirectoryByScan(t *testing.T) {
	data := buildFixture(t, map[int64][]byte{
		0: []byte("hello"),
		5: []byte("world"),
	}, false)

	r := newMemInput(data)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(data)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	if !dir.RecoveredByScanning() {
		t.Fatalf("expected scan recovery")
	}
	if got, want := dir.TotalLogicalLength(), int64(10); got != want {
		t.Fatalf("total length = %d, want %d", got, want)
	}
}

func TestBuildChunkDirectoryTruncatedTrailerFallsBackToScan(t *testing.T) {
	data := buildFixture(t, map[int64][]byte{
		0: []byte("hello"),
		5: []byte("world"),
	}, true)
	truncated := data[:len(data)-trailerSize] // lose the fixed trailer; the directory frame stays

	r := newMemInput(truncated)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(truncated)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	if !dir.RecoveredByScanning() {
		t.Fatalf("expected fallback to scan recovery")
	}
	// The directory's own frame sits at logicalStart == total, so scan
	// recovery must still resolve real positions correctly.
	if idx, err := dir.FindOwningChunk(0); err != nil || dir.Entry(idx).LogicalStart != 0 {
		t.Fatalf("FindOwningChunk(0): idx=%d err=%v", idx, err)
	}
	if idx, err := dir.FindOwningChunk(9); err != nil || dir.Entry(idx).LogicalStart != 5 {
		t.Fatalf("FindOwningChunk(9): idx=%d err=%v", idx, err)
	}
}

func TestFindOwningChunkShadowing(t *testing.T) {
	w := racwriter.New(nil)
	w.WriteChunk(0, []byte("aaaaa"), racwriter.Identity)
	w.WriteChunk(0, []byte("bbbbb"), racwriter.Identity) // overwrites position 0..4
	data := w.FinishWithTrailer(racwriter.Identity)

	r := newMemInput(data)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(data)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	idx, err := dir.FindOwningChunk(0)
	if err != nil {
		t.Fatalf("FindOwningChunk: %v", err)
	}
	if dir.Entry(idx).PhysicalStart != dir.Entry(1).PhysicalStart {
		t.Fatalf("expected the later (shadowing) entry to win")
	}
}

func TestFindOwningChunkOutOfRange(t *testing.T) {
	data := buildFixture(t, map[int64][]byte{0: []byte("hi")}, true)
	r := newMemInput(data)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(data)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	if _, err := dir.FindOwningChunk(100); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFindOwningChunkLargeDirectoryUsesBracket(t *testing.T) {
	w := racwriter.New(nil)
	var pos int64
	for i := 0; i < smallDirectoryThreshold+50; i++ {
		payload := []byte{byte(i), byte(i >> 8)}
		w.WriteChunk(pos, payload, racwriter.Identity)
		pos += int64(len(payload))
	}
	data := w.FinishWithTrailer(racwriter.Identity)

	r := newMemInput(data)
	dir, err := buildChunkDirectory(r, identityTransform{}, int64(len(data)), 8+1, nil)
	if err != nil {
		t.Fatalf("buildChunkDirectory: %v", err)
	}
	if dir.Len() < smallDirectoryThreshold {
		t.Fatalf("fixture too small to exercise bracket search: %d entries", dir.Len())
	}

	idx, err := dir.FindOwningChunk(pos - 1)
	if err != nil {
		t.Fatalf("FindOwningChunk: %v", err)
	}
	last := dir.Entry(idx)
	if last.LogicalStart+last.LogicalLength != pos {
		t.Fatalf("resolved wrong entry for last byte: %+v", last)
	}
}
