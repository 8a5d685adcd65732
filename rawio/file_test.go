package rawio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileInputReadVarLong(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	// 300 encoded as a two-byte LEB128 varint: 0xAC 0x02
	if err := os.WriteFile(path, []byte{0xAC, 0x02, 'x', 'y', 'z'}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f, err := OpenFileInput(path)
	if err != nil {
		t.Fatalf("OpenFileInput: %v", err)
	}
	defer f.Close()

	v, err := f.ReadVarLong()
	if err != nil {
		t.Fatalf("ReadVarLong: %v", err)
	}
	if v != 300 {
		t.Fatalf("ReadVarLong = %d, want 300", v)
	}

	rest := make([]byte, 3)
	if err := f.ReadBytes(rest); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(rest) != "xyz" {
		t.Fatalf("ReadBytes = %q, want xyz", rest)
	}
}

func TestFileInputCloneIndependentPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f, err := OpenFileInput(path)
	if err != nil {
		t.Fatalf("OpenFileInput: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(5, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	clone, err := f.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	defer clone.Close()

	pos, err := clone.Tell()
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if pos != 0 {
		t.Fatalf("clone position = %d, want 0 (independent of parent)", pos)
	}

	b, err := clone.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != '0' {
		t.Fatalf("ReadByte = %q, want '0'", b)
	}
}

func TestFileInputCloseDoesNotCloseSharedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f, err := OpenFileInput(path)
	if err != nil {
		t.Fatalf("OpenFileInput: %v", err)
	}
	defer f.Close()

	clone, err := f.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if err := clone.Close(); err != nil {
		t.Fatalf("clone Close: %v", err)
	}

	// The shared underlying file must still be usable through f.
	if _, err := f.ReadByte(); err != nil {
		t.Fatalf("ReadByte on parent after clone Close: %v", err)
	}
}
