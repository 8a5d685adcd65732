// Package rawio provides racstream.RawInput implementations backed by
// an os.File (via pread-style ReadAt) and by a memory-mapped file.
package rawio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"racstream"
)

var errShortRead = errors.New("rawio: short read")

// FileInput is a RawInput backed by an os.File, read via ReadAt so
// Clone()s (and thus concurrent chunk decompression) don't race on a
// shared file offset.
type FileInput struct {
	file   *os.File
	length int64
	pos    int64
	owned  bool // true if Close should close the underlying file
}

// OpenFileInput opens path for reading.
func OpenFileInput(path string) (*FileInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileInput{file: f, length: info.Size(), owned: true}, nil
}

// NewFileInput wraps an already-open file the caller owns; Close will
// not close it.
func NewFileInput(f *os.File, length int64) *FileInput {
	return &FileInput{file: f, length: length, owned: false}
}

func (f *FileInput) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = f.length + offset
	default:
		return 0, errors.New("rawio: invalid whence")
	}
	if target < 0 {
		return 0, errors.New("rawio: negative position")
	}
	f.pos = target
	return f.pos, nil
}

func (f *FileInput) Tell() (int64, error) { return f.pos, nil }

func (f *FileInput) Length() (int64, error) { return f.length, nil }

func (f *FileInput) ReadBytes(buf []byte) error {
	n, err := f.file.ReadAt(buf, f.pos)
	f.pos += int64(n)
	if err != nil {
		if err == io.EOF && n == len(buf) {
			return nil
		}
		return err
	}
	return nil
}

func (f *FileInput) ReadByte() (byte, error) {
	var b [1]byte
	if err := f.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *FileInput) ReadLong() (int64, error) {
	var b [8]byte
	if err := f.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func (f *FileInput) ReadVarLong() (uint64, error) {
	return readUvarint(f)
}

func (f *FileInput) ReadVarInt() (uint32, error) {
	v, err := readUvarint(f)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (f *FileInput) Close() error {
	if f.owned && f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Clone returns an independent FileInput over the same underlying file
// descriptor, positioned at 0, safe to Seek/Read concurrently with f
// since both go through ReadAt. The clone never closes the shared file;
// the original FileInput owns that.
func (f *FileInput) Clone() (racstream.RawInput, error) {
	return &FileInput{file: f.file, length: f.length, owned: false}, nil
}

var _ racstream.RawInput = (*FileInput)(nil)

// byteReader is the minimal surface readUvarint needs; both FileInput
// and MmapInput implement it via ReadByte.
type byteReader interface {
	ReadByte() (byte, error)
}

// readUvarint decodes an unsigned LEB128 varint one byte at a time from
// r, mirroring encoding/binary.Uvarint's wire format for a stream
// rather than an in-memory buffer.
func readUvarint(r byteReader) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				return 0, errors.New("rawio: varint overflow")
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, errors.New("rawio: varint too long")
}
