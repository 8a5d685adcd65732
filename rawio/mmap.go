package rawio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"syscall"

	"racstream"
)

// MmapInput is a RawInput backed by a memory-mapped read-only view of a
// file. Clone shares the same mapping; only the owning MmapInput's
// Close unmaps it, so clones used by concurrent chunk decompression
// must not outlive the original.
type MmapInput struct {
	file  *os.File
	data  []byte
	pos   int64
	owned bool
}

// OpenMmapInput opens and maps path for reading.
func OpenMmapInput(path string) (*MmapInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, errors.New("rawio: cannot mmap empty file")
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MmapInput{file: f, data: data, owned: true}, nil
}

func (m *MmapInput) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.data)) + offset
	default:
		return 0, errors.New("rawio: invalid whence")
	}
	if target < 0 {
		return 0, errors.New("rawio: negative position")
	}
	m.pos = target
	return m.pos, nil
}

func (m *MmapInput) Tell() (int64, error) { return m.pos, nil }

func (m *MmapInput) Length() (int64, error) { return int64(len(m.data)), nil }

func (m *MmapInput) ReadBytes(buf []byte) error {
	if m.pos < 0 || m.pos+int64(len(buf)) > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	n := copy(buf, m.data[m.pos:m.pos+int64(len(buf))])
	m.pos += int64(n)
	return nil
}

func (m *MmapInput) ReadByte() (byte, error) {
	if m.pos < 0 || m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	b := m.data[m.pos]
	m.pos++
	return b, nil
}

func (m *MmapInput) ReadLong() (int64, error) {
	var b [8]byte
	if err := m.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func (m *MmapInput) ReadVarLong() (uint64, error) {
	return readUvarint(m)
}

func (m *MmapInput) ReadVarInt() (uint32, error) {
	v, err := readUvarint(m)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (m *MmapInput) Close() error {
	if !m.owned {
		return nil
	}
	var err error
	if m.data != nil {
		if unmapErr := syscall.Munmap(m.data); unmapErr != nil {
			err = unmapErr
		}
		m.data = nil
	}
	if m.file != nil {
		if closeErr := m.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.file = nil
	}
	return err
}

// Clone returns an independent MmapInput over the same mapping,
// positioned at 0. The clone's Close is a no-op; only the original
// unmaps and closes the file.
func (m *MmapInput) Clone() (racstream.RawInput, error) {
	return &MmapInput{file: m.file, data: m.data, owned: false}, nil
}

var _ racstream.RawInput = (*MmapInput)(nil)
