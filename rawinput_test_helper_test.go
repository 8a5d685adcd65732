package racstream

import (
	"encoding/binary"
	"errors"
	"io"
)

// memInput is a RawInput backed by an in-memory byte slice, used by
// tests that don't need a real file.
type memInput struct {
	data []byte
	pos  int64
}

func newMemInput(data []byte) *memInput { return &memInput{data: data} }

func (m *memInput) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.data)) + offset
	default:
		return 0, errors.New("memInput: bad whence")
	}
	if target < 0 {
		return 0, errors.New("memInput: negative position")
	}
	m.pos = target
	return m.pos, nil
}

func (m *memInput) Tell() (int64, error)   { return m.pos, nil }
func (m *memInput) Length() (int64, error) { return int64(len(m.data)), nil }

func (m *memInput) ReadBytes(buf []byte) error {
	if m.pos < 0 || m.pos+int64(len(buf)) > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	n := copy(buf, m.data[m.pos:m.pos+int64(len(buf))])
	m.pos += int64(n)
	return nil
}

func (m *memInput) ReadByte() (byte, error) {
	if m.pos < 0 || m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	b := m.data[m.pos]
	m.pos++
	return b, nil
}

func (m *memInput) ReadLong() (int64, error) {
	var b [8]byte
	if err := m.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func (m *memInput) ReadVarLong() (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		b, err := m.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, errors.New("memInput: varint too long")
}

func (m *memInput) ReadVarInt() (uint32, error) {
	v, err := m.ReadVarLong()
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (m *memInput) Close() error { return nil }

func (m *memInput) Clone() (RawInput, error) {
	return &memInput{data: m.data}, nil
}

var _ RawInput = (*memInput)(nil)

// identityTransform is a minimal ReadTransform for internal tests that
// don't want a dependency on a real compression library.
type identityTransform struct{}

func (identityTransform) SetConfig(config []byte) error { return nil }

func (identityTransform) Transform(src []byte, srcOff, srcLen int, dst []byte, expectedOutput int) (int, error) {
	return -1, nil
}

func (identityTransform) Copy() ReadTransform { return identityTransform{} }

var _ ReadTransform = identityTransform{}
