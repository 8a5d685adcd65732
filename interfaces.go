package racstream

// RawInput is the seekable byte source contract. The producer (out of
// scope for this package) and the underlying storage medium are
// external collaborators; racstream/rawio provides concrete
// implementations (os.File-backed and mmap-backed), but callers may
// supply their own.
//
// ReadBytes must fill buf completely or return an error (io.ErrUnexpectedEOF
// or io.EOF at exact end of input are both acceptable at the caller's
// discretion). ReadLong reads a big-endian 8-byte signed integer.
// ReadVarLong and ReadVarInt read an unsigned variable-length integer
// (7-bit groups, MSB continuation) as used throughout the wire format.
type RawInput interface {
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Length() (int64, error)
	ReadBytes(buf []byte) error
	ReadByte() (byte, error)
	ReadLong() (int64, error)
	ReadVarLong() (uint64, error)
	ReadVarInt() (uint32, error)
	Close() error
	Clone() (RawInput, error)
}

// ReadTransform is the decompression/decryption primitive applied to
// each chunk's payload. The writer (out of scope) applied its inverse.
//
// Transform returns the number of bytes written to dst, or a negative
// value to signal "pass-through, no transformation was applied" — the
// caller must then treat the compressed bytes themselves as the logical
// payload, with a logical length equal to srcLen.
type ReadTransform interface {
	SetConfig(config []byte) error
	Transform(src []byte, srcOff, srcLen int, dst []byte, expectedOutput int) (int, error)

	// Copy returns an independent instance with the same configuration,
	// used when a LogicalCursor is cloned. Transforms that hold stream
	// state (e.g. a running cipher) must not share that state with the
	// copy.
	Copy() ReadTransform
}
