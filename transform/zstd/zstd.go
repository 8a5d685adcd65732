// Package zstd adapts github.com/klauspost/compress/zstd to
// racstream.ReadTransform. Each chunk's compressed payload is expected
// to be one independent zstd frame, the same per-chunk framing the
// teacher's seekable-zstd writer produces (one frame per fixed-size
// uncompressed window), so a plain one-shot decode suffices and no
// seek table is needed on the read side.
package zstd

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"racstream"
)

// Transform decodes independent zstd frames. The zero value is not
// usable; construct one with New.
type Transform struct {
	dec *zstd.Decoder
}

// New returns a Transform backed by a concurrency-unlimited decoder,
// matching the teacher's package-level zstdDec.
func New() (*Transform, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("zstd: new decoder: %w", err)
	}
	return &Transform{dec: dec}, nil
}

// SetConfig accepts an empty configuration; zstd frames are
// self-describing and carry no external dictionary in this format.
func (t *Transform) SetConfig(config []byte) error {
	if len(config) != 0 {
		return fmt.Errorf("zstd: unexpected non-empty config (%d bytes)", len(config))
	}
	return nil
}

// Transform decodes one zstd frame from src into dst.
func (t *Transform) Transform(src []byte, srcOff, srcLen int, dst []byte, expectedOutput int) (int, error) {
	out, err := t.dec.DecodeAll(src[srcOff:srcOff+srcLen], dst[:0])
	if err != nil {
		return 0, fmt.Errorf("zstd: decode: %w", err)
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		if len(out) > cap(dst) {
			return 0, fmt.Errorf("zstd: decoded %d bytes, expected %d", len(out), expectedOutput)
		}
		copy(dst[:len(out)], out)
	}
	return len(out), nil
}

// Copy returns t itself: zstd frame decoding carries no per-call
// mutable state worth isolating, and *zstd.Decoder is documented safe
// for concurrent use.
func (t *Transform) Copy() racstream.ReadTransform {
	return t
}
