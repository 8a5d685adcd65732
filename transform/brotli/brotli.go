// Package brotli adapts github.com/andybalholm/brotli to
// racstream.ReadTransform, for files written with the brotli
// alternative transform.
package brotli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"racstream"
)

// Transform decodes independent brotli streams, one per chunk.
type Transform struct{}

// New returns a ready-to-use Transform.
func New() *Transform { return &Transform{} }

// SetConfig accepts an empty configuration; brotli streams in this
// format carry no external dictionary.
func (t *Transform) SetConfig(config []byte) error {
	if len(config) != 0 {
		return fmt.Errorf("brotli: unexpected non-empty config (%d bytes)", len(config))
	}
	return nil
}

// Transform decodes one brotli stream from src into dst.
func (t *Transform) Transform(src []byte, srcOff, srcLen int, dst []byte, expectedOutput int) (int, error) {
	r := brotli.NewReader(bytes.NewReader(src[srcOff : srcOff+srcLen]))
	n, err := io.ReadFull(r, dst[:expectedOutput])
	if err != nil {
		return 0, fmt.Errorf("brotli: decode: %w", err)
	}
	return n, nil
}

// Copy returns t itself: brotli.NewReader is constructed fresh per
// Transform call, so there is no per-instance state to isolate.
func (t *Transform) Copy() racstream.ReadTransform {
	return t
}
