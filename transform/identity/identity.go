// Package identity provides a no-op racstream.ReadTransform for files
// written without compression.
package identity

import (
	"fmt"

	"racstream"
)

// Transform signals pass-through: callers treat the compressed bytes
// themselves as the logical payload.
type Transform struct{}

// New returns a ready-to-use Transform.
func New() *Transform { return &Transform{} }

// SetConfig accepts only an empty configuration.
func (t *Transform) SetConfig(config []byte) error {
	if len(config) != 0 {
		return fmt.Errorf("identity: unexpected non-empty config (%d bytes)", len(config))
	}
	return nil
}

// Transform always reports pass-through by returning a negative count.
func (t *Transform) Transform(src []byte, srcOff, srcLen int, dst []byte, expectedOutput int) (int, error) {
	return -1, nil
}

// Copy returns t itself: identity has no state.
func (t *Transform) Copy() racstream.ReadTransform {
	return t
}
