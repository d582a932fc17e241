package ws

import (
	"encoding/binary"
	"math/rand"
)

// RandomSource produces mask keys for outgoing frames.
//
// RFC6455 requires keys to be unpredictable for third parties, not
// cryptographically strong, so DefaultRandom is backed by math/rand.
type RandomSource interface {
	NewMask() [4]byte
}

// RandomSourceFunc is an adapter to allow the use of ordinary functions as
// RandomSource.
type RandomSourceFunc func() [4]byte

// NewMask implements RandomSource.
func (f RandomSourceFunc) NewMask() [4]byte { return f() }

// FixedMask is a RandomSource that always returns itself. It is useful for
// tests that need to check exact wire bytes.
type FixedMask [4]byte

// NewMask implements RandomSource.
func (m FixedMask) NewMask() [4]byte { return m }

// DefaultRandom is the RandomSource used when no other is provided.
var DefaultRandom RandomSource = RandomSourceFunc(mathMask)

func mathMask() (ret [4]byte) {
	binary.BigEndian.PutUint32(ret[:], rand.Uint32())
	return
}

// NewMask creates new random mask with DefaultRandom.
func NewMask() [4]byte {
	return DefaultRandom.NewMask()
}
