package ws

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Header size length bounds in bytes.
const (
	MaxHeaderSize = 14
	MinHeaderSize = 2
)

const (
	bit0 = 0x80
	bit1 = 0x40
	bit2 = 0x20
	bit3 = 0x10
	bit4 = 0x08
	bit5 = 0x04
	bit6 = 0x02
	bit7 = 0x01

	len7  = int64(125)
	len16 = int64(^(uint16(0)))
	len64 = int64(^(uint64(0)) >> 1)
)

// HeaderSize returns number of bytes that are needed to encode given header.
// It returns -1 if header is malformed.
func HeaderSize(h Header) (n int) {
	switch {
	case h.Length < 0:
		return -1
	case h.Length <= len7:
		n = 2
	case h.Length <= len16:
		n = 4
	default:
		n = 10
	}
	if h.Masked {
		n += len(h.Mask)
	}
	return n
}

// CheckEncodable reports whether h could be put on the wire.
func CheckEncodable(h Header) error {
	switch {
	case h.Rsv&^(bit5|bit6|bit7) != 0:
		return fmt.Errorf("%w: rsv value %#x does not fit three bits", ErrInvalidFrameField, h.Rsv)
	case !h.OpCode.IsValid():
		return fmt.Errorf("%w: %s", ErrInvalidOpcode, h.OpCode)
	case h.Length < 0:
		return fmt.Errorf("%w: length must be less than 2^63", ErrOversizedPayload)
	}
	return nil
}

// PutHeader encodes h into p and returns the number of bytes written. The p
// must be at least HeaderSize(h) bytes length, otherwise PutHeader panics.
//
// Note that PutHeader does not validate h; use CheckEncodable for that.
func PutHeader(p []byte, h Header) int {
	n := HeaderSize(h)
	if n < 0 {
		panic("ws: malformed header")
	}
	_ = p[n-1]

	p[0] = byte(h.OpCode) | h.Rsv<<4
	if h.Fin {
		p[0] |= bit0
	}

	maskPos := 2 // after fin, rsv and op code byte and length byte.
	switch {
	case h.Length <= len7:
		p[1] = byte(h.Length)
	case h.Length <= len16:
		p[1] = 126
		binary.BigEndian.PutUint16(p[2:], uint16(h.Length))
		maskPos += 2
	default:
		p[1] = 127
		binary.BigEndian.PutUint64(p[2:], uint64(h.Length))
		maskPos += 8
	}

	if h.Masked {
		p[1] |= bit0
		copy(p[maskPos:], h.Mask[:])
	}

	return n
}

// WriteHeader writes header binary representation into w.
func WriteHeader(w io.Writer, h Header) error {
	if err := CheckEncodable(h); err != nil {
		return err
	}
	var bts [MaxHeaderSize]byte
	n := PutHeader(bts[:], h)
	_, err := w.Write(bts[:n])
	return err
}

// WriteFrame writes frame binary representation into w.
// Note that payload is written as is, that is, it must be already masked if
// the header says so.
func WriteFrame(w io.Writer, f Frame) error {
	err := WriteHeader(w, f.Header)
	if err != nil {
		return err
	}
	_, err = w.Write(f.Payload)
	return err
}

// CompileFrame returns byte representation of given frame.
// In terms of memory consumption it is useful to precompile static frames which are often used.
func CompileFrame(f Frame) (bts []byte, err error) {
	buf := bytes.NewBuffer(make([]byte, 0, 16))
	err = WriteFrame(buf, f)
	bts = buf.Bytes()
	return
}

// MustCompileFrame is like CompileFrame but panics if frame cannot be encoded.
func MustCompileFrame(f Frame) []byte {
	bts, err := CompileFrame(f)
	if err != nil {
		panic(err)
	}
	return bts
}

// Encoder encodes frames into their wire representation. If frame header
// has Masked flag set, Encoder generates fresh mask key for each frame and
// masks a copy of the payload with it.
//
// Encoder is safe for concurrent use if its RandomSource is.
type Encoder struct {
	// Random is used to generate mask keys. If Random is nil, DefaultRandom
	// is used.
	Random RandomSource
}

// Size returns the number of bytes that f takes on the wire.
func (e Encoder) Size(f Frame) int {
	h := f.Header
	h.Length = int64(len(f.Payload))
	return HeaderSize(h) + len(f.Payload)
}

// Encode returns binary representation of f.
func (e Encoder) Encode(f Frame) ([]byte, error) {
	bts := make([]byte, e.Size(f))
	n, err := e.Put(bts, f)
	if err != nil {
		return nil, err
	}
	return bts[:n], nil
}

// Put encodes f into p and returns number of bytes written. The p must be at
// least e.Size(f) bytes length.
//
// Note that header Length and Mask fields are ignored: the length is taken
// from the payload and the mask is generated when Masked is true.
func (e Encoder) Put(p []byte, f Frame) (int, error) {
	h := f.Header
	h.Length = int64(len(f.Payload))
	if err := CheckEncodable(h); err != nil {
		return 0, err
	}
	if h.Masked {
		rnd := e.Random
		if rnd == nil {
			rnd = DefaultRandom
		}
		h.Mask = rnd.NewMask()
	}
	if len(p) < HeaderSize(h)+len(f.Payload) {
		return 0, io.ErrShortBuffer
	}

	n := PutHeader(p, h)
	m := copy(p[n:], f.Payload)
	if h.Masked {
		Cipher(p[n:n+m], h.Mask, 0)
	}
	return n + m, nil
}
