package ws

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	PlatformSizeLimit = int64(^(uint(0)) >> 1) // Max int value for current platform.
)

// Errors used by frame reader.
var (
	ErrHeaderLengthMSB        = fmt.Errorf("header error: the most significant bit must be 0: %w", ErrProtocolViolation)
	ErrHeaderLengthUnexpected = fmt.Errorf("header error: unexpected payload length bits: %w", ErrProtocolViolation)
)

// Length bits values which mean that real length follows in extended
// payload length field.
const (
	LengthBits16 = 126
	LengthBits64 = 127
)

// DecodeHeader decodes first two bytes of frame header. It returns header
// with Length set only if it is encoded inline, and the raw 7-bit length
// value. If lengthBits is LengthBits16 or LengthBits64, the caller must read
// the extended payload length.
//
// Note that Mask field is left empty even if Masked is true.
func DecodeHeader(b0, b1 byte) (h Header, lengthBits byte) {
	h.Fin = b0&bit0 != 0
	h.Rsv = (b0 & 0x70) >> 4
	h.OpCode = OpCode(b0 & 0x0f)
	h.Masked = b1&bit0 != 0

	lengthBits = b1 & 0x7f
	if lengthBits < LengthBits16 {
		h.Length = int64(lengthBits)
	}
	return h, lengthBits
}

// DecodeLength decodes extended payload length from p which must be 2 or 8
// bytes length for LengthBits16 and LengthBits64 respectively.
func DecodeLength(p []byte) (int64, error) {
	switch len(p) {
	case 2:
		return int64(binary.BigEndian.Uint16(p)), nil
	case 8:
		if p[0]&bit0 != 0 {
			return 0, ErrHeaderLengthMSB
		}
		return int64(binary.BigEndian.Uint64(p)), nil
	}
	return 0, ErrHeaderLengthUnexpected
}

// ReadHeader reads a frame header from r.
func ReadHeader(r io.Reader) (h Header, err error) {
	// Make slice with 2 bytes len for header, but with 12 byte capacity.
	// Extended length and mask key are read into the same bytes.
	bts := make([]byte, 2, MaxHeaderSize-2)

	// Prepare to hold first 2 bytes to choose size of next read.
	_, err = io.ReadFull(r, bts)
	if err != nil {
		return
	}

	h, length := DecodeHeader(bts[0], bts[1])

	var extra int
	if h.Masked {
		extra += 4
	}
	switch length {
	case LengthBits16:
		extra += 2
	case LengthBits64:
		extra += 8
	}
	if extra == 0 {
		return
	}

	bts = bts[:extra]
	_, err = io.ReadFull(r, bts)
	if err != nil {
		return
	}

	switch length {
	case LengthBits16:
		h.Length, err = DecodeLength(bts[:2])
		bts = bts[2:]
	case LengthBits64:
		h.Length, err = DecodeLength(bts[:8])
		bts = bts[8:]
	}
	if err != nil {
		return
	}

	if h.Masked {
		copy(h.Mask[:], bts)
	}

	return
}

// ReadFrame reads a frame from r.
// It is not designed for high optimized use case cause it allocates the
// payload as it is read.
//
// Note that ReadFrame does not unmask payload.
func ReadFrame(r io.Reader) (f Frame, err error) {
	f.Header, err = ReadHeader(r)
	if err != nil {
		return
	}

	if f.Header.Length > PlatformSizeLimit {
		err = ErrOversizedPayload
		return
	}
	if f.Header.Length > 0 {
		var (
			buf bytes.Buffer
			n   int64
		)
		n, err = io.CopyN(&buf, r, f.Header.Length)
		if err == io.EOF && n > 0 {
			err = io.ErrUnexpectedEOF
		}
		f.Payload = buf.Bytes()
	}

	return
}

// ParseCloseFrameData parses close frame status code and closure reason if any provided.
// If there is no status code in the payload
// the empty status code is returned (code.Empty()) with empty string as a reason.
func ParseCloseFrameData(payload []byte) (code StatusCode, reason string) {
	if len(payload) < 2 {
		// We returning empty StatusCode here, preventing the situation
		// when endpoint really sent code 1005 and we should return ProtocolError on that.
		//
		// In other words, we ignoring this rule [RFC6455:7.1.5]:
		//   If this Close control frame contains no status code, _The WebSocket
		//   Connection Close Code_ is considered to be 1005.
		return
	}
	code = StatusCode(binary.BigEndian.Uint16(payload))
	reason = string(payload[2:])
	return
}
