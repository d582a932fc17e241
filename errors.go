package ws

import "errors"

// Kinds of errors returned by this module. Detailed errors wrap one of them,
// so callers should compare with errors.Is().
//
// Every error of these kinds is fatal for a connection: the byte stream can
// not be trusted after any framing or sequencing rule is broken.
var (
	// ErrInvalidFrameField is returned when frame header bits could not be
	// encoded, e.g. rsv value does not fit three bits.
	ErrInvalidFrameField = errors.New("invalid frame field")

	// ErrInvalidOpcode is returned for operation codes not defined by
	// RFC6455.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrOversizedPayload is returned when payload length is not
	// representable (>= 2^63), exceeds configured limits, or when control
	// frame payload is longer than 125 bytes.
	ErrOversizedPayload = errors.New("oversized payload")

	// ErrProtocolViolation is returned when peer breaks framing rules:
	// continuation sequencing, fragmented or oversized control frames and so
	// on.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrConnectionClosed is returned when transport has reached EOF or the
	// connection was closed explicitly or by the closing handshake.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionFailed is returned when transport could not be
	// established.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrHandshakeFailed is returned when opening handshake could not be
	// completed.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrTransport is returned on transport i/o failures including timeouts.
	ErrTransport = errors.New("transport error")
)
