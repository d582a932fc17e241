package wsutil

import (
	"fmt"

	"github.com/websock/ws"
)

// Errors used by Assembler.
var (
	ErrContinuationUnexpected = fmt.Errorf("continuation frame with no message started: %w", ws.ErrProtocolViolation)
	ErrContinuationExpected   = fmt.Errorf("new data frame while message is not finished: %w", ws.ErrProtocolViolation)
	ErrNotDataFrame           = fmt.Errorf("control frame could not be assembled: %w", ws.ErrProtocolViolation)
)

// Assembler collects fragments of a data message into a single payload.
//
// A message starts with text or binary frame and continues with zero or more
// continuation frames; the last fragment has fin bit set. Control frames
// must not be passed to the Assembler.
//
// Assembler is not goroutine safe.
type Assembler struct {
	// Limit is the maximum size of assembled payload. If Limit is zero, there
	// is no limit.
	Limit int64

	active  bool
	op      ws.OpCode
	payload []byte
}

// Pending reports whether some message was started but not finished yet.
func (a *Assembler) Pending() bool {
	return a.active
}

// Validate checks that f could be the next fragment.
func (a *Assembler) Validate(f ws.Frame) error {
	op := f.Header.OpCode
	switch {
	case op.IsControl():
		return ErrNotDataFrame
	case !a.active && op == ws.OpContinuation:
		return ErrContinuationUnexpected
	case !a.active && op != ws.OpText && op != ws.OpBinary:
		return fmt.Errorf("%w: %s", ws.ErrInvalidOpcode, op)
	case a.active && op != ws.OpContinuation:
		return ErrContinuationExpected
	}
	return nil
}

// Add appends f payload to the message. The first fragment defines the
// operation code of the message.
func (a *Assembler) Add(f ws.Frame) error {
	if !a.active {
		a.active = true
		a.op = f.Header.OpCode
		a.payload = nil
	}
	if a.Limit > 0 && int64(len(a.payload))+int64(len(f.Payload)) > a.Limit {
		return fmt.Errorf("%w: message exceeds %d bytes", ws.ErrOversizedPayload, a.Limit)
	}
	if a.payload == nil && f.Header.Fin {
		// Single frame message; no need to copy.
		a.payload = f.Payload
		return nil
	}
	a.payload = append(a.payload, f.Payload...)
	return nil
}

// IsFire reports whether f completes the message.
func (a *Assembler) IsFire(f ws.Frame) bool {
	return f.Header.Fin
}

// Extract returns assembled message and resets the Assembler.
func (a *Assembler) Extract() (ws.OpCode, []byte) {
	op, p := a.op, a.payload
	a.Reset()
	if p == nil {
		p = []byte{}
	}
	return op, p
}

// Reset drops the message being assembled.
func (a *Assembler) Reset() {
	a.active = false
	a.op = 0
	a.payload = nil
}
