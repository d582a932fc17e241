package ws

import (
	"fmt"
	"unicode/utf8"
)

// State represents state of websocket endpoint.
// It used by some functions to be more strict when checking compatibility with RFC6455.
type State uint8

const (
	// StateClientSide means that endpoint (caller) is a client.
	StateClientSide State = 0x1 << iota
	// StateExtended means that extension was negotiated during handshake.
	StateExtended
	// StateFragmented means that endpoint (caller) has received fragmented
	// frame and waits for continuation parts.
	StateFragmented
)

// Is checks whether the s has v enabled.
func (s State) Is(v State) bool {
	return uint8(s)&uint8(v) != 0
}

// Set enables v state on s.
func (s State) Set(v State) State {
	return s | v
}

// Clear disables v state on s.
func (s State) Clear(v State) State {
	return s & (^v)
}

// SetOrClearIf enables or disables v state on s depending on cond.
func (s State) SetOrClearIf(cond bool, v State) (ret State) {
	if cond {
		ret = s.Set(v)
	} else {
		ret = s.Clear(v)
	}
	return
}

func protocolError(kind error, text string) error {
	if kind == ErrProtocolViolation {
		return fmt.Errorf("%s: %w", text, ErrProtocolViolation)
	}
	return fmt.Errorf("%s: %w: %w", text, ErrProtocolViolation, kind)
}

// Errors used by the protocol checkers.
var (
	ErrProtocolOpCodeReserved             = protocolError(ErrInvalidOpcode, "use of reserved op code")
	ErrProtocolControlPayloadOverflow     = protocolError(ErrOversizedPayload, "control frame payload limit exceeded")
	ErrProtocolControlNotFinal            = protocolError(ErrProtocolViolation, "control frame is not final")
	ErrProtocolNonZeroRsv                 = protocolError(ErrProtocolViolation, "non-zero rsv bits with no extension negotiated")
	ErrProtocolContinuationExpected       = protocolError(ErrProtocolViolation, "unexpected non-continuation data frame")
	ErrProtocolContinuationUnexpected     = protocolError(ErrProtocolViolation, "unexpected continuation data frame")
	ErrProtocolStatusCodeNotInUse         = protocolError(ErrProtocolViolation, "status code is not in use")
	ErrProtocolStatusCodeApplicationLevel = protocolError(ErrProtocolViolation, "status code is only application level")
	ErrProtocolStatusCodeNoMeaning        = protocolError(ErrProtocolViolation, "status code has no meaning yet")
	ErrProtocolStatusCodeUnknown          = protocolError(ErrProtocolViolation, "status code is not defined in spec")
	ErrProtocolInvalidUTF8                = protocolError(ErrProtocolViolation, "invalid utf8 sequence in close reason")
	ErrProtocolInvalidUTF8Text            = protocolError(ErrProtocolViolation, "invalid utf8 sequence in text message")
)

// CheckHeader checks h to contain valid header data for given state s.
//
// Note that zero state (0) means that state is clean,
// neither client side, nor fragmented, nor extended.
//
// Masked frames are accepted on the client side: RFC6455 only forbids
// clients to send unmasked frames, and the reader unmasks whatever it gets.
func CheckHeader(h Header, s State) error {
	if h.OpCode.IsReserved() {
		return ErrProtocolOpCodeReserved
	}
	if h.OpCode.IsControl() {
		if h.Length > MaxControlFramePayloadSize {
			return ErrProtocolControlPayloadOverflow
		}
		if !h.Fin {
			return ErrProtocolControlNotFinal
		}
	}

	switch {
	// [RFC6455]: MUST be 0 unless an extension is negotiated that defines meanings for
	// non-zero values. If a nonzero value is received and none of the
	// negotiated extensions defines the meaning of such a nonzero value, the
	// receiving endpoint MUST _Fail the WebSocket Connection_.
	case h.Rsv != 0 && !s.Is(StateExtended):
		return ErrProtocolNonZeroRsv

	// [RFC6455]: See detailed explanation in 5.4 section.
	case s.Is(StateFragmented) && !h.OpCode.IsControl() && h.OpCode != OpContinuation:
		return ErrProtocolContinuationExpected
	case !s.Is(StateFragmented) && h.OpCode == OpContinuation:
		return ErrProtocolContinuationUnexpected
	}

	return nil
}

// CheckCloseFrameData checks received close information
// to be valid RFC6455 compatible close info.
//
// Note that code.Empty() or code.IsAppLevel() will raise error.
//
// If endpoint sends close frame without status code (with frame.Length = 0),
// application should not check its payload.
func CheckCloseFrameData(code StatusCode, reason string) error {
	switch {
	case code.IsNotUsed():
		return ErrProtocolStatusCodeNotInUse

	case code.IsProtocolReserved():
		return ErrProtocolStatusCodeApplicationLevel

	case code == StatusNoMeaningYet:
		return ErrProtocolStatusCodeNoMeaning

	case code.IsProtocolSpec() && !code.IsProtocolDefined():
		return ErrProtocolStatusCodeUnknown

	case !utf8.ValidString(reason):
		return ErrProtocolInvalidUTF8

	default:
		return nil
	}
}
