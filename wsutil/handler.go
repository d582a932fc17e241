package wsutil

import (
	"fmt"
	"strconv"

	"github.com/websock/ws"
)

// ErrNotControlFrame is returned when data frame is passed to control frame
// handler.
var ErrNotControlFrame = fmt.Errorf("not a control frame: %w", ws.ErrProtocolViolation)

// FrameSender writes single frame to the peer.
type FrameSender func(f ws.Frame) error

// FrameHandler handles received control frame.
type FrameHandler func(f ws.Frame) error

// ClosedError returned when peer has closed the connection with appropriate
// code and a textual reason.
type ClosedError struct {
	Code   ws.StatusCode
	Reason string
}

// Error implements error interface.
func (err ClosedError) Error() string {
	return "ws closed: " + strconv.FormatUint(uint64(err.Code), 10) + " " + err.Reason
}

// Unwrap makes ClosedError match ws.ErrConnectionClosed.
func (err ClosedError) Unwrap() error {
	return ws.ErrConnectionClosed
}

// PingHandler returns FrameHandler that replies to ping frame with pong frame
// carrying the same payload.
func PingHandler(send FrameSender) FrameHandler {
	return func(f ws.Frame) error {
		if err := checkControl(f.Header); err != nil {
			sendProtocolErrorCloseFrame(send, err)
			return err
		}
		return send(ws.NewPongFrame(f.Payload))
	}
}

// PongHandler returns FrameHandler that handles pong frame by discarding it.
func PongHandler(send FrameSender) FrameHandler {
	return func(f ws.Frame) error {
		// A Pong frame MAY be sent unsolicited. A response to it is not
		// expected.
		if err := checkControl(f.Header); err != nil {
			sendProtocolErrorCloseFrame(send, err)
			return err
		}
		return nil
	}
}

// CloseHandler returns FrameHandler that handles close frame, makes protocol
// validity checks and echoes the close frame. On success it returns
// ClosedError with the received code and reason.
func CloseHandler(send FrameSender) FrameHandler {
	return func(f ws.Frame) error {
		if err := checkControl(f.Header); err != nil {
			sendProtocolErrorCloseFrame(send, err)
			return err
		}
		var (
			reply  ws.Frame
			code   ws.StatusCode
			reason string
		)
		if len(f.Payload) == 0 {
			// If this Close control frame contains no status code, The
			// WebSocket Connection Close Code is considered to be 1005.
			reply = ws.NewCloseFrame(nil)
			code = ws.StatusNoStatusRcvd
		} else {
			code, reason = ws.ParseCloseFrameData(f.Payload)
			if err := ws.CheckCloseFrameData(code, reason); err != nil {
				sendProtocolErrorCloseFrame(send, err)
				return err
			}
			reply = ws.NewCloseFrame(f.Payload[:2])
		}
		if err := send(reply); err != nil {
			return err
		}
		return ClosedError{code, reason}
	}
}

// ControlHandler returns FrameHandler that dispatches control frames to the
// handlers above.
func ControlHandler(send FrameSender) FrameHandler {
	pingHandler := PingHandler(send)
	pongHandler := PongHandler(send)
	closeHandler := CloseHandler(send)

	return func(f ws.Frame) error {
		switch f.Header.OpCode {
		case ws.OpPing:
			return pingHandler(f)
		case ws.OpPong:
			return pongHandler(f)
		case ws.OpClose:
			return closeHandler(f)
		}
		return ErrNotControlFrame
	}
}

// checkControl checks the limits of control frames. Rsv bits depend on the
// negotiated extensions and are checked when the header is received.
func checkControl(h ws.Header) error {
	if !h.OpCode.IsControl() {
		return ErrNotControlFrame
	}
	return ws.CheckHeader(h, ws.StateClientSide|ws.StateExtended)
}

func sendProtocolErrorCloseFrame(send FrameSender, err error) error {
	reason := err.Error()
	return send(ws.NewCloseFrame(ws.NewCloseFrameData(ws.StatusProtocolError, reason)))
}
