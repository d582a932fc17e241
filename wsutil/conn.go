package wsutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gobwas/pool/pbytes"
	"go.uber.org/zap"

	"github.com/websock/ws"
)

// Message represents a message from peer, that could be presented in one or
// more frames. That is, it contains payload of all message fragments and
// operation code of initial frame for this message.
//
// For close messages Code and Reason hold the parsed close frame data.
type Message struct {
	OpCode  ws.OpCode
	Payload []byte
	Code    ws.StatusCode
	Reason  string
}

// Text returns payload as a string.
func (m Message) Text() string {
	return string(m.Payload)
}

// Conn is a client side websocket connection over some established
// transport.
//
// Conn is safe for concurrent use: one goroutine could receive while others
// send. Sends are serialized by send lock so frames are never interleaved on
// the wire. Receives are serialized by receive lock. When receiving requires
// a reply (pong or close echo), receive lock is taken first and then send
// lock, never in the other order.
//
// Any error makes Conn dead: the transport is closed and all further calls
// return an error matching ws.ErrConnectionClosed.
type Conn struct {
	rwc io.ReadWriteCloser
	hs  ws.Handshake
	log *zap.Logger

	state   ws.State
	encoder ws.Encoder
	control FrameHandler

	sendMu sync.Mutex

	recvMu    sync.Mutex
	reader    *FrameReader
	assembler Assembler

	closed atomic.Bool
	errMu  sync.Mutex
	err    error
}

// NewConn creates Conn over established transport. The hs is the result of
// the opening handshake performed on rwc.
func NewConn(rwc io.ReadWriteCloser, hs ws.Handshake, opts *Options) *Conn {
	rwc = withTimeout(rwc, opts.timeout())

	c := &Conn{
		rwc:     rwc,
		hs:      hs,
		encoder: ws.Encoder{Random: opts.random()},
		state:   ws.StateClientSide.SetOrClearIf(len(hs.Extensions) > 0, ws.StateExtended),
	}
	log := opts.logger()
	if addr := remoteAddr(rwc); addr != nil {
		log = log.With(zap.Stringer("remote_addr", addr))
	}
	c.log = log

	c.reader = NewFrameReader(rwc)
	c.reader.OnHeader = c.checkHeader
	if opts != nil {
		c.reader.ChunkSize = opts.ChunkSize
		c.reader.MaxFrameSize = opts.MaxFrameSize
		c.assembler.Limit = opts.MaxMessageSize
	}
	c.control = ControlHandler(c.sendControl)

	return c
}

// Handshake returns the result of the opening handshake.
func (c *Conn) Handshake() ws.Handshake {
	return c.hs
}

// RemoteAddr returns address of the peer if transport exposes it.
func (c *Conn) RemoteAddr() net.Addr {
	return remoteAddr(c.rwc)
}

// Closed reports whether the connection is dead.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Send sends single frame with given operation code and fin flag. The p is
// masked on the wire but is not modified. It returns the number of bytes
// written to the transport including header.
func (c *Conn) Send(p []byte, op ws.OpCode, fin bool) (int, error) {
	if err := c.closedError(); err != nil {
		return 0, err
	}
	if op.IsControl() && len(p) > ws.MaxControlFramePayloadSize {
		return 0, c.fail(fmt.Errorf(
			"%w: %s payload of %d bytes", ws.ErrOversizedPayload, op, len(p),
		))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	n, err := c.write(ws.NewFrame(op, fin, p))
	if err != nil {
		return n, c.fail(err)
	}
	return n, nil
}

// SendText sends s as a single text frame.
func (c *Conn) SendText(s string) (int, error) {
	return c.Send([]byte(s), ws.OpText, true)
}

// SendBinary sends p as a single binary frame.
func (c *Conn) SendBinary(p []byte) (int, error) {
	return c.Send(p, ws.OpBinary, true)
}

// Ping sends ping frame with p as payload.
func (c *Conn) Ping(p []byte) (int, error) {
	return c.Send(p, ws.OpPing, true)
}

// Pong sends unsolicited pong frame with p as payload.
func (c *Conn) Pong(p []byte) (int, error) {
	return c.Send(p, ws.OpPong, true)
}

// Recv receives next data message. Control frames are handled internally.
func (c *Conn) Recv() (Message, error) {
	return c.RecvData(false)
}

// RecvData receives next message.
//
// Fragmented messages are assembled. Ping frames are replied with pong
// frames; if control is true, ping and pong frames are returned to the
// caller too, including those received between fragments of a data message.
//
// Close frame is echoed to the peer and returned as a message with Code and
// Reason set; the connection is closed after that.
func (c *Conn) RecvData(control bool) (Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for {
		if err := c.closedError(); err != nil {
			return Message{}, err
		}
		f, err := c.reader.ReadFrame()
		if err != nil {
			return Message{}, c.fail(err)
		}
		h := f.Header
		if ce := c.log.Check(zap.DebugLevel, "frame received"); ce != nil {
			ce.Write(
				zap.Stringer("opcode", h.OpCode),
				zap.Bool("fin", h.Fin),
				zap.Int64("length", h.Length),
			)
		}

		if h.OpCode.IsControl() {
			err := c.control(f)
			var closed ClosedError
			switch {
			case errors.As(err, &closed):
				c.fail(closed)
				return Message{
					OpCode:  ws.OpClose,
					Payload: f.Payload,
					Code:    closed.Code,
					Reason:  closed.Reason,
				}, nil
			case err != nil:
				return Message{}, c.fail(err)
			case control:
				return Message{OpCode: h.OpCode, Payload: f.Payload}, nil
			}
			continue
		}

		if err := c.assembler.Validate(f); err != nil {
			return Message{}, c.fail(err)
		}
		if err := c.assembler.Add(f); err != nil {
			return Message{}, c.fail(err)
		}
		if !c.assembler.IsFire(f) {
			continue
		}
		op, p := c.assembler.Extract()
		if op == ws.OpText && !utf8.Valid(p) {
			return Message{}, c.fail(ws.ErrProtocolInvalidUTF8Text)
		}
		return Message{OpCode: op, Payload: p}, nil
	}
}

// CloseWithStatus initiates closing handshake by sending close frame with
// given code and reason, and closes the transport. It does not wait for the
// peer's close frame.
func (c *Conn) CloseWithStatus(code ws.StatusCode, reason string) error {
	if err := c.closedError(); err != nil {
		return err
	}
	c.sendMu.Lock()
	_, err := c.write(ws.NewCloseFrame(ws.NewCloseFrameData(code, reason)))
	c.sendMu.Unlock()

	c.fail(ClosedError{code, reason})
	return err
}

// Close closes the connection with normal closure status.
func (c *Conn) Close() error {
	return c.CloseWithStatus(ws.StatusNormalClosure, "")
}

func (c *Conn) checkHeader(h ws.Header) error {
	s := c.state.SetOrClearIf(c.assembler.Pending(), ws.StateFragmented)
	return ws.CheckHeader(h, s)
}

func (c *Conn) sendControl(f ws.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err := c.write(f)
	return err
}

// write must be called with send lock held.
func (c *Conn) write(f ws.Frame) (int, error) {
	if c.closed.Load() {
		return 0, c.closedError()
	}
	f.Header.Masked = true

	buf := pbytes.GetLen(c.encoder.Size(f))
	defer pbytes.Put(buf)

	n, err := c.encoder.Put(buf, f)
	if err != nil {
		return 0, err
	}
	m, err := writeFull(c.rwc, buf[:n])
	if err != nil {
		return m, err
	}
	if ce := c.log.Check(zap.DebugLevel, "frame sent"); ce != nil {
		ce.Write(
			zap.Stringer("opcode", f.Header.OpCode),
			zap.Bool("fin", f.Header.Fin),
			zap.Int("length", len(f.Payload)),
		)
	}
	return m, nil
}

// fail makes the connection dead. The first error is remembered and the
// transport is closed. It returns err for convenience.
func (c *Conn) fail(err error) error {
	c.errMu.Lock()
	first := c.err == nil
	if first {
		c.err = err
		c.closed.Store(true)
	}
	c.errMu.Unlock()

	if !first {
		return err
	}
	var closed ClosedError
	if errors.As(err, &closed) {
		c.log.Info("connection closed",
			zap.Uint16("code", uint16(closed.Code)),
			zap.String("reason", closed.Reason),
		)
	} else {
		c.log.Warn("connection failed", zap.Error(err))
	}
	if cerr := c.rwc.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		c.log.Debug("close transport", zap.Error(cerr))
	}
	return err
}

// closedError returns non-nil error if the connection is dead.
func (c *Conn) closedError() error {
	if !c.closed.Load() {
		return nil
	}
	c.errMu.Lock()
	err := c.err
	c.errMu.Unlock()

	var closed ClosedError
	if errors.As(err, &closed) {
		return closed
	}
	return fmt.Errorf("%w: %v", ws.ErrConnectionClosed, err)
}

// writeFull writes whole p to w, retrying on short writes.
func writeFull(w io.Writer, p []byte) (n int, err error) {
	for n < len(p) {
		var m int
		m, err = w.Write(p[n:])
		n += m
		switch {
		case err != nil:
			return n, writeError(err)
		case m == 0:
			return n, ws.ErrConnectionClosed
		}
	}
	return n, nil
}

func writeError(err error) error {
	if errors.Is(err, net.ErrClosed) || err == io.ErrClosedPipe {
		return fmt.Errorf("%w: %w", ws.ErrConnectionClosed, err)
	}
	return fmt.Errorf("%w: %w", ws.ErrTransport, err)
}
