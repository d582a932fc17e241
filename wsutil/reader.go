package wsutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/websock/ws"
)

// DefaultChunkSize is the maximum number of bytes requested from the source
// by a single Read() call.
const DefaultChunkSize = 16384

type readState uint8

const (
	stateHeader readState = iota
	stateLength
	stateMask
	statePayload
)

func (s readState) String() string {
	switch s {
	case stateHeader:
		return "header"
	case stateLength:
		return "length"
	case stateMask:
		return "mask"
	case statePayload:
		return "payload"
	}
	return "unknown"
}

// partial holds the frame which is being read.
type partial struct {
	header     ws.Header
	lengthBits byte
	payload    []byte
	n          int // Number of payload bytes received.
}

// FrameReader reads frames from the source one by one. It does not rely on
// any delivery boundaries of the source: each frame field could be received
// by any number of Read() calls, and bytes which belong to the next field
// are kept until they are needed.
//
// FrameReader methods are safe for concurrent use: ReadFrame() calls are
// serialized, so concurrent callers wait for the frame being read to be
// completed.
//
// Any error returned by ReadFrame() leaves the stream in undefined state, so
// the reader must not be used after it.
type FrameReader struct {
	// ChunkSize limits the number of bytes requested by a single Read() call.
	// If ChunkSize is zero, DefaultChunkSize is used.
	ChunkSize int

	// MaxFrameSize limits the payload length of a single frame. If
	// MaxFrameSize is zero, ws.PlatformSizeLimit is used.
	MaxFrameSize int64

	// OnHeader is called when frame header is completely received and before
	// the payload is read. Non-nil error returned by OnHeader is returned by
	// ReadFrame().
	OnHeader func(ws.Header) error

	src io.Reader

	mu      sync.Mutex
	stage   stage
	state   readState
	partial partial
}

// NewFrameReader creates FrameReader that reads frames from src.
func NewFrameReader(src io.Reader) *FrameReader {
	return &FrameReader{src: src}
}

// Buffered returns the number of bytes received from the source which are
// not consumed yet.
func (r *FrameReader) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage.buffered()
}

// ReadFrame reads next frame from the source. Masked payload is unmasked.
//
// If the source returns zero bytes, ReadFrame returns ws.ErrConnectionClosed.
// Other source errors are wrapped with ws.ErrTransport.
func (r *FrameReader) ReadFrame() (ws.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &r.partial
	for {
		switch r.state {
		case stateHeader:
			bts, err := r.recvExact(2)
			if err != nil {
				return ws.Frame{}, err
			}
			*p = partial{}
			p.header, p.lengthBits = ws.DecodeHeader(bts[0], bts[1])
			r.state = stateLength

		case stateLength:
			var n int
			switch p.lengthBits {
			case ws.LengthBits16:
				n = 2
			case ws.LengthBits64:
				n = 8
			}
			if n > 0 {
				bts, err := r.recvExact(n)
				if err != nil {
					return ws.Frame{}, err
				}
				if p.header.Length, err = ws.DecodeLength(bts); err != nil {
					return ws.Frame{}, err
				}
			}
			if limit := r.maxFrameSize(); p.header.Length > limit {
				return ws.Frame{}, fmt.Errorf(
					"%w: frame payload length %d exceeds limit %d",
					ws.ErrOversizedPayload, p.header.Length, limit,
				)
			}
			r.state = stateMask

		case stateMask:
			if p.header.Masked {
				bts, err := r.recvExact(4)
				if err != nil {
					return ws.Frame{}, err
				}
				copy(p.header.Mask[:], bts)
			}
			if cb := r.OnHeader; cb != nil {
				if err := cb(p.header); err != nil {
					return ws.Frame{}, err
				}
			}
			p.payload = make([]byte, 0, min(p.header.Length, int64(r.chunkSize())))
			r.state = statePayload

		case statePayload:
			if err := r.recvPayload(); err != nil {
				return ws.Frame{}, err
			}
			f := ws.Frame{
				Header:  p.header,
				Payload: p.payload,
			}
			*p = partial{}
			r.state = stateHeader
			return f, nil
		}
	}
}

// recvExact returns exactly n bytes from the stage, reading from the source
// as many times as needed. Surplus bytes stay in the stage.
func (r *FrameReader) recvExact(n int) ([]byte, error) {
	for r.stage.buffered() < n {
		want := min(r.chunkSize(), n-r.stage.buffered())
		m, err := r.stage.fill(r.src, want)
		if err = readError(m, err); err != nil {
			return nil, err
		}
	}
	return r.stage.next(n), nil
}

// recvPayload fills the partial payload. Staged bytes are used first, the
// rest is read right into the payload and unmasked as it arrives. The payload
// grows by at most ChunkSize bytes per read, so its size follows the bytes
// actually received rather than the declared length.
func (r *FrameReader) recvPayload() error {
	p := &r.partial
	for int64(p.n) < p.header.Length {
		want := r.chunkSize()
		if rest := p.header.Length - int64(p.n); rest < int64(want) {
			want = int(rest)
		}
		p.payload = growPayload(p.payload, p.n+want)
		buf := p.payload[p.n : p.n+want]

		var m int
		if r.stage.buffered() > 0 {
			m = r.stage.drain(buf)
		} else {
			var err error
			m, err = r.src.Read(buf)
			if err = readError(m, err); err != nil {
				return err
			}
		}
		if p.header.Masked {
			ws.Cipher(buf[:m], p.header.Mask, p.n)
		}
		p.n += m
	}
	p.payload = p.payload[:p.n]
	return nil
}

// growPayload returns p resliced to n bytes, reallocating when its capacity
// is not enough. Bytes of p up to its capacity are preserved.
func growPayload(p []byte, n int) []byte {
	if n <= cap(p) {
		return p[:n]
	}
	return append(p[:cap(p)], make([]byte, n-cap(p))...)[:n]
}

func (r *FrameReader) chunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize
}

func (r *FrameReader) maxFrameSize() int64 {
	if r.MaxFrameSize > 0 {
		return r.MaxFrameSize
	}
	return ws.PlatformSizeLimit
}

// readError converts result of source Read() call into the reader error.
// Read of zero bytes means that the source is closed.
func readError(n int, err error) error {
	switch {
	case err == nil || err == io.EOF:
		if n == 0 {
			return ws.ErrConnectionClosed
		}
		return nil
	case errors.Is(err, net.ErrClosed) || err == io.ErrUnexpectedEOF:
		return fmt.Errorf("%w: %w", ws.ErrConnectionClosed, err)
	default:
		return fmt.Errorf("%w: %w", ws.ErrTransport, err)
	}
}
