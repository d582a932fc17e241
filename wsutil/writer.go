package wsutil

import (
	"io"

	"github.com/websock/ws"
)

// DefaultWriteBuffer is the fragment size used by Writer when no buffer size
// is given.
const DefaultWriteBuffer = 4096

// Sender sends single frame with given operation code and fin flag. Conn
// implements it.
type Sender interface {
	Send(p []byte, op ws.OpCode, fin bool) (int, error)
}

// Writer buffers written bytes and sends them as one fragmented message.
// Every time the buffer is full, a non-final fragment is sent; Flush() sends
// the rest as the final fragment. The first fragment carries the message
// operation code, the next ones are continuation frames.
//
// Writer is not goroutine safe. Frames of the message could interleave with
// other data frames sent to the same Sender, so at most one Writer should be
// active at a time.
type Writer struct {
	dst Sender
	op  ws.OpCode
	buf []byte
	n   int

	// dirty is true when something was written since the last flush, even
	// empty slice: empty message still has a value.
	dirty  bool
	frames int
}

// NewWriter creates Writer that sends messages with given operation code
// using fragments of DefaultWriteBuffer bytes.
func NewWriter(dst Sender, op ws.OpCode) *Writer {
	return NewWriterSize(dst, op, 0)
}

// NewWriterSize creates Writer with fragments of at most n bytes. If n is
// not positive, DefaultWriteBuffer is used.
func NewWriterSize(dst Sender, op ws.OpCode, n int) *Writer {
	if n <= 0 {
		n = DefaultWriteBuffer
	}
	return &Writer{
		dst: dst,
		op:  op,
		buf: make([]byte, n),
	}
}

// Reset drops buffered bytes and prepares w to write a new message with
// given operation code.
func (w *Writer) Reset(op ws.OpCode) {
	w.op = op
	w.n = 0
	w.dirty = false
	w.frames = 0
}

// Buffered returns the number of bytes that are not sent yet.
func (w *Writer) Buffered() int {
	return w.n
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.dirty = true
	for len(p) > 0 {
		if w.n == len(w.buf) {
			if err = w.send(w.buf, false); err != nil {
				return n, err
			}
			w.n = 0
		}
		m := copy(w.buf[w.n:], p)
		w.n += m
		n += m
		p = p[m:]
	}
	return n, nil
}

// ReadFrom implements io.ReaderFrom.
func (w *Writer) ReadFrom(src io.Reader) (n int64, err error) {
	for {
		if w.n == len(w.buf) {
			if err = w.send(w.buf, false); err != nil {
				return n, err
			}
			w.n = 0
		}
		var m int
		m, err = src.Read(w.buf[w.n:])
		w.n += m
		n += int64(m)
		w.dirty = true
		if err != nil {
			break
		}
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Flush sends buffered bytes as the final fragment of the message. Flush
// does nothing if nothing was written since the last Flush.
func (w *Writer) Flush() error {
	if w.n == 0 && !w.dirty {
		return nil
	}
	err := w.send(w.buf[:w.n], true)
	w.n = 0
	w.dirty = false
	w.frames = 0
	return err
}

func (w *Writer) send(p []byte, fin bool) error {
	op := w.op
	if w.frames > 0 {
		op = ws.OpContinuation
	}
	_, err := w.dst.Send(p, op, fin)
	w.frames++
	return err
}
