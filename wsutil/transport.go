package wsutil

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/websock/ws"
)

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// timeoutConn sets fresh deadline before every read and write, so timeout
// bounds each blocking operation separately.
type timeoutConn struct {
	io.ReadWriteCloser
	d       deadliner
	timeout time.Duration
}

func withTimeout(rwc io.ReadWriteCloser, timeout time.Duration) io.ReadWriteCloser {
	if timeout <= 0 {
		return rwc
	}
	d, ok := rwc.(deadliner)
	if !ok {
		return rwc
	}
	return &timeoutConn{rwc, d, timeout}
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if err := c.d.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.ReadWriteCloser.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if err := c.d.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.ReadWriteCloser.Write(p)
}

// SetReadDeadline and SetWriteDeadline keep timeoutConn a deadliner itself.
func (c *timeoutConn) SetReadDeadline(t time.Time) error  { return c.d.SetReadDeadline(t) }
func (c *timeoutConn) SetWriteDeadline(t time.Time) error { return c.d.SetWriteDeadline(t) }

// bufferedConn reads bytes that were buffered during the handshake before
// reading from the connection itself.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if c.br != nil {
		if c.br.Buffered() > 0 {
			return c.br.Read(p)
		}
		ws.PutReader(c.br)
		c.br = nil
	}
	return c.Conn.Read(p)
}

func remoteAddr(rwc io.ReadWriteCloser) net.Addr {
	if c, ok := rwc.(interface{ RemoteAddr() net.Addr }); ok {
		return c.RemoteAddr()
	}
	return nil
}
