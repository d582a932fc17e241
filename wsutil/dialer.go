package wsutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/websock/ws"
)

// Dial connects to the urlstr, performs the opening handshake and returns
// Conn ready for messaging.
//
// Errors match ws.ErrConnectionFailed if transport could not be established
// and ws.ErrHandshakeFailed if the server did not accept the upgrade.
func Dial(ctx context.Context, urlstr string, opts *Options) (*Conn, error) {
	d, err := opts.Dialer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ws.ErrConnectionFailed, err)
	}
	log := opts.logger().With(zap.String("url", urlstr))

	var (
		conn net.Conn
		br   *bufio.Reader
		hs   ws.Handshake
	)
	if log.Core().Enabled(zap.DebugLevel) {
		dd := DebugDialer{
			Dialer: d,
			OnRequest: func(p []byte) {
				log.Debug("handshake request", zap.ByteString("request", p))
			},
			OnResponse: func(p []byte) {
				log.Debug("handshake response", zap.ByteString("response", p))
			},
		}
		conn, br, hs, err = dd.Dial(ctx, urlstr)
	} else {
		conn, br, hs, err = d.Dial(ctx, urlstr)
	}
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		return nil, err
	}
	log.Info("connected",
		zap.String("protocol", hs.Protocol),
		zap.Int("extensions", len(hs.Extensions)),
	)

	var rwc io.ReadWriteCloser = conn
	if br != nil {
		rwc = &bufferedConn{Conn: conn, br: br}
	}
	if opts != nil && opts.Logger != nil {
		o := *opts
		o.Logger = log
		opts = &o
	}
	return NewConn(rwc, hs, opts), nil
}

// DebugDialer is a wrapper around ws.Dialer. It tracks i/o of WebSocket
// handshake. That is, it gives ability to receive copied HTTP request and
// response bytes that made inside Dialer.Dial().
//
// Note that it must not be used in production applications that requires
// Dial() efficiency.
type DebugDialer struct {
	// Dialer is used to make Dial().
	Dialer ws.Dialer

	// OnRequest and OnResponse are the callbacks that will be called with the
	// HTTP request and response respectively.
	OnRequest, OnResponse func([]byte)
}

// Dial connects to the url host and upgrades connection to WebSocket. It makes
// it by calling d.Dialer.Dial().
//
// Returned conn is the raw connection, not the tracking wrapper. Returned br
// holds bytes received after the response, if any.
func (d *DebugDialer) Dial(ctx context.Context, urlstr string) (conn net.Conn, br *bufio.Reader, hs ws.Handshake, err error) {
	// Copy to prevent original object mutation.
	dialer := d.Dialer
	var (
		reqBuf bytes.Buffer
		resBuf bytes.Buffer
	)
	userWrap := dialer.WrapConn
	dialer.WrapConn = func(c net.Conn) net.Conn {
		if userWrap != nil {
			c = userWrap(c)
		}
		conn = c
		return rwConn{
			Conn: c,
			r:    io.TeeReader(c, &resBuf),
			w:    io.MultiWriter(c, &reqBuf),
		}
	}

	_, br, hs, err = dialer.Dial(ctx, urlstr)

	if onRequest := d.OnRequest; onRequest != nil {
		onRequest(reqBuf.Bytes())
	}
	if onResponse := d.OnResponse; onResponse != nil {
		onResponse(responseBytes(resBuf.Bytes()))
	}
	if err != nil {
		return nil, nil, hs, err
	}
	return conn, br, hs, nil
}

// responseBytes cuts bytes received after the response end.
func responseBytes(bts []byte) []byte {
	src := bytes.NewReader(bts)
	br := bufio.NewReader(src)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return bts
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return bts[:len(bts)-src.Len()-br.Buffered()]
}

type rwConn struct {
	net.Conn

	r io.Reader
	w io.Writer
}

func (rwc rwConn) Read(p []byte) (int, error) {
	return rwc.r.Read(p)
}

func (rwc rwConn) Write(p []byte) (int, error) {
	return rwc.w.Write(p)
}
