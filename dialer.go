package ws

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/httphead"
	"github.com/gobwas/pool/pbufio"
)

// Sizes of pooled buffers used during the handshake.
const (
	DefaultClientReadBufferSize  = 4096
	DefaultClientWriteBufferSize = 4096
)

// Handshake represents handshake result.
type Handshake struct {
	// Status is the HTTP status code of the server response.
	Status int

	// Protocol is the subprotocol selected by the server.
	Protocol string

	// Extensions holds the offered extensions accepted by the server.
	//
	// Negotiation is only acknowledged: frames are not transformed by any
	// extension, but rsv bits are allowed when the list is not empty.
	Extensions []httphead.Option

	// Header contains the rest of response headers.
	Header http.Header
}

// Dialer opens client connections. Zero value is ready to use.
type Dialer struct {
	// ReadBufferSize and WriteBufferSize limit the handshake i/o buffers.
	// Zero means default size.
	ReadBufferSize, WriteBufferSize int

	// Timeout limits connect and handshake together. Zero means no limit
	// other than the one of the context passed to Dial().
	Timeout time.Duration

	// Protocols lists subprotocols in order of preference.
	Protocols []string

	// Extensions lists extensions offered to the server.
	Extensions []httphead.Option

	// Header contains additional headers to be sent with the upgrade request.
	Header http.Header

	// NetDial replaces net.Dialer.DialContext when set.
	NetDial func(ctx context.Context, network, addr string) (net.Conn, error)

	// TLSConfig is used for "wss" urls. Empty ServerName is filled from the
	// url host on a copy of the config.
	TLSConfig *tls.Config

	// WrapConn is called with the transport right before the handshake.
	WrapConn func(conn net.Conn) net.Conn
}

// Dial connects to the url host and upgrades connection to WebSocket.
//
// Non-nil br is returned only when the server has sent bytes right after the
// handshake response. It should be released with PutReader() when drained.
//
// Transport errors wrap ErrConnectionFailed, upgrade errors wrap
// ErrHandshakeFailed. The connection is closed on any error.
func (d Dialer) Dial(ctx context.Context, urlstr string) (conn net.Conn, br *bufio.Reader, hs Handshake, err error) {
	u, err := url.ParseRequestURI(urlstr)
	if err != nil {
		return nil, nil, hs, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	if conn, err = d.dial(ctx, u); err != nil {
		return nil, nil, hs, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if br, hs, err = d.request(ctx, conn, u); err != nil {
		conn.Close()
		if !errors.Is(err, ErrHandshakeFailed) {
			err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		return nil, nil, hs, err
	}
	return conn, br, hs, nil
}

func (d Dialer) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	var port string
	switch u.Scheme {
	case "ws":
		port = ":80"
	case "wss":
		port = ":443"
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	dial := d.NetDial
	if dial == nil {
		var nd net.Dialer
		dial = nd.DialContext
	}
	hostname, addr := hostport(u.Host, port)
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "wss" {
		// TLS handshake happens on first i/o, under the request cancelation.
		conn = tls.Client(conn, d.tlsConfig(hostname))
	}
	if d.WrapConn != nil {
		conn = d.WrapConn(conn)
	}
	return conn, nil
}

func (d Dialer) tlsConfig(hostname string) *tls.Config {
	config := d.TLSConfig
	if config == nil {
		config = new(tls.Config)
	}
	if config.ServerName == "" {
		config = config.Clone()
		config.ServerName = strings.Trim(hostname, "[]")
	}
	return config
}

// aLongTimeAgo is a non-zero time in the past, used to break pending i/o.
var aLongTimeAgo = time.Unix(42, 0)

// request writes the upgrade request and reads the response. Returned br is
// non-nil only if it holds bytes received after the response.
func (d Dialer) request(ctx context.Context, conn net.Conn, u *url.URL) (br *bufio.Reader, hs Handshake, err error) {
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})
	defer func() {
		if stop() {
			return
		}
		// The deadline was moved by cancelation, so a timeout error is
		// reported as the context error.
		if err == nil || isTimeoutError(err) {
			err = ctx.Err()
		}
		if br != nil {
			pbufio.PutReader(br)
			br = nil
		}
	}()

	bw := pbufio.GetWriter(conn, nonZero(d.WriteBufferSize, DefaultClientWriteBufferSize))
	defer pbufio.PutWriter(bw)

	var nonce [nonceSize]byte
	initNonce(nonce[:])
	if err = httpWriteUpgradeRequest(bw, u, nonce[:], d.Protocols, d.Extensions, d.Header); err != nil {
		return nil, hs, err
	}
	if err = bw.Flush(); err != nil {
		return nil, hs, err
	}

	br = pbufio.GetReader(conn, nonZero(d.ReadBufferSize, DefaultClientReadBufferSize))
	hs, err = d.readResponse(br, nonce[:])
	if err != nil || br.Buffered() == 0 {
		pbufio.PutReader(br)
		br = nil
	}
	return br, hs, err
}

var (
	canonicalSecAccept     = textproto.CanonicalMIMEHeaderKey(headerSecAccept)
	canonicalSecProtocol   = textproto.CanonicalMIMEHeaderKey(headerSecProtocol)
	canonicalSecExtensions = textproto.CanonicalMIMEHeaderKey(headerSecExtensions)
)

// readResponse reads and validates the handshake response.
// See https://tools.ietf.org/html/rfc6455#section-4.2.2
func (d Dialer) readResponse(br *bufio.Reader, nonce []byte) (hs Handshake, err error) {
	line, err := httphead.ReadLine(br)
	if err != nil {
		return hs, err
	}
	resp, ok := httphead.ParseResponseLine(line)
	if !ok {
		return hs, ErrMalformedResponse
	}
	// "1.1 or higher" is applied to the minor version only.
	if resp.Version.Major != 1 || resp.Version.Minor < 1 {
		return hs, ErrHandshakeBadProtocol
	}
	hs.Status = resp.Status
	if resp.Status != http.StatusSwitchingProtocols {
		return hs, StatusError(resp.Status)
	}

	var seen requiredHeaders
	for {
		line, err = httphead.ReadLine(br)
		if err != nil {
			return hs, err
		}
		if len(line) == 0 {
			break
		}
		k, v, ok := httphead.ParseHeaderLine(line)
		if !ok {
			return hs, ErrMalformedResponse
		}
		key := textproto.CanonicalMIMEHeaderKey(string(k))
		if err = d.checkResponseHeader(&hs, &seen, key, v, nonce); err != nil {
			return hs, err
		}
	}
	return hs, seen.check()
}

func (d Dialer) checkResponseHeader(hs *Handshake, seen *requiredHeaders, key string, v, nonce []byte) error {
	switch key {
	case headerUpgrade:
		seen.upgrade = true
		if !bytes.EqualFold(v, specHeaderValueUpgrade) {
			return ErrHandshakeBadUpgrade
		}
	case headerConnection:
		seen.connection = true
		if !httpHasToken(v, specHeaderValueConnection) {
			return ErrHandshakeBadConnection
		}
	case canonicalSecAccept:
		seen.accept = true
		if !checkAcceptFromNonce(v, nonce) {
			return ErrHandshakeBadSecAccept
		}
	case canonicalSecProtocol:
		// The server selects one of the offered protocols or none.
		i := slices.Index(d.Protocols, string(v))
		if i < 0 {
			return ErrHandshakeBadSubProtocol
		}
		hs.Protocol = d.Protocols[i]
	case canonicalSecExtensions:
		var err error
		hs.Extensions, err = matchSelectedExtensions(v, d.Extensions, hs.Extensions)
		return err
	default:
		if hs.Header == nil {
			hs.Header = make(http.Header)
		}
		hs.Header.Add(key, string(v))
	}
	return nil
}

// requiredHeaders tracks response headers which must be present after 101.
type requiredHeaders struct {
	upgrade, connection, accept bool
}

func (r requiredHeaders) check() error {
	switch {
	case !r.upgrade:
		return ErrHandshakeBadUpgrade
	case !r.connection:
		return ErrHandshakeBadConnection
	case !r.accept:
		return ErrHandshakeBadSecAccept
	}
	return nil
}

// PutReader returns br received from Dialer.Dial() to the pool.
func PutReader(br *bufio.Reader) {
	pbufio.PutReader(br)
}

// StatusError contains an unexpected status-line code from the server.
type StatusError int

func (s StatusError) Error() string {
	return "unexpected HTTP response status: " + strconv.Itoa(int(s))
}

// Unwrap makes StatusError match ErrHandshakeFailed.
func (s StatusError) Unwrap() error {
	return ErrHandshakeFailed
}

func isTimeoutError(err error) bool {
	var t net.Error
	return errors.As(err, &t) && t.Timeout()
}

// matchSelectedExtensions checks that every extension selected by server is
// present in wanted list. Matched items of wanted are appended to received.
func matchSelectedExtensions(selected []byte, wanted, received []httphead.Option) ([]httphead.Option, error) {
	if len(selected) == 0 {
		return received, nil
	}
	options, ok := httphead.ParseOptions(selected, nil)
	if !ok {
		return received, ErrMalformedResponse
	}
	for _, option := range options {
		i := slices.IndexFunc(wanted, func(w httphead.Option) bool {
			return bytes.EqualFold(option.Name, w.Name)
		})
		if i < 0 {
			return received, ErrHandshakeBadExtensions
		}
		received = append(received, wanted[i])
	}
	return received, nil
}
