package ws

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/httphead"
)

const (
	crlf          = "\r\n"
	colonAndSpace = ": "
	commaAndSpace = ", "
)

const (
	headerHost          = "Host"
	headerUpgrade       = "Upgrade"
	headerConnection    = "Connection"
	headerSecVersion    = "Sec-WebSocket-Version"
	headerSecProtocol   = "Sec-WebSocket-Protocol"
	headerSecExtensions = "Sec-WebSocket-Extensions"
	headerSecKey        = "Sec-WebSocket-Key"
	headerSecAccept     = "Sec-WebSocket-Accept"
)

var (
	specHeaderValueUpgrade    = []byte("websocket")
	specHeaderValueConnection = []byte("Upgrade")
	specHeaderValueSecVersion = "13"
)

// Errors used by the websocket client during handshake.
var (
	ErrHandshakeBadProtocol    = fmt.Errorf("%w: bad HTTP protocol version", ErrHandshakeFailed)
	ErrHandshakeBadUpgrade     = fmt.Errorf("%w: bad %q header", ErrHandshakeFailed, headerUpgrade)
	ErrHandshakeBadConnection  = fmt.Errorf("%w: bad %q header", ErrHandshakeFailed, headerConnection)
	ErrHandshakeBadSecAccept   = fmt.Errorf("%w: bad %q header", ErrHandshakeFailed, headerSecAccept)
	ErrHandshakeBadSubProtocol = fmt.Errorf("%w: unexpected protocol in %q header", ErrHandshakeFailed, headerSecProtocol)
	ErrHandshakeBadExtensions  = fmt.Errorf("%w: unexpected extensions in %q header", ErrHandshakeFailed, headerSecExtensions)
	ErrMalformedResponse       = fmt.Errorf("%w: malformed HTTP response", ErrHandshakeFailed)
)

// httpWriteUpgradeRequest writes opening handshake request into bw.
func httpWriteUpgradeRequest(
	bw *bufio.Writer,
	u *url.URL,
	nonce []byte,
	protocols []string,
	extensions []httphead.Option,
	header http.Header,
) error {
	bw.WriteString("GET ")
	bw.WriteString(u.RequestURI())
	bw.WriteString(" HTTP/1.1\r\n")

	httpWriteHeader(bw, headerHost, u.Host)

	httpWriteHeaderBts(bw, headerUpgrade, specHeaderValueUpgrade)
	httpWriteHeaderBts(bw, headerConnection, specHeaderValueConnection)
	httpWriteHeader(bw, headerSecVersion, specHeaderValueSecVersion)

	httpWriteHeaderBts(bw, headerSecKey, nonce)

	if len(protocols) > 0 {
		httpWriteHeader(bw, headerSecProtocol, strings.Join(protocols, commaAndSpace))
	}

	if len(extensions) > 0 {
		bw.WriteString(headerSecExtensions)
		bw.WriteString(colonAndSpace)
		if _, err := httphead.WriteOptions(bw, extensions); err != nil {
			return err
		}
		bw.WriteString(crlf)
	}

	if header != nil {
		if err := header.Write(bw); err != nil {
			return err
		}
	}

	_, err := bw.WriteString(crlf)
	return err
}

func httpWriteHeader(bw *bufio.Writer, key, value string) {
	httpWriteHeaderKey(bw, key)
	bw.WriteString(value)
	bw.WriteString(crlf)
}

func httpWriteHeaderBts(bw *bufio.Writer, key string, value []byte) {
	httpWriteHeaderKey(bw, key)
	bw.Write(value)
	bw.WriteString(crlf)
}

func httpWriteHeaderKey(bw *bufio.Writer, key string) {
	bw.WriteString(key)
	bw.WriteString(colonAndSpace)
}

// httpHasToken reports whether comma separated list of tokens in v contains
// the token (case-insensitive).
func httpHasToken(v, token []byte) (has bool) {
	ok := httphead.ScanTokens(v, func(t []byte) bool {
		has = bytes.EqualFold(t, token)
		return !has
	})
	return ok && has
}
