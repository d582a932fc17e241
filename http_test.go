package ws

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/gobwas/httphead"
)

func TestHttpWriteUpgradeRequest(t *testing.T) {
	for _, test := range []struct {
		name       string
		url        *url.URL
		protocols  []string
		extensions []httphead.Option
		header     http.Header
		exp        string
	}{
		{
			name: "base",
			url:  makeURL("ws://example.org"),
			exp: "GET / HTTP/1.1\r\n" +
				"Host: example.org\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 13\r\n" +
				"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
				"\r\n",
		},
		{
			name:       "full",
			url:        makeURL("ws://example.org:8080/chat?room=1"),
			protocols:  []string{"chat", "superchat"},
			extensions: []httphead.Option{httphead.NewOption("permessage-deflate", nil)},
			header:     http.Header{"Origin": []string{"http://example.org"}},
			exp: "GET /chat?room=1 HTTP/1.1\r\n" +
				"Host: example.org:8080\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 13\r\n" +
				"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
				"Sec-WebSocket-Protocol: chat, superchat\r\n" +
				"Sec-WebSocket-Extensions: permessage-deflate\r\n" +
				"Origin: http://example.org\r\n" +
				"\r\n",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			bw := bufio.NewWriter(&buf)
			err := httpWriteUpgradeRequest(bw,
				test.url,
				[]byte("dGhlIHNhbXBsZSBub25jZQ=="),
				test.protocols,
				test.extensions,
				test.header,
			)
			if err != nil {
				t.Fatal(err)
			}
			if err := bw.Flush(); err != nil {
				t.Fatal(err)
			}
			if act := buf.String(); act != test.exp {
				t.Errorf("unexpected request:\nact:\n%s\nexp:\n%s", act, test.exp)
			}
			// Request must be readable by net/http.
			req, err := http.ReadRequest(bufio.NewReader(&buf))
			if err != nil {
				t.Fatal(err)
			}
			if req.Header.Get("Sec-WebSocket-Version") != "13" {
				t.Errorf("unexpected version header: %q", req.Header.Get("Sec-WebSocket-Version"))
			}
		})
	}
}

func TestHttpHasToken(t *testing.T) {
	for _, test := range []struct {
		in  string
		exp bool
	}{
		{"Upgrade", true},
		{"upgrade", true},
		{"keep-alive, Upgrade", true},
		{"keep-alive", false},
		{"", false},
		{"keep-alive;", false},
	} {
		t.Run(test.in, func(t *testing.T) {
			if act := httpHasToken([]byte(test.in), specHeaderValueConnection); act != test.exp {
				t.Errorf("httpHasToken(%q) = %v; want %v", test.in, act, test.exp)
			}
		})
	}
}

func TestMatchSelectedExtensions(t *testing.T) {
	wanted := []httphead.Option{
		httphead.NewOption("permessage-deflate", nil),
		httphead.NewOption("x-foo", nil),
	}
	for _, test := range []struct {
		name     string
		selected string
		exp      []string
		err      error
	}{
		{
			name: "none",
		},
		{
			name:     "one",
			selected: "permessage-deflate; server_no_context_takeover",
			exp:      []string{"permessage-deflate"},
		},
		{
			name:     "two",
			selected: "x-foo, permessage-deflate",
			exp:      []string{"x-foo", "permessage-deflate"},
		},
		{
			name:     "unexpected",
			selected: "x-bar",
			err:      ErrHandshakeBadExtensions,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			act, err := matchSelectedExtensions([]byte(test.selected), wanted, nil)
			if err != test.err {
				t.Fatalf("unexpected error: %v; want %v", err, test.err)
			}
			if err != nil {
				return
			}
			if len(act) != len(test.exp) {
				t.Fatalf("unexpected extensions: %v; want %v", act, test.exp)
			}
			for i, opt := range act {
				if string(opt.Name) != test.exp[i] {
					t.Errorf("#%d extension is %q; want %q", i, opt.Name, test.exp[i])
				}
			}
		})
	}
	if !errors.Is(ErrHandshakeBadExtensions, ErrHandshakeFailed) {
		t.Errorf("extensions error does not match %v", ErrHandshakeFailed)
	}
}

func BenchmarkHttpWriteUpgradeRequest(b *testing.B) {
	bw := bufio.NewWriter(io.Discard)
	nonce := make([]byte, nonceSize)
	initNonce(nonce)
	u := makeURL("ws://example.org")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = httpWriteUpgradeRequest(bw, u, nonce, nil, nil, nil)
	}
}

func makeURL(s string) *url.URL {
	ret, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return ret
}
