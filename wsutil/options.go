package wsutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gobwas/httphead"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/websock/ws"
)

// Options contains settings of a client connection. Zero value is usable.
//
// Options could be loaded from a YAML document:
//
//	timeout: 10s
//	protocols: [chat, superchat]
//	extensions: ["permessage-deflate; client_max_window_bits"]
//	headers:
//	  Origin: http://example.org
//	chunk_size: 16384
//	max_frame_size: 1048576
//	max_message_size: 8388608
type Options struct {
	// Timeout bounds dial and handshake, and then every single read and
	// write on the connection. Expired timeout is fatal for the connection.
	Timeout time.Duration `yaml:"timeout"`

	// Protocols is the list of requested subprotocols.
	Protocols []string `yaml:"protocols"`

	// Extensions is the list of requested extensions in the
	// Sec-WebSocket-Extensions header syntax. Negotiation is only
	// acknowledged: no extension is applied to frames.
	Extensions []string `yaml:"extensions"`

	// Headers are sent with the upgrade request.
	Headers map[string]string `yaml:"headers"`

	// ChunkSize limits bytes requested by a single transport read.
	ChunkSize int `yaml:"chunk_size"`

	// MaxFrameSize limits payload length of a received frame.
	MaxFrameSize int64 `yaml:"max_frame_size"`

	// MaxMessageSize limits size of an assembled message.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// ReadBufferSize and WriteBufferSize are sizes of buffers used during the
	// opening handshake.
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`

	// Logger receives connection events. If Logger is nil, nothing is
	// logged.
	Logger *zap.Logger `yaml:"-"`

	// Random generates mask keys. If Random is nil, ws.DefaultRandom is used.
	Random ws.RandomSource `yaml:"-"`

	// TLSConfig is used for wss connections.
	TLSConfig *tls.Config `yaml:"-"`

	// NetDial overrides the function used to establish transport.
	NetDial func(ctx context.Context, network, addr string) (net.Conn, error) `yaml:"-"`
}

// LoadOptions reads options from YAML file at path.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions parses options from YAML document.
func ParseOptions(data []byte) (*Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks options to be consistent.
func (o *Options) Validate() error {
	var errs []error
	if o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %s", o.Timeout))
	}
	if o.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunk_size must not be negative: %d", o.ChunkSize))
	}
	if o.MaxFrameSize < 0 {
		errs = append(errs, fmt.Errorf("max_frame_size must not be negative: %d", o.MaxFrameSize))
	}
	if o.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("max_message_size must not be negative: %d", o.MaxMessageSize))
	}
	if o.ReadBufferSize < 0 || o.WriteBufferSize < 0 {
		errs = append(errs, errors.New("buffer sizes must not be negative"))
	}
	if _, err := o.extensions(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Dialer returns ws.Dialer configured by o.
func (o *Options) Dialer() (ws.Dialer, error) {
	if o == nil {
		return ws.Dialer{}, nil
	}
	exts, err := o.extensions()
	if err != nil {
		return ws.Dialer{}, err
	}
	d := ws.Dialer{
		ReadBufferSize:  o.ReadBufferSize,
		WriteBufferSize: o.WriteBufferSize,
		Timeout:         o.Timeout,
		Protocols:       o.Protocols,
		Extensions:      exts,
		TLSConfig:       o.TLSConfig,
		NetDial:         o.NetDial,
	}
	if len(o.Headers) > 0 {
		d.Header = make(http.Header, len(o.Headers))
		for k, v := range o.Headers {
			d.Header.Set(k, v)
		}
	}
	return d, nil
}

func (o *Options) extensions() ([]httphead.Option, error) {
	if len(o.Extensions) == 0 {
		return nil, nil
	}
	header := []byte(strings.Join(o.Extensions, ","))
	opts, ok := httphead.ParseOptions(header, nil)
	if !ok {
		return nil, fmt.Errorf("malformed extensions: %q", header)
	}
	return opts, nil
}

func (o *Options) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Options) random() ws.RandomSource {
	if o == nil || o.Random == nil {
		return ws.DefaultRandom
	}
	return o.Random
}

func (o *Options) timeout() time.Duration {
	if o == nil {
		return 0
	}
	return o.Timeout
}
