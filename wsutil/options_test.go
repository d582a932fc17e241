package wsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testOptionsYAML = `
timeout: 10s
protocols: [chat, superchat]
extensions:
  - "permessage-deflate; client_max_window_bits"
  - x-custom
headers:
  Origin: http://example.org
chunk_size: 1024
max_frame_size: 1048576
max_message_size: 8388608
read_buffer_size: 2048
`

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte(testOptionsYAML))
	if err != nil {
		t.Fatal(err)
	}
	if opts.Timeout != 10*time.Second {
		t.Errorf("unexpected timeout: %s", opts.Timeout)
	}
	if strings.Join(opts.Protocols, ",") != "chat,superchat" {
		t.Errorf("unexpected protocols: %v", opts.Protocols)
	}
	if opts.ChunkSize != 1024 || opts.MaxFrameSize != 1048576 || opts.MaxMessageSize != 8388608 {
		t.Errorf("unexpected limits: %+v", opts)
	}
	if opts.ReadBufferSize != 2048 || opts.WriteBufferSize != 0 {
		t.Errorf("unexpected buffer sizes: %d %d", opts.ReadBufferSize, opts.WriteBufferSize)
	}

	d, err := opts.Dialer()
	if err != nil {
		t.Fatal(err)
	}
	if d.Timeout != opts.Timeout || d.ReadBufferSize != 2048 {
		t.Errorf("unexpected dialer: %+v", d)
	}
	if len(d.Extensions) != 2 {
		t.Fatalf("unexpected extensions: %v", d.Extensions)
	}
	if name := string(d.Extensions[0].Name); name != "permessage-deflate" {
		t.Errorf("unexpected first extension: %q", name)
	}
	if _, ok := d.Extensions[0].Parameters.Get("client_max_window_bits"); !ok {
		t.Errorf("extension parameter is lost: %v", d.Extensions[0])
	}
	if name := string(d.Extensions[1].Name); name != "x-custom" {
		t.Errorf("unexpected second extension: %q", name)
	}
	if origin := d.Header.Get("Origin"); origin != "http://example.org" {
		t.Errorf("unexpected Origin header: %q", origin)
	}
}

func TestParseOptionsInvalid(t *testing.T) {
	for _, test := range []struct {
		name string
		yaml string
		err  string
	}{
		{
			name: "syntax",
			yaml: "timeout: [",
			err:  "parse options",
		},
		{
			name: "negative chunk size",
			yaml: "chunk_size: -1",
			err:  "chunk_size",
		},
		{
			name: "negative timeout",
			yaml: "timeout: -1s",
			err:  "timeout",
		},
		{
			name: "malformed extension",
			yaml: "extensions: [\"=bad\"]",
			err:  "malformed extensions",
		},
		{
			name: "several",
			yaml: "max_frame_size: -1\nmax_message_size: -1",
			err:  "max_message_size",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseOptions([]byte(test.yaml))
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), test.err) {
				t.Errorf("unexpected error: %v; want it to mention %q", err, test.err)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	if err := os.WriteFile(path, []byte(testOptionsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.ChunkSize != 1024 {
		t.Errorf("unexpected chunk size: %d", opts.ChunkSize)
	}

	if _, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestNilOptions(t *testing.T) {
	var opts *Options
	d, err := opts.Dialer()
	if err != nil {
		t.Fatal(err)
	}
	if d.Timeout != 0 || d.Protocols != nil {
		t.Errorf("unexpected dialer: %+v", d)
	}
	if opts.logger() == nil || opts.random() == nil || opts.timeout() != 0 {
		t.Errorf("unexpected defaults")
	}
}
