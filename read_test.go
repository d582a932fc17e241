package ws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
)

func TestReadHeader(t *testing.T) {
	for i, test := range append([]RWTestCase{
		{
			Data: bits("0000 0000 0 1111111 10000000 00000000 00000000 00000000 00000000 00000000 00000000 00000000"),
			//                              _______________________________________________________________________
			//                                                                 |
			//                                                            Length value
			Err: true,
		},
		{
			Data: bits("1 000 0001 0 1111110 00000001"),
			//                               ________
			//                                  |
			//                         Truncated length
			Err: true,
		},
	}, RWTestCases...) {
		t.Run(fmt.Sprintf("#%d", i), func(t *testing.T) {
			r := bytes.NewReader(test.Data)
			h, err := ReadHeader(r)
			if test.Err && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !test.Err && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
			if test.Err {
				return
			}
			if !reflect.DeepEqual(h, test.Header) {
				t.Errorf("ReadHeader()\nread:\n\t%#v\nwant:\n\t%#v", h, test.Header)
			}
		})
	}
}

func TestDecodeHeader(t *testing.T) {
	for _, test := range []struct {
		name   string
		b0, b1 byte
		header Header
		bits   byte
	}{
		{
			name:   "text",
			b0:     0x81,
			b1:     0x05,
			header: Header{Fin: true, OpCode: OpText, Length: 5},
			bits:   5,
		},
		{
			name:   "masked continuation",
			b0:     0x00,
			b1:     0x80 | 0x10,
			header: Header{OpCode: OpContinuation, Masked: true, Length: 16},
			bits:   16,
		},
		{
			name:   "len16",
			b0:     0x82,
			b1:     126,
			header: Header{Fin: true, OpCode: OpBinary},
			bits:   LengthBits16,
		},
		{
			name:   "len64",
			b0:     0x82,
			b1:     127,
			header: Header{Fin: true, OpCode: OpBinary},
			bits:   LengthBits64,
		},
		{
			name:   "rsv",
			b0:     0xf1,
			b1:     0x00,
			header: Header{Fin: true, Rsv: Rsv(true, true, true), OpCode: OpText},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			h, n := DecodeHeader(test.b0, test.b1)
			if n != test.bits {
				t.Errorf("unexpected length bits: %d; want %d", n, test.bits)
			}
			if h != test.header {
				t.Errorf("DecodeHeader()\nact:\n\t%#v\nexp:\n\t%#v", h, test.header)
			}
		})
	}
}

func TestDecodeLength(t *testing.T) {
	for _, test := range []struct {
		name string
		in   []byte
		exp  int64
		err  error
	}{
		{
			name: "u16",
			in:   []byte{0x01, 0x00},
			exp:  256,
		},
		{
			name: "u64",
			in:   []byte{0, 0, 0, 0, 0, 1, 0, 0},
			exp:  65536,
		},
		{
			name: "u64 msb",
			in:   []byte{0x80, 0, 0, 0, 0, 0, 0, 0},
			err:  ErrHeaderLengthMSB,
		},
		{
			name: "bad size",
			in:   []byte{1, 2, 3},
			err:  ErrHeaderLengthUnexpected,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			n, err := DecodeLength(test.in)
			if err != test.err {
				t.Fatalf("unexpected error: %v; want %v", err, test.err)
			}
			if n != test.exp {
				t.Errorf("unexpected length: %d; want %d", n, test.exp)
			}
		})
	}
	if _, err := DecodeLength([]byte{0xff, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("msb error does not match protocol violation: %v", err)
	}
}

func TestReadFrame(t *testing.T) {
	mask := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	for _, test := range []struct {
		name  string
		frame Frame
	}{
		{
			name:  "empty",
			frame: NewPingFrame(nil),
		},
		{
			name:  "text",
			frame: NewTextFrame("Hello"),
		},
		{
			name:  "masked",
			frame: MaskFrameWith(NewTextFrame("Hello"), mask),
		},
		{
			name:  "len16",
			frame: NewBinaryFrame(bytes.Repeat([]byte{'x'}, 300)),
		},
		{
			name:  "len64",
			frame: NewBinaryFrame(bytes.Repeat([]byte{'y'}, 70000)),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			bts := MustCompileFrame(test.frame)
			f, err := ReadFrame(bytes.NewReader(bts))
			if err != nil {
				t.Fatal(err)
			}
			if f.Header != test.frame.Header {
				t.Errorf("unexpected header:\nact:\n\t%#v\nexp:\n\t%#v", f.Header, test.frame.Header)
			}
			if !bytes.Equal(f.Payload, test.frame.Payload) {
				t.Errorf("unexpected payload: %q; want %q", f.Payload, test.frame.Payload)
			}
		})
	}
}

func TestReadFrameUnexpectedEOF(t *testing.T) {
	bts := MustCompileFrame(NewTextFrame("Hello"))
	_, err := ReadFrame(bytes.NewReader(bts[:len(bts)-1]))
	if err != io.ErrUnexpectedEOF {
		t.Errorf("unexpected error: %v; want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestReadFrameHugeLength(t *testing.T) {
	bts := []byte{0x82, 0x7f, 0, 0x04, 0, 0, 0, 0, 0, 0, 'a', 'b'}
	_, err := ReadFrame(bytes.NewReader(bts))
	if err != io.ErrUnexpectedEOF {
		t.Errorf("unexpected error: %v; want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestParseCloseFrameData(t *testing.T) {
	for _, test := range []struct {
		name   string
		in     []byte
		code   StatusCode
		reason string
	}{
		{
			name: "empty",
		},
		{
			name: "code only",
			in:   []byte{0x03, 0xe8},
			code: StatusNormalClosure,
		},
		{
			name:   "code and reason",
			in:     NewCloseFrameData(StatusGoingAway, "bye"),
			code:   StatusGoingAway,
			reason: "bye",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			code, reason := ParseCloseFrameData(test.in)
			if code != test.code || reason != test.reason {
				t.Errorf(
					"ParseCloseFrameData() = %d, %q; want %d, %q",
					code, reason, test.code, test.reason,
				)
			}
		})
	}
}

func BenchmarkReadHeader(b *testing.B) {
	for i, bench := range RWBenchCases {
		b.Run(fmt.Sprintf("%s#%d", bench.label, i), func(b *testing.B) {
			bts := MustCompileFrame(Frame{Header: bench.header})
			rds := make([]io.Reader, b.N)
			for i := 0; i < b.N; i++ {
				rds[i] = bytes.NewReader(bts)
			}

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, err := ReadHeader(rds[i])
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
