/*
Package ws implements the client side of the WebSocket protocol as specified
in RFC 6455.

The main purpose of this package is to provide simple low-level API for
work with frames: encoding, masking and header decoding. Stateful helpers
such as incremental frame reading, message reassembly and the connection
controller live in the wsutil package.

Overview.

Connection could be established with the Dialer:

  conn, br, hs, err := ws.Dialer{}.Dial(ctx, "ws://example.org/chat")
  if err != nil {
	  // handle error
  }

Note that br is non-nil only if server has sent frames right after the
handshake response. Those bytes must be read before the conn.

Frames are encoded with Encoder. Client frames are always masked with a key
taken from the Encoder's RandomSource:

  enc := ws.Encoder{Random: ws.DefaultRandom}

  f := ws.NewTextFrame("hello, world!")
  f.Header.Masked = true

  bts, err := enc.Encode(f)
  if err != nil {
	  // handle err
  }

Header could be read from any io.Reader:

  header, err := ws.ReadHeader(conn)
  if err != nil {
	  // handle err
  }

  payload := make([]byte, header.Length)
  _, err = io.ReadFull(conn, payload)
  if err != nil {
	  // handle err
  }
  if header.Masked {
	  ws.Cipher(payload, header.Mask, 0)
  }

For more info see the documentation.
*/
package ws
