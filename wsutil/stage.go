package wsutil

import "io"

// stage is a cursor based buffer which holds bytes already read from the
// source but not yet consumed by a frame field.
//
// Bytes in buf[r:w] are unconsumed. Consumed prefix is dropped lazily, when
// more room is needed for the next read.
type stage struct {
	buf []byte
	r   int // read cursor: bytes before r are consumed.
	w   int // write cursor: bytes before w are filled.
}

// buffered returns number of unconsumed bytes.
func (s *stage) buffered() int {
	return s.w - s.r
}

// fill makes exactly one Read() call on src asking for at most n bytes and
// appends received bytes to the unconsumed ones.
func (s *stage) fill(src io.Reader, n int) (int, error) {
	s.grow(n)
	m, err := src.Read(s.buf[s.w : s.w+n])
	if m > 0 {
		s.w += m
	}
	return m, err
}

// next consumes n bytes and returns them. Returned slice is valid until the
// next fill() call. It panics if less than n bytes are buffered.
func (s *stage) next(n int) []byte {
	if n > s.buffered() {
		panic("wsutil: stage underflow")
	}
	p := s.buf[s.r : s.r+n]
	s.r += n
	return p
}

// drain copies at most len(p) unconsumed bytes into p and consumes them.
func (s *stage) drain(p []byte) int {
	n := copy(p, s.buf[s.r:s.w])
	s.r += n
	return n
}

// grow guarantees space for n more bytes after the write cursor.
func (s *stage) grow(n int) {
	if s.r == s.w {
		s.r, s.w = 0, 0
	}
	if len(s.buf)-s.w >= n {
		return
	}
	if s.r > 0 {
		// Move unconsumed bytes to the beginning.
		s.w = copy(s.buf, s.buf[s.r:s.w])
		s.r = 0
	}
	if len(s.buf)-s.w >= n {
		return
	}
	buf := make([]byte, s.w+n)
	copy(buf, s.buf[:s.w])
	s.buf = buf
}

func (s *stage) reset() {
	s.r, s.w = 0, 0
}
