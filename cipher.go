package ws

import "encoding/binary"

var remain = [4]int{0, 3, 2, 1}

// Cipher applies XOR cipher to the payload using mask.
// Offset is used to cipher chunked data (e.g. in io.Reader implementations).
//
// To convert masked data into unmasked data, or vice versa, the following
// algorithm is applied.  The same algorithm applies regardless of the
// direction of the translation, e.g., the same steps are applied to
// mask the data as to unmask the data.
func Cipher(payload []byte, mask [4]byte, offset int) {
	n := len(payload)
	if n < 8 {
		for i := 0; i < n; i++ {
			payload[i] ^= mask[(offset+i)%4]
		}
		return
	}

	// Calculate position in mask due to previously processed bytes number.
	mpos := offset % 4
	// Count number of bytes will processed one by one from the beginning of payload.
	ln := remain[mpos]
	// Count number of bytes will processed one by one from the end of payload.
	// This is done to process payload by 8 bytes in each iteration of main loop.
	rn := (n - ln) % 8

	for i := 0; i < ln; i++ {
		payload[i] ^= mask[(mpos+i)%4]
	}
	for i := n - rn; i < n; i++ {
		payload[i] ^= mask[(mpos+i)%4]
	}

	m := binary.LittleEndian.Uint32(mask[:])
	m2 := uint64(m)<<32 | uint64(m)

	// Process the middle part as uint64 words. After ln bytes the mask
	// position is zero again.
	for i := ln; i < n-rn; i += 8 {
		v := binary.LittleEndian.Uint64(payload[i : i+8])
		binary.LittleEndian.PutUint64(payload[i:i+8], v^m2)
	}
}

// Mask returns a copy of data with XOR cipher applied using mask key. Applying
// Mask twice with the same key returns the original data.
func Mask(mask [4]byte, data []byte) []byte {
	p := make([]byte, len(data))
	copy(p, data)
	Cipher(p, mask, 0)
	return p
}
