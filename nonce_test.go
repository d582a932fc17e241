package ws

import (
	"encoding/base64"
	"testing"
)

func TestInitAcceptFromNonce(t *testing.T) {
	// Example from RFC6455 section 1.3.
	nonce := []byte("dGhlIHNhbXBsZSBub25jZQ==")
	dst := make([]byte, acceptSize)
	initAcceptFromNonce(dst, nonce)
	if exp := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="; string(dst) != exp {
		t.Errorf("initAcceptFromNonce() = %q; want %q", dst, exp)
	}
	if !checkAcceptFromNonce(dst, nonce) {
		t.Errorf("checkAcceptFromNonce() = false; want true")
	}
	if checkAcceptFromNonce(dst[:acceptSize-1], nonce) {
		t.Errorf("checkAcceptFromNonce() = true for truncated accept")
	}
}

func TestInitNonce(t *testing.T) {
	a := make([]byte, nonceSize)
	b := make([]byte, nonceSize)
	initNonce(a)
	initNonce(b)
	if string(a) == string(b) {
		t.Errorf("same nonce generated twice: %q", a)
	}
	key, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != nonceKeySize {
		t.Errorf("unexpected nonce key size: %d; want %d", len(key), nonceKeySize)
	}
}

func BenchmarkInitAcceptFromNonce(b *testing.B) {
	dst := make([]byte, acceptSize)
	nonce := make([]byte, nonceSize)
	initNonce(nonce)
	for i := 0; i < b.N; i++ {
		initAcceptFromNonce(dst, nonce)
	}
}
