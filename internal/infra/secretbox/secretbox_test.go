package secretbox

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blob, err := box.Seal([]byte("rw-secret-key"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(blob, []byte("rw-secret-key")) {
		t.Fatal("ciphertext contains plaintext")
	}
	plain, err := box.Open(blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != "rw-secret-key" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	box, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blob, err := box.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := box.Open(blob); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestOpenRejectsShortBlob(t *testing.T) {
	box, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := box.Open([]byte{0x01, 0x02}); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New("not-hex"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := New(strings.Repeat("ab", 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}
