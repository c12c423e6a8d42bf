package accounts

import (
	"bytes"
	"testing"
)

func TestSHA256Hasher_Deterministic(t *testing.T) {
	h := SHA256Hasher{}
	first := h.Hash([]byte("secret"))
	second := h.Hash([]byte("secret"))

	if !bytes.Equal(first, second) {
		t.Error("Expected identical digests for identical input")
	}
	if len(first) != 32 {
		t.Errorf("Expected a 256-bit digest, got %d bytes", len(first))
	}
}

func TestSHA256Hasher_DifferentInputsDiffer(t *testing.T) {
	h := SHA256Hasher{}
	if bytes.Equal(h.Hash([]byte("secret")), h.Hash([]byte("Secret"))) {
		t.Error("Expected different digests for different inputs")
	}
}

func TestSHA256Hasher_Verify(t *testing.T) {
	h := SHA256Hasher{}
	reference := h.Hash([]byte("secret"))

	if !h.Verify(h.Hash([]byte("secret")), reference) {
		t.Error("Expected matching digests to verify")
	}
	if h.Verify(h.Hash([]byte("wrong")), reference) {
		t.Error("Expected mismatched digests to fail verification")
	}
	if h.Verify(nil, reference) {
		t.Error("Expected nil candidate to fail verification")
	}
}
