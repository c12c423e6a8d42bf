package accounts

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Hasher turns a plaintext secret into a fixed-length digest and compares
// digests without leaking timing. The concrete algorithm is fixed at build
// time.
type Hasher interface {
	Hash(secret []byte) []byte
	Verify(candidate, reference []byte) bool
}

// SHA256Hasher digests secrets with unsalted SHA-256.
//
// Known weakness kept for compatibility with already-persisted digests:
// without a salt, two accounts sharing a secret share a digest.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

func (SHA256Hasher) Verify(candidate, reference []byte) bool {
	return subtle.ConstantTimeCompare(candidate, reference) == 1
}
