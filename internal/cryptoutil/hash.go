// Package cryptoutil holds small hashing helpers shared by bundle
// verification.
package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashEqual performs constant-time comparison of two hex-encoded hashes.
// Bundle checksums are not secrets, but the policy is to compare every
// hash this way so nobody has to decide per call site.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex computes the SHA-256 hash of data as a hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
