// Package digest computes the SHA-256 fingerprint used throughout csync to
// deduplicate clipboard payloads and to verify frame/blob integrity.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data. For text payloads the
// caller passes the UTF-8 encoding; for images/files the raw bytes.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether digest is the SHA-256 fingerprint of data.
func Verify(digest string, data []byte) bool {
	return Sum(data) == digest
}
