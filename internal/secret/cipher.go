// Package secret implements the AEAD layer shared by the broker and client:
// a password-derived AES-256-GCM cipher used to encrypt individual wire
// fields, and the blob-at-rest format used for locally cached payloads and
// device key files.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength   = 30
	nonceLength  = 12
	headLength   = saltLength + nonceLength
	pbkdf2Rounds = 600
	keyLength    = 32 // AES-256

	// GenerateKeyLength is the size, in raw bytes before base64 encoding, of
	// a freshly generated device password.
	GenerateKeyLength = 100
)

// ErrShortCiphertext is returned by Decrypt when the input is too short to
// contain a salt and nonce header.
var ErrShortCiphertext = errors.New("secret: ciphertext missing salt and nonce header")

// Cipher derives a fresh AES-256-GCM key per call from a shared password and
// a random salt. It satisfies wire.Cipher.
//
// Encrypt/Decrypt treat an empty input as an empty output without touching
// the key machinery at all — this lets optional wire fields that are present
// but hold zero bytes round-trip without needing a dedicated "absent" path
// distinct from "empty".
type Cipher struct {
	key []byte
}

// New wraps a raw password. The password is used as PBKDF2 input material,
// not as the AES key directly.
func New(password []byte) *Cipher {
	return &Cipher{key: password}
}

// GenerateKey returns a random, base64-encoded password suitable for a new
// device or a new blob-at-rest key file.
func GenerateKey() ([]byte, error) {
	raw := make([]byte, GenerateKeyLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("secret: generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return []byte(encoded), nil
}

func deriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Rounds, keyLength, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: build aes block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: build gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt returns salt(30B) || nonce(12B) || ciphertext+tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("secret: generate salt: %w", err)
	}

	key := deriveKey(c.key, salt)
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secret: generate nonce: %w", err)
	}

	out := make([]byte, 0, headLength+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt reverses Encrypt. An empty input decrypts to an empty output.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headLength {
		return nil, ErrShortCiphertext
	}

	salt := data[:saltLength]
	nonce := data[saltLength:headLength]
	ciphertext := data[headLength:]

	key := deriveKey(c.key, salt)
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secret: decrypt: %w", err)
	}
	return plaintext, nil
}
