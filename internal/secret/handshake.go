package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// checkPlainLength is arbitrary; only its round-trip through Encrypt/Decrypt
// matters, not its size.
const checkPlainLength = 32

// ErrHandshakeFailed means the client's derived key could not recover the
// server's check_plain value — the shared passwords don't match.
var ErrHandshakeFailed = errors.New("secret: handshake check failed, wrong password")

// Handshake is the ACCEPT frame's embedded challenge: the server proves it
// holds the same password the client does before either side trusts the
// connection.
type Handshake struct {
	Nonce      []byte
	Salt       []byte
	Check      []byte
	CheckPlain []byte
}

// BuildHandshake is called by the broker once a connection negotiates a
// password. It derives a key from the password and a fresh salt, encrypts a
// random check_plain value under that key, and returns everything the client
// needs to verify it independently.
func BuildHandshake(password []byte) (*Handshake, error) {
	checkPlain := make([]byte, checkPlainLength)
	if _, err := io.ReadFull(rand.Reader, checkPlain); err != nil {
		return nil, fmt.Errorf("secret: generate check_plain: %w", err)
	}

	c := New(password)
	check, err := c.Encrypt(checkPlain)
	if err != nil {
		return nil, fmt.Errorf("secret: encrypt handshake check: %w", err)
	}

	// check already carries its own salt/nonce header (Encrypt's format);
	// the handshake struct also surfaces them separately so the client can
	// log or display them without re-parsing check.
	salt := check[:saltLength]
	nonce := check[saltLength:headLength]

	return &Handshake{
		Nonce:      append([]byte(nil), nonce...),
		Salt:       append([]byte(nil), salt...),
		Check:      check,
		CheckPlain: checkPlain,
	}, nil
}

// VerifyHandshake is called by the client against the ACCEPT frame's
// handshake. It re-derives the key from the client's own copy of the
// password, decrypts Check, and compares the result with CheckPlain.
func VerifyHandshake(password []byte, h *Handshake) error {
	c := New(password)
	plain, err := c.Decrypt(h.Check)
	if err != nil {
		return ErrHandshakeFailed
	}
	if !constantTimeEqual(plain, h.CheckPlain) {
		return ErrHandshakeFailed
	}
	return nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
