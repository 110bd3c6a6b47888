package wire

import "errors"

// ErrIncomplete signals that the decoder needs more bytes to parse a full
// frame. It is not a failure: the caller keeps the buffer, reads more from
// the connection, and retries the same bytes plus whatever arrived.
var ErrIncomplete = errors.New("wire: incomplete frame")

// ErrProtocol covers malformed frames: an unknown flag byte, or a string
// field that fails UTF-8 validation. Fatal for the connection that produced
// it; unrelated connections are unaffected.
var ErrProtocol = errors.New("wire: protocol error")

// ErrAuth covers AEAD authentication failures while decoding an encrypted
// field. Fatal for the connection; no partial payload is ever surfaced to
// the application layer.
var ErrAuth = errors.New("wire: auth error")
