// Package connection wraps a net.Conn with frame-at-a-time read/write
// semantics built on internal/wire's codec.
package connection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/fioncat/csync-go/internal/wire"
)

const readChunkSize = 32 * 1024

// ErrClosed is returned by WriteFrame after Close has been called locally,
// and by ReadFrame when the peer closed the connection cleanly between
// frames.
var ErrClosed = errors.New("connection: closed")

// ErrResetByPeer is returned by ReadFrame when the peer hung up mid-frame or
// the socket read failed, as opposed to a clean close between frames, so
// callers can log one as routine and the other as a surprise.
var ErrResetByPeer = errors.New("connection: reset by peer")

// Conn is a single TCP connection speaking the frame protocol. It buffers
// partial reads the way a raw net.Conn never does on its own: ReadFrame
// keeps pulling chunks off the wire until wire.ParseFrame stops returning
// ErrIncomplete.
//
// Not safe for concurrent writes: the broker's publisher and subscriber
// worker loops each own a private Conn, never shared across goroutines.
type Conn struct {
	raw    net.Conn
	cipher wire.Cipher

	recvBuf bytes.Buffer
	chunk   []byte

	closed bool
}

// Wrap adapts an already-accepted or already-dialed net.Conn. cipher may be
// nil when the connection has no shared password.
func Wrap(raw net.Conn, cipher wire.Cipher) *Conn {
	return &Conn{raw: raw, cipher: cipher, chunk: make([]byte, readChunkSize)}
}

// SetCipher installs the cipher negotiated during the handshake. Frames
// exchanged before this call (REGISTER/ACCEPT) are never encrypted anyway,
// so there is no ordering hazard in setting it right after the handshake
// completes.
func (c *Conn) SetCipher(cipher wire.Cipher) {
	c.cipher = cipher
}

// ReadFrame blocks until a complete frame is available, reading more off the
// socket as needed.
func (c *Conn) ReadFrame() (*wire.Frame, error) {
	for {
		f, n, err := wire.ParseFrame(c.recvBuf.Bytes(), c.cipher)
		if err == nil {
			c.recvBuf.Next(n)
			return f, nil
		}
		if !errors.Is(err, wire.ErrIncomplete) {
			return nil, err
		}

		read, readErr := c.raw.Read(c.chunk)
		if read > 0 {
			c.recvBuf.Write(c.chunk[:read])
		}
		if readErr != nil {
			if read > 0 {
				// retry the parse with the bytes we just buffered before
				// surfacing the read error.
				continue
			}
			return nil, c.translateReadErr(readErr)
		}
	}
}

// translateReadErr maps a raw read error to ErrClosed or ErrResetByPeer. An
// EOF with an empty recvBuf means the peer cleanly closed the connection; an
// EOF with bytes still buffered means the peer hung up mid-frame.
func (c *Conn) translateReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		if c.recvBuf.Len() == 0 {
			return ErrClosed
		}
		return ErrResetByPeer
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "read" {
		return fmt.Errorf("%w: %v", ErrResetByPeer, err)
	}
	return err
}

// WriteFrame encodes and writes f in one call. Callers must not interleave
// concurrent WriteFrame calls on the same Conn.
func (c *Conn) WriteFrame(f *wire.Frame) error {
	if c.closed {
		return ErrClosed
	}
	buf, err := wire.EncodeFrame(f, c.cipher)
	if err != nil {
		return err
	}
	_, err = c.raw.Write(buf)
	if err != nil {
		return fmt.Errorf("connection: write frame: %w", err)
	}
	return nil
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

// RemoteAddr exposes the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
