package connection

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/fioncat/csync-go/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := Wrap(server, nil)
	clientConn := Wrap(client, nil)

	done := make(chan error, 1)
	go func() {
		done <- serverConn.WriteFrame(wire.NewPing())
	}()

	got, err := clientConn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, wire.FlagPing, got.Flag)
	require.NoError(t, <-done)
}

func TestReadFrameSurfacesPeerClose(t *testing.T) {
	server, client := net.Pipe()
	clientConn := Wrap(client, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		server.Close()
	}()

	_, err := clientConn.ReadFrame()
	assert.Error(t, err)
}

func TestTranslateReadErrDistinguishesClosedFromReset(t *testing.T) {
	c := &Conn{}
	assert.ErrorIs(t, c.translateReadErr(io.EOF), ErrClosed)

	c.recvBuf.WriteString("partial frame")
	assert.ErrorIs(t, c.translateReadErr(io.EOF), ErrResetByPeer)
}

func TestWriteAfterCloseFails(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	serverConn := Wrap(server, nil)
	require.NoError(t, serverConn.Close())

	err := serverConn.WriteFrame(wire.NewOK())
	assert.ErrorIs(t, err, ErrClosed)
}
