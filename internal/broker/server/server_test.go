package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fioncat/csync-go/internal/connection"
	"github.com/fioncat/csync-go/internal/metrics"
	"github.com/fioncat/csync-go/internal/secret"
	"github.com/fioncat/csync-go/internal/wire"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg Config) string {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(ctx, testLogger(), cfg)
	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	s.cfg.Addr = addr

	ready := make(chan error, 1)
	go func() {
		ready <- s.Run(ctx)
	}()
	// give the listener a moment to bind; Run's own Listen call races the
	// address reuse above, but in practice the port stays free long enough
	// for this test's localhost connect.
	time.Sleep(20 * time.Millisecond)
	return addr
}

// TestNoPasswordPublishSubscribe mirrors scenario S1.
func TestNoPasswordPublishSubscribe(t *testing.T) {
	addr := startServer(t, Config{})

	pubRaw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	pub := connection.Wrap(pubRaw, nil)
	defer pub.Close()

	laptop := "laptop"
	require.NoError(t, pub.WriteFrame(wire.NewRegister(&wire.RegisterFrame{Publish: &laptop})))
	accept, err := pub.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.FlagAccept, accept.Flag)
	require.Nil(t, accept.Accept.Auth)

	require.NoError(t, pub.WriteFrame(wire.NewPush(&wire.DataFrame{
		Kind: wire.PayloadText, OriginDevice: &laptop, Digest: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Text: "hello",
	})))
	ok, err := pub.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.FlagOK, ok.Flag)

	subRaw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	sub := connection.Wrap(subRaw, nil)
	defer sub.Close()

	require.NoError(t, sub.WriteFrame(wire.NewRegister(&wire.RegisterFrame{Subs: []string{"laptop"}})))
	accept2, err := sub.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.FlagAccept, accept2.Flag)

	require.NoError(t, sub.WriteFrame(wire.NewPull()))
	push, err := sub.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.FlagPushText, push.Flag)
	require.Equal(t, "laptop", *push.Data.OriginDevice)
	require.Equal(t, "hello", push.Data.Text)
}

// TestWrongPasswordClosesAfterAccept mirrors scenario S2.
func TestWrongPasswordClosesAfterAccept(t *testing.T) {
	addr := startServer(t, Config{Password: []byte("secret")})

	subRaw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	sub := connection.Wrap(subRaw, nil)
	defer sub.Close()

	require.NoError(t, sub.WriteFrame(wire.NewRegister(&wire.RegisterFrame{Subs: []string{"laptop"}})))
	accept, err := sub.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, accept.Accept.Auth)

	h := secret.Handshake{
		Nonce:      accept.Accept.Auth.Nonce,
		Salt:       accept.Accept.Auth.Salt,
		Check:      accept.Accept.Auth.Check,
		CheckPlain: accept.Accept.Auth.CheckPlain,
	}
	err = secret.VerifyHandshake([]byte("wrong-password"), &h)
	require.ErrorIs(t, err, secret.ErrHandshakeFailed)
}

// TestMetricsCountConnectionsAndPushes confirms WithMetrics actually gets
// exercised by a real publish, not just wired and left untouched.
func TestMetricsCountConnectionsAndPushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	m := metrics.NewBroker()
	s := New(ctx, testLogger(), Config{Addr: addr}).WithMetrics(m)
	go s.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	pubRaw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	pub := connection.Wrap(pubRaw, nil)
	defer pub.Close()

	laptop := "laptop"
	require.NoError(t, pub.WriteFrame(wire.NewRegister(&wire.RegisterFrame{Publish: &laptop})))
	_, err = pub.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, pub.WriteFrame(wire.NewPush(&wire.DataFrame{
		Kind: wire.PayloadText, Digest: "d", Text: "hello",
	})))
	reply, err := pub.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.FlagOK, reply.Flag)

	require.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("publisher")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.PushTotal.WithLabelValues("text")))
}
