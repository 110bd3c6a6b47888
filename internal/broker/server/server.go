// Package server runs the broker's TCP accept loop: it negotiates the
// handshake on every new connection, then hands it off to a publisher or
// subscriber worker loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/fioncat/csync-go/internal/broker/channel"
	"github.com/fioncat/csync-go/internal/broker/worker"
	"github.com/fioncat/csync-go/internal/connection"
	"github.com/fioncat/csync-go/internal/metrics"
	"github.com/fioncat/csync-go/internal/secret"
	"github.com/fioncat/csync-go/internal/wire"
)

// FatalExitCode is what cmd/csyncd returns to the shell on a startup error
// that prevents the broker from ever accepting a connection.
const FatalExitCode = 12

// Config is the subset of broker configuration the accept loop needs.
type Config struct {
	Addr     string
	Password []byte // nil/empty disables encryption
}

// Server owns the listener and the channel routing table for the broker's
// lifetime.
type Server struct {
	cfg Config
	log *slog.Logger
	mgr *channel.Manager
	m   *metrics.Broker
}

// New builds a Server. It does not bind a listener yet; call Run for that.
func New(ctx context.Context, log *slog.Logger, cfg Config) *Server {
	return &Server{cfg: cfg, log: log, mgr: channel.New(ctx)}
}

// WithMetrics attaches a Broker metrics recorder. Optional: a Server never
// constructed with one simply skips instrumentation.
func (s *Server) WithMetrics(m *metrics.Broker) *Server {
	s.m = m
	return s
}

// Manager returns the channel routing table backing this Server, so
// cmd/csyncd can hand the same instance to the admin gRPC service.
func (s *Server) Manager() *channel.Manager {
	return s.mgr
}

// Run binds cfg.Addr and accepts connections until ctx is canceled. A bind
// failure is returned to the caller (cmd/csyncd treats it as fatal, exit
// code FatalExitCode); per-connection errors are logged and never stop the
// loop.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.cfg.Addr, err)
	}
	defer ln.Close()

	s.log.Info("broker listening", "addr", s.cfg.Addr, "auth", len(s.cfg.Password) > 0)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		go s.handle(ctx, raw)
	}
}

func (s *Server) handle(ctx context.Context, raw net.Conn) {
	conn := connection.Wrap(raw, nil)

	reg, err := s.handshake(conn)
	if err != nil {
		if !errors.Is(err, connection.ErrClosed) && !errors.Is(err, connection.ErrResetByPeer) {
			s.log.Warn("handshake failed", "addr", raw.RemoteAddr(), "err", err)
		}
		conn.Close()
		return
	}

	if s.m != nil {
		s.m.ActiveConnections.Inc()
		defer s.m.ActiveConnections.Dec()
	}
	worker.Run(ctx, s.log, conn, s.mgr, reg, s.m)
}

// handshake reads the head REGISTER frame, replies ACCEPT (with a
// handshake challenge when a password is configured), and installs the
// negotiated cipher on conn before returning.
func (s *Server) handshake(conn *connection.Conn) (*wire.RegisterFrame, error) {
	first, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	if first.Flag != wire.FlagRegister {
		_ = conn.WriteFrame(wire.NewError("expected REGISTER"))
		return nil, fmt.Errorf("server: expected REGISTER, got %s", first.Flag)
	}

	accept := &wire.AcceptFrame{Version: wire.ProtocolVersion}
	if len(s.cfg.Password) > 0 {
		h, err := secret.BuildHandshake(s.cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("server: build handshake: %w", err)
		}
		accept.Auth = &wire.AuthChallenge{
			Nonce:      h.Nonce,
			Salt:       h.Salt,
			Check:      h.Check,
			CheckPlain: h.CheckPlain,
		}
		conn.SetCipher(secret.New(s.cfg.Password))
	}

	if err := conn.WriteFrame(wire.NewAccept(accept)); err != nil {
		return nil, err
	}

	return first.Register, nil
}
