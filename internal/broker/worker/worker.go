// Package worker runs the per-connection loops bridging a raw connection to
// the broker's channel routing table: one goroutine per accepted socket,
// no shared mutable state beyond what it hands to channel.Manager.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fioncat/csync-go/internal/broker/channel"
	"github.com/fioncat/csync-go/internal/connection"
	"github.com/fioncat/csync-go/internal/metrics"
	"github.com/fioncat/csync-go/internal/wire"
)

// PingInterval is how often a subscriber worker proactively pings an idle
// connection so dead peers are noticed even with nothing to deliver.
const PingInterval = time.Second

// Run dispatches an accepted connection to the publisher or subscriber loop
// based on its REGISTER frame, and releases its channel state on exit
// regardless of how the loop ends. m may be nil; every counter increment
// below is guarded so metrics stay strictly optional.
func Run(ctx context.Context, log *slog.Logger, conn *connection.Conn, mgr *channel.Manager, reg *wire.RegisterFrame, m *metrics.Broker) {
	addr := conn.RemoteAddr().String()
	publish := ""
	if reg.Publish != nil {
		publish = *reg.Publish
	}

	if publish != "" {
		mgr.Register(publish)
	}

	var err error
	switch {
	case publish != "":
		if m != nil {
			m.ConnectionsTotal.WithLabelValues("publisher").Inc()
		}
		err = runPublisher(ctx, conn, mgr, publish, m)
	case len(reg.Subs) > 0:
		if m != nil {
			m.ConnectionsTotal.WithLabelValues("subscriber").Inc()
		}
		err = runSubscriber(ctx, conn, mgr, addr, reg.Subs, m)
	default:
		err = conn.WriteFrame(wire.NewError("register must set publish or subs"))
	}

	mgr.Close(addr, publish, reg.Subs)
	conn.Close()

	if err != nil && !isRoutineClose(err) {
		log.Warn("connection worker exited with error", "addr", addr, "err", err)
	}
}

func isRoutineClose(err error) bool {
	return errors.Is(err, connection.ErrClosed) || errors.Is(err, connection.ErrResetByPeer)
}

func pushKindLabel(flag wire.Flag) string {
	switch flag {
	case wire.FlagPushText:
		return "text"
	case wire.FlagPushImage:
		return "image"
	case wire.FlagPushFile:
		return "file"
	default:
		return "unknown"
	}
}

// runPublisher reads frames until the connection fails or the peer sends an
// ERROR frame, posting every PUSH_* frame to the device's channel and
// replying OK; any other frame is answered with ERROR and reading goes on.
func runPublisher(ctx context.Context, conn *connection.Conn, mgr *channel.Manager, publish string, m *metrics.Broker) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		switch f.Flag {
		case wire.FlagPushText, wire.FlagPushImage, wire.FlagPushFile:
			mgr.Push(publish, f)
			if m != nil {
				m.PushTotal.WithLabelValues(pushKindLabel(f.Flag)).Inc()
			}
			if err := conn.WriteFrame(wire.NewOK()); err != nil {
				return err
			}
		case wire.FlagError:
			return nil
		default:
			if err := conn.WriteFrame(wire.NewError("expected PUSH_* from publisher")); err != nil {
				return err
			}
		}
	}
}

// runSubscriber answers PULL frames with PUSH_*/NONE and pings the peer
// between pulls so a dead connection is detected even when nothing is
// published.
func runSubscriber(ctx context.Context, conn *connection.Conn, mgr *channel.Manager, addr string, subs []string, m *metrics.Broker) error {
	frames := make(chan *wire.Frame, 1)
	errs := make(chan error, 1)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				errs <- err
				return
			}
			frames <- f
		}
	}()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errs:
			return err

		case f := <-frames:
			if f.Flag != wire.FlagPull {
				if err := conn.WriteFrame(wire.NewError("expected PULL from subscriber")); err != nil {
					return err
				}
				continue
			}
			if payload := mgr.Pull(addr, subs); payload != nil {
				if m != nil {
					m.PullTotal.WithLabelValues("push").Inc()
				}
				if err := conn.WriteFrame(payload); err != nil {
					return err
				}
			} else {
				if m != nil {
					m.PullTotal.WithLabelValues("none").Inc()
				}
				if err := conn.WriteFrame(wire.NewNone()); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if m != nil {
				m.PingTotal.Inc()
			}
			if err := conn.WriteFrame(wire.NewPing()); err != nil {
				return err
			}
		}
	}
}
