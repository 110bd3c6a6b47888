// Command csync is the client daemon: it builds one sync engine per
// enabled resource kind and runs them concurrently against the broker's
// publish/subscribe surface until a peer or the user stops it.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	brokerclient "github.com/fioncat/csync-go/internal/broker/client"
	"github.com/fioncat/csync-go/internal/clipboard"
	"github.com/fioncat/csync-go/internal/config"
	"github.com/fioncat/csync-go/internal/metrics"
	"github.com/fioncat/csync-go/internal/syncengine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment only")
	}

	cfg := config.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, err := brokerclient.Dial(brokerclient.Config{
		Addr:     cfg.Client.ServerAddr,
		Password: []byte(cfg.Client.Password),
		Device:   cfg.Client.Device,
		Peers:    cfg.Client.Peers,
	})
	if err != nil {
		logger.Error("csync: failed to reach broker", "err", err)
		os.Exit(1)
	}
	defer remote.Close()

	// cb is a scripted clipboard until a host-specific driver (X11,
	// Wayland, macOS pasteboard, Windows) is wired in as a separate plug-in
	// package; see internal/clipboard's package doc.
	cb := clipboard.NewScripted()

	syncMetrics := metrics.NewSync()
	factory := syncengine.NewFactory(logger, syncengine.Config{
		RemotePollInterval: cfg.Client.RemotePollInterval(),

		TextEnabled:           cfg.Client.Text.Enabled,
		TextClipboardInterval: cfg.Client.Text.ClipboardPollInterval(),
		TextRemoteReadOnly:    cfg.Client.Text.RemoteReadOnly,
		TextClipboardReadOnly: cfg.Client.Text.ClipboardReadOnly,

		ImageEnabled:           cfg.Client.Image.Enabled,
		ImageClipboardInterval: cfg.Client.Image.ClipboardPollInterval(),
		ImageRemoteReadOnly:    cfg.Client.Image.RemoteReadOnly,
		ImageClipboardReadOnly: cfg.Client.Image.ClipboardReadOnly,

		FileEnabled:           cfg.Client.File.Enabled,
		FileClipboardInterval: cfg.Client.File.ClipboardPollInterval(),
		FileRemoteReadOnly:    cfg.Client.File.RemoteReadOnly,
		FileClipboardReadOnly: cfg.Client.File.ClipboardReadOnly,
	}, cb).WithMetrics(syncMetrics)

	notify := make(chan syncengine.Notification, 16)
	go logNotifications(logger, notify)

	engines := factory.BuildAll(remote, nil, notify)
	if len(engines) == 0 {
		logger.Warn("csync: no resource kind is enabled, nothing to sync")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range engines {
		e := e
		g.Go(func() error {
			e.Run(gctx)
			return gctx.Err()
		})
	}

	logger.Info("csync starting", "device", cfg.Client.Device, "server", cfg.Client.ServerAddr, "kinds", len(engines))
	_ = g.Wait()
	logger.Info("csync stopped")
}

func logNotifications(log *slog.Logger, notify <-chan syncengine.Notification) {
	for n := range notify {
		log.Info("sync event", "kind", n.Kind, "digest", n.Digest, "size", n.Size)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
