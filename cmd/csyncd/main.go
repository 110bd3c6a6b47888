// Command csyncd is the broker daemon: it accepts publisher/subscriber
// connections over TCP and routes PUSH/PULL traffic between paired
// devices, with an optional gRPC admin surface for inspecting channel
// state.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fioncat/csync-go/internal/broker/admin"
	"github.com/fioncat/csync-go/internal/broker/server"
	"github.com/fioncat/csync-go/internal/config"
	"github.com/fioncat/csync-go/internal/metrics"
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

	brokerMetrics := metrics.NewBroker()
	srv := server.New(ctx, logger, server.Config{
		Addr:     cfg.Broker.Addr,
		Password: []byte(cfg.Broker.Password),
	}).WithMetrics(brokerMetrics)

	if cfg.Broker.AdminAddr != "" {
		go runAdmin(ctx, logger, srv, cfg.Broker.AdminAddr)
	}

	logger.Info("csyncd starting", "addr", cfg.Broker.Addr, "auth", cfg.Broker.Password != "")
	if err := srv.Run(ctx); err != nil {
		logger.Error("csyncd exited", "err", err)
		os.Exit(server.FatalExitCode)
	}
	logger.Info("csyncd stopped")
}

func runAdmin(ctx context.Context, log *slog.Logger, srv *server.Server, addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("admin listener failed", "addr", addr, "err", err)
		return
	}

	grpcServer := admin.NewGRPCServer(srv.Manager())
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Info("csyncd admin listening", "addr", addr)
	if err := grpcServer.Serve(ln); err != nil {
		log.Warn("admin server stopped", "err", err)
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
