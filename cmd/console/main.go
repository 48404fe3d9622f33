package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/liimonx/isp-console/internal/console"
	"github.com/liimonx/isp-console/internal/core/config"
	"github.com/liimonx/isp-console/internal/core/domain"
	"github.com/liimonx/isp-console/internal/data/ratelimit"
	redisclient "github.com/liimonx/isp-console/internal/infra/redis"
	"github.com/liimonx/isp-console/internal/infra/transport"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	log := slog.Default()
	log.Info("Logger initialized", "level", slogLevel.String())

	// Rate-limit gate: process-local by default, Redis-backed when
	// replicas should share throttle state.
	var gate ratelimit.Gate
	var redisConn *redisclient.Client
	if cfg.RateLimit.Shared {
		redisConn, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisConn.Close()
		gate = ratelimit.NewRedisGate(redisConn, "", log)
		log.Info("Using shared rate-limit gate")
	}

	client := transport.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	app := console.New(client, gate, cfg.Retry, cfg.Cache, log)

	server := console.NewServer(app, cfg.Server.Port)
	go func() {
		log.Info("Ops server listening", "port", cfg.Server.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Ops server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitorFleet(ctx, app, cfg.Monitor.Interval, log)

	// Handle OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal, shutting down...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Console stopped gracefully")
}

// monitorFleet periodically refreshes the router fleet through the
// query layer, so the short router staleness window keeps the cache
// warm and operators see throttle state in the logs.
func monitorFleet(ctx context.Context, app *console.Console, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		q := app.Routers(ctx)
		st := q.Wait(ctx)
		if st.Err != nil {
			log.Warn("Fleet refresh failed",
				"kind", st.ErrorKind.String(),
				"attempts", st.Attempts,
				"rate_limited", st.RateLimited,
				"error", st.Err)
			q.Close()
			continue
		}

		routers, _ := st.Data.([]domain.Router)
		offline := 0
		for _, r := range routers {
			if r.Status == domain.RouterOffline {
				offline++
				log.Warn("Router offline", "hostname", r.Hostname, "site", r.Site, "last_seen", r.LastSeenAt)
			}
		}
		log.Debug("Fleet refreshed", "routers", len(routers), "offline", offline)
		q.Close()
	}
}
