// Command ingestor turns match sources into frame tasks. It listens for
// start/stop commands, decodes video with ffmpeg, stores frames in object
// storage and prunes old frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/pitchtrack/internal/config"
	"github.com/your-org/pitchtrack/internal/ingest"
	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/observability"
	"github.com/your-org/pitchtrack/internal/queue"
	"github.com/your-org/pitchtrack/internal/storage"
)

const cleanupInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8081", "metrics and health listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *metricsAddr); err != nil {
		slog.Error("ingestor failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestor stopped")
}

func run(ctx context.Context, cfg *config.Config, metricsAddr string) error {
	slog.Info("starting ingestor", "frame_width", cfg.Vision.FrameWidth, "default_fps", cfg.Vision.DefaultFPS)

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	frames, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}
	if err := frames.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	manager := ingest.NewManager(producer, frames, db, cfg.Vision.FrameWidth, cfg.Vision.DefaultFPS)
	defer manager.StopAll()

	sub, err := producer.SubscribeControl(func(data []byte) {
		cmd, err := ingest.ParseCommand(data)
		if err != nil {
			slog.Error("parse command", "error", err)
			return
		}
		handleCommand(ctx, manager, cmd)
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	if n := cfg.Storage.FrameRetention; n > 0 {
		slog.Info("frame cleanup enabled", "retention", n)
		go pruneLoop(ctx, db, frames, n)
	}

	go observability.ServeMetrics(ctx, metricsAddr, map[string]observability.HealthCheck{
		"nats":     producer.Ping,
		"minio":    observability.PingCheck(frames.Ping),
		"postgres": observability.PingCheck(db.Ping),
	})

	<-ctx.Done()
	slog.Info("stopping matches", "active_matches", manager.ActiveCount())
	return nil
}

func handleCommand(ctx context.Context, manager *ingest.Manager, cmd models.MatchCommand) {
	log := slog.With("action", cmd.Action, "match_id", cmd.MatchID)
	log.Info("received command")
	if err := manager.HandleCommand(ctx, cmd); err != nil {
		log.Error("handle command", "error", err)
	}
}

func pruneLoop(ctx context.Context, db *storage.PostgresStore, frames *storage.MinIOStore, keep int) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneFrames(ctx, db, frames, keep)
		}
	}
}

// pruneFrames keeps the newest keep frames of every known match.
func pruneFrames(ctx context.Context, db *storage.PostgresStore, frames *storage.MinIOStore, keep int) {
	matches, err := db.ListMatches(ctx)
	if err != nil {
		slog.Warn("prune: list matches", "error", err)
		return
	}
	for _, m := range matches {
		deleted, err := frames.PruneFrames(ctx, m.ID.String(), keep)
		if err != nil {
			slog.Warn("prune frames", "match_id", m.ID, "error", err)
			continue
		}
		if deleted > 0 {
			slog.Info("pruned frames", "match_id", m.ID, "deleted", deleted, "kept", keep)
		}
	}
}
