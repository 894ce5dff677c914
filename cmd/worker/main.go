// Command worker consumes frame tasks, runs detection and per-match IoU
// tracking, and publishes the emitted track records.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/pitchtrack/internal/config"
	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/observability"
	"github.com/your-org/pitchtrack/internal/queue"
	"github.com/your-org/pitchtrack/internal/storage"
	"github.com/your-org/pitchtrack/internal/vision"
)

const drainTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting tracking worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
		"iou_threshold", cfg.Tracking.IoUThreshold,
		"max_age", cfg.Tracking.MaxAge,
		"min_hits", cfg.Tracking.MinHits,
	)

	if err := vision.InitRuntime(cfg.Vision.ONNXLib); err != nil {
		return err
	}
	defer vision.DestroyRuntime()

	detector, err := vision.LoadDetector(cfg.Vision)
	if err != nil {
		return err
	}
	defer detector.Close()

	frames, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	pipeline, err := vision.NewPipeline(detector, frames, producer, vision.TrackerConfigFrom(cfg.Tracking))
	if err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	if err := consumer.ConsumeFrames(ctx, "tracking-workers", frameHandler(pipeline), cfg.Vision.WorkerCount); err != nil {
		return err
	}

	go observability.ServeMetrics(ctx, cfg.Server.MetricsAddr, map[string]observability.HealthCheck{
		"nats":  producer.Ping,
		"minio": observability.PingCheck(frames.Ping),
	})
	go reportQueueDepth(ctx, producer)

	<-ctx.Done()
	slog.Info("draining frame workers", "active_matches", pipeline.ActiveMatches())
	if !consumer.Wait(drainTimeout) {
		slog.Warn("frame workers did not drain in time", "timeout", drainTimeout)
	}
	return nil
}

func frameHandler(pipeline *vision.Pipeline) queue.MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		var task models.FrameTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal frame task", "subject", msg.Subject(), "error", err)
			return nil
		}
		if err := pipeline.Handle(ctx, task); err != nil {
			return fmt.Errorf("frame %d of match %s: %w", task.FrameIndex, task.MatchID, err)
		}
		return nil
	}
}

func reportQueueDepth(ctx context.Context, producer *queue.Producer) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := producer.QueueDepth(ctx); err == nil {
				observability.QueueDepth.Set(float64(depth))
			}
		}
	}
}
