package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
	wg sync.WaitGroup
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ShardFor maps a subject's match ID onto one of n workers. All frames of a
// match land on the same worker and are therefore handled in stream order.
func ShardFor(subject string, n int) int {
	if n <= 1 {
		return 0
	}
	key := subject
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		key = subject[i+1:]
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}

// ConsumeFrames starts consuming frame tasks from the FRAMES stream.
// workerCount goroutines process messages; each match is pinned to one of
// them so its frames are never handled concurrently or out of order.
func (c *Consumer) ConsumeFrames(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}

	stream, err := c.js.Stream(ctx, FramesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", FramesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    1,
		MaxAckPending: workerCount * 64,
		FilterSubject: FramesSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	shards := make([]chan jetstream.Msg, workerCount)
	for i := range shards {
		shards[i] = make(chan jetstream.Msg, 32)
	}
	closeShards := func() {
		for _, ch := range shards {
			close(ch)
		}
	}

	// Fetch loop
	go func() {
		for {
			select {
			case <-ctx.Done():
				closeShards()
				return
			default:
			}

			batch, err := cons.Fetch(workerCount*4, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					closeShards()
					return
				}
				slog.Warn("fetch frames error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case shards[ShardFor(msg.Subject(), workerCount)] <- msg:
				case <-ctx.Done():
					closeShards()
					return
				}
			}
		}
	}()

	// Workers drain their shard after cancellation; frames are never
	// redelivered, so buffered ones are handled rather than dropped.
	handleCtx := context.WithoutCancel(ctx)
	for i := 0; i < workerCount; i++ {
		c.wg.Add(1)
		go func(workerID int, msgs <-chan jetstream.Msg) {
			defer c.wg.Done()
			for msg := range msgs {
				if err := handler(handleCtx, msg); err != nil {
					// A redelivered frame would reach its tracker out of order.
					slog.Error("process frame error", "worker", workerID, "error", err, "subject", msg.Subject())
					_ = msg.Term()
				} else {
					_ = msg.Ack()
				}
			}
		}(i, shards[i])
	}

	slog.Info("frame consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeTracks starts consuming track batches (for the API to persist and
// broadcast via WebSocket).
func (c *Consumer) ConsumeTracks(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, TracksStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", TracksStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: TracksSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process track batch error", "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("track consumer started", "consumer", consumerName)
	return nil
}

// Wait blocks until every frame worker has drained its shard after the
// consume context is cancelled, or until timeout. It reports whether the
// workers finished in time.
func (c *Consumer) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
