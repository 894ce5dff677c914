package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/observability"
	"github.com/your-org/pitchtrack/internal/storage"
)

// Extractor produces numbered JPEG frames from a source until it ends.
type Extractor interface {
	StartExtraction(ctx context.Context, url string, fps, width int, callback FrameCallback) error
	Stop()
	NextIndex() int
}

// FrameStore stores encoded frames.
type FrameStore interface {
	PutFrame(ctx context.Context, key string, data []byte) error
}

// TaskPublisher hands frame tasks to the workers.
type TaskPublisher interface {
	PublishFrame(ctx context.Context, task models.FrameTask) error
}

// StatusStore records match status changes.
type StatusStore interface {
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus, errMsg string) error
}

type activeMatch struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	extractor Extractor
}

func (a *activeMatch) nextIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.extractor.NextIndex()
}

func (a *activeMatch) stop() {
	a.mu.Lock()
	a.extractor.Stop()
	a.mu.Unlock()
	a.cancel()
}

// Manager manages video ingestion for running matches.
type Manager struct {
	publisher TaskPublisher
	frames    FrameStore
	db        StatusStore
	width     int
	defFPS    int

	// NewExtractor builds the extractor for one attempt; frames are numbered
	// from first. RetryBase is the first backoff delay.
	NewExtractor func(first int) Extractor
	Resolve      func(ctx context.Context, url string) (string, error)
	MaxRetries   int
	RetryBase    time.Duration

	mu      sync.RWMutex
	matches map[string]*activeMatch
	wg      sync.WaitGroup
}

func NewManager(publisher TaskPublisher, frames FrameStore, db StatusStore, frameWidth, defaultFPS int) *Manager {
	return &Manager{
		publisher: publisher,
		frames:    frames,
		db:        db,
		width:     frameWidth,
		defFPS:    defaultFPS,
		NewExtractor: func(first int) Extractor {
			return &FFmpegExtractor{FirstIndex: first}
		},
		Resolve:    ResolveYouTubeURL,
		MaxRetries: 3,
		RetryBase:  time.Second,
		matches:    make(map[string]*activeMatch),
	}
}

// HandleCommand processes a match control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd models.MatchCommand) error {
	switch cmd.Action {
	case models.CommandStart:
		return m.startMatch(ctx, cmd)
	case models.CommandStop:
		return m.stopMatch(cmd.MatchID)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (m *Manager) startMatch(ctx context.Context, cmd models.MatchCommand) error {
	matchID, err := uuid.Parse(cmd.MatchID)
	if err != nil {
		return fmt.Errorf("invalid match id %q: %w", cmd.MatchID, err)
	}

	sourceURL := cmd.URL
	if cmd.Type == string(models.SourceTypeYouTube) {
		resolved, err := m.Resolve(ctx, cmd.URL)
		if err != nil {
			m.updateStatus(matchID, models.MatchStatusError, err.Error())
			return fmt.Errorf("resolve youtube url: %w", err)
		}
		sourceURL = resolved
		slog.Info("resolved youtube url", "match_id", cmd.MatchID)
	}

	fps := cmd.FPS
	if fps <= 0 {
		fps = m.defFPS
	}

	m.mu.Lock()
	if _, exists := m.matches[cmd.MatchID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("match %s already running", cmd.MatchID)
	}
	matchCtx, cancel := context.WithCancel(ctx)
	am := &activeMatch{cancel: cancel, extractor: m.NewExtractor(0)}
	m.matches[cmd.MatchID] = am
	m.mu.Unlock()

	observability.ActiveMatches.Inc()
	m.updateStatus(matchID, models.MatchStatusRunning, "")

	slog.Info("starting match ingestion", "match_id", cmd.MatchID, "url", cmd.URL, "fps", fps)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.matches, cmd.MatchID)
			m.mu.Unlock()
			observability.ActiveMatches.Dec()
			slog.Info("match ingestion stopped", "match_id", cmd.MatchID)
		}()

		status, msg := m.run(matchCtx, matchID, cmd, sourceURL, fps, am)
		m.publishEnd(matchID, am.nextIndex())
		m.updateStatus(matchID, status, msg)
	}()

	return nil
}

// run drives extraction attempts until the source ends, the match is
// stopped or retries are exhausted, and reports the final status.
func (m *Manager) run(ctx context.Context, matchID uuid.UUID, cmd models.MatchCommand, sourceURL string, fps int, am *activeMatch) (models.MatchStatus, string) {
	sink := m.frameSink(ctx, matchID)
	currentURL := sourceURL

	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.RetryBase << uint(attempt-1) // 1s, 2s, 4s with the default base
			slog.Warn("retrying match extraction",
				"match_id", cmd.MatchID,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return models.MatchStatusStopped, ""
			case <-time.After(delay):
			}

			// Re-resolve YouTube URLs (they expire)
			if cmd.Type == string(models.SourceTypeYouTube) {
				resolved, err := m.Resolve(ctx, cmd.URL)
				if err != nil {
					slog.Warn("youtube re-resolve failed", "match_id", cmd.MatchID, "error", err)
					continue
				}
				currentURL = resolved
			}

			// Fresh extractor that continues the frame numbering.
			am.mu.Lock()
			am.extractor = m.NewExtractor(am.extractor.NextIndex())
			am.mu.Unlock()
		}

		err := am.extractor.StartExtraction(ctx, currentURL, fps, m.width, sink)
		if ctx.Err() != nil {
			return models.MatchStatusStopped, ""
		}
		if err == nil {
			return models.MatchStatusFinished, ""
		}

		slog.Error("match extraction failed",
			"match_id", cmd.MatchID,
			"attempt", attempt,
			"error", err,
		)
	}

	return models.MatchStatusError, "source failed after retries"
}

// frameSink uploads each frame and publishes its task.
func (m *Manager) frameSink(ctx context.Context, matchID uuid.UUID) FrameCallback {
	id := matchID.String()
	return func(index int, frameData []byte) error {
		key := storage.FrameKey(id, index)
		if err := m.frames.PutFrame(ctx, key, frameData); err != nil {
			return fmt.Errorf("upload frame: %w", err)
		}

		task := models.FrameTask{
			MatchID:    matchID,
			FrameID:    uuid.New(),
			FrameIndex: index,
			Timestamp:  time.Now(),
			FrameRef:   key,
			Width:      m.width,
		}
		if err := m.publisher.PublishFrame(ctx, task); err != nil {
			return fmt.Errorf("publish frame task: %w", err)
		}

		observability.FramesProcessed.WithLabelValues("ingest").Inc()
		return nil
	}
}

// publishEnd queues the end-of-match marker behind the match's last frame.
// The match context may already be cancelled, so it uses its own deadline.
func (m *Manager) publishEnd(matchID uuid.UUID, nextIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task := models.FrameTask{
		MatchID:    matchID,
		FrameID:    uuid.New(),
		FrameIndex: nextIndex,
		Timestamp:  time.Now(),
		EndOfMatch: true,
	}
	if err := m.publisher.PublishFrame(ctx, task); err != nil {
		slog.Error("publish end of match", "match_id", matchID, "error", err)
	}
}

func (m *Manager) stopMatch(matchID string) error {
	m.mu.RLock()
	am, exists := m.matches[matchID]
	m.mu.RUnlock()

	if !exists {
		return nil // Already stopped
	}

	am.stop()

	slog.Info("stop command sent", "match_id", matchID)
	return nil
}

func (m *Manager) updateStatus(matchID uuid.UUID, status models.MatchStatus, errMsg string) {
	err := m.db.UpdateMatchStatus(context.Background(), matchID, status, errMsg)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("update match status", "match_id", matchID, "error", err)
	}
}

// ActiveCount returns the number of currently running matches.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches)
}

// StopAll stops all running matches and waits for them to wind down.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.matches))
	for id := range m.matches {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.stopMatch(id)
	}
	m.wg.Wait()
}

// ParseCommand parses a NATS message into a MatchCommand.
func ParseCommand(data []byte) (models.MatchCommand, error) {
	var cmd models.MatchCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}
