package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/storage"
	"github.com/your-org/pitchtrack/pkg/dto"
)

type MatchHandler struct {
	db         Store
	frames     ObjectStore
	producer   ControlPublisher
	defaultFPS int
}

func NewMatchHandler(db Store, frames ObjectStore, producer ControlPublisher, defaultFPS int) *MatchHandler {
	return &MatchHandler{db: db, frames: frames, producer: producer, defaultFPS: defaultFPS}
}

func (h *MatchHandler) Create(c *gin.Context) {
	var req dto.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fps := req.FPS
	if fps <= 0 {
		fps = h.defaultFPS
	}

	m := &models.Match{
		Name:       req.Name,
		SourceURL:  req.SourceURL,
		SourceType: models.SourceType(req.SourceType),
		FPS:        fps,
	}

	if err := h.db.CreateMatch(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, matchToResponse(m))
}

func (h *MatchHandler) Get(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, matchToResponse(m))
}

func (h *MatchHandler) List(c *gin.Context) {
	matches, err := h.db.ListMatches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.MatchResponse, 0, len(matches))
	for i := range matches {
		resp = append(resp, matchToResponse(&matches[i]))
	}

	c.JSON(http.StatusOK, dto.MatchListResponse{Matches: resp, Total: len(resp)})
}

func (h *MatchHandler) Start(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	if m.Status == models.MatchStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "match already running"})
		return
	}

	// Publish start command to NATS for ingestor
	cmd := models.MatchCommand{
		Action:  models.CommandStart,
		MatchID: m.ID.String(),
		URL:     m.SourceURL,
		Type:    string(m.SourceType),
		FPS:     m.FPS,
	}
	if err := h.producer.PublishControl(cmd); err != nil {
		_ = h.db.UpdateMatchStatus(c.Request.Context(), m.ID, models.MatchStatusError, "failed to publish start command")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send start command"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "starting", "match_id": m.ID})
}

func (h *MatchHandler) Stop(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	_ = h.producer.PublishControl(models.MatchCommand{Action: models.CommandStop, MatchID: m.ID.String()})

	if err := h.db.UpdateMatchStatus(c.Request.Context(), m.ID, models.MatchStatusStopped, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped", "match_id": m.ID})
}

func (h *MatchHandler) Delete(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	// Stop ingestion first if running
	if m.Status == models.MatchStatusRunning {
		_ = h.producer.PublishControl(models.MatchCommand{Action: models.CommandStop, MatchID: m.ID.String()})
	}

	if err := h.db.DeleteMatch(c.Request.Context(), m.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Frames are only a processing buffer; the match row is already gone.
	n, err := h.frames.DeleteFrames(c.Request.Context(), m.ID.String())
	if err != nil {
		slog.Warn("delete match frames", "match_id", m.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "frames_deleted": n})
}

// parseMatchID reads the :id path parameter, answering 400 when malformed.
func parseMatchID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return uuid.Nil, false
	}
	return id, true
}

// loadMatch fetches the match named by :id, answering 400/404/500 itself.
func loadMatch(c *gin.Context, db Store) (*models.Match, bool) {
	id, ok := parseMatchID(c)
	if !ok {
		return nil, false
	}

	m, err := db.GetMatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return m, true
}

func matchToResponse(m *models.Match) dto.MatchResponse {
	return dto.MatchResponse{
		ID:           m.ID,
		Name:         m.Name,
		SourceURL:    m.SourceURL,
		SourceType:   string(m.SourceType),
		FPS:          m.FPS,
		Status:       string(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    m.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
