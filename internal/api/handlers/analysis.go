package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/pitch"
	"github.com/your-org/pitchtrack/internal/storage"
	"github.com/your-org/pitchtrack/internal/threat"
	"github.com/your-org/pitchtrack/pkg/dto"
)

// AnalysisHandler serves pitch calibration and expected-threat scoring.
type AnalysisHandler struct {
	db          Store
	pitchLength float64
	pitchWidth  float64
}

func NewAnalysisHandler(db Store, pitchLength, pitchWidth float64) *AnalysisHandler {
	return &AnalysisHandler{db: db, pitchLength: pitchLength, pitchWidth: pitchWidth}
}

// PutHomography estimates the match homography from a CSV body of
// image_x,image_y,pitch_x,pitch_y point pairs and stores it.
func (h *AnalysisHandler) PutHomography(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	pairs, err := pitch.LoadPointPairs(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hm, err := pitch.Estimate(pairs)
	if err != nil {
		if errors.Is(err, pitch.ErrTooFewPoints) || errors.Is(err, pitch.ErrDegenerate) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SaveHomography(c.Request.Context(), m.ID, hm); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("homography saved", "match_id", m.ID, "points", len(pairs))
	c.JSON(http.StatusOK, dto.HomographyResponse{MatchID: m.ID, Homography: hm.Rows(), Points: len(pairs)})
}

func (h *AnalysisHandler) GetHomography(c *gin.Context) {
	id, ok := parseMatchID(c)
	if !ok {
		return
	}

	hm, err := h.db.GetHomography(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "homography not set"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.HomographyResponse{MatchID: id, Homography: hm.Rows()})
}

// ComputeXT scores every stored track of the match against the xT table in
// the CSV body, replaces the stored scores and returns them.
func (h *AnalysisHandler) ComputeXT(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	table, err := threat.LoadTable(c.Request.Body, h.pitchLength, h.pitchWidth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	hm, err := h.db.GetHomography(ctx, m.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "homography not set for match"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	records, _, err := h.db.QueryTrackRecords(ctx, m.ID, storage.TrackQuery{Limit: -1})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	scores := threat.Compute(hm.ProjectRecords(records), table)
	if scores == nil {
		scores = []models.ThreatScore{}
	}
	if err := h.db.SaveThreatScores(ctx, m.ID, scores); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("xT computed", "match_id", m.ID, "records", len(records), "tracks", len(scores))
	c.JSON(http.StatusOK, dto.ThreatResponse{MatchID: m.ID, Scores: scores})
}

func (h *AnalysisHandler) GetXT(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	scores, err := h.db.ListThreatScores(c.Request.Context(), m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if scores == nil {
		scores = []models.ThreatScore{}
	}

	c.JSON(http.StatusOK, dto.ThreatResponse{MatchID: m.ID, Scores: scores})
}
