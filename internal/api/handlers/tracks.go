package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pitchtrack/internal/storage"
	"github.com/your-org/pitchtrack/pkg/dto"
)

type TrackHandler struct {
	db Store
}

func NewTrackHandler(db Store) *TrackHandler {
	return &TrackHandler{db: db}
}

// List returns stored track records of a match.
// Query: track_id, from, to (frame indices, inclusive), limit, offset.
func (h *TrackHandler) List(c *gin.Context) {
	m, ok := loadMatch(c, h.db)
	if !ok {
		return
	}

	q := storage.TrackQuery{}
	if v := c.Query("track_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track_id"})
			return
		}
		q.TrackID = &id
	}
	if v := c.Query("from"); v != "" {
		from, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		q.FromFrame = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		q.ToFrame = &to
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	q.Limit, q.Offset = limit, offset

	records, total, err := h.db.QueryTrackRecords(c.Request.Context(), m.ID, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.TrackListResponse{
		MatchID: m.ID,
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}
