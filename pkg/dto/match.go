package dto

import (
	"github.com/google/uuid"
)

type CreateMatchRequest struct {
	Name       string `json:"name"`
	SourceURL  string `json:"source_url" binding:"required"`
	SourceType string `json:"source_type" binding:"required,oneof=file rtsp youtube http"`
	FPS        int    `json:"fps"`
}

type MatchResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	SourceURL    string    `json:"source_url"`
	SourceType   string    `json:"source_type"`
	FPS          int       `json:"fps"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

type MatchListResponse struct {
	Matches []MatchResponse `json:"matches"`
	Total   int             `json:"total"`
}
