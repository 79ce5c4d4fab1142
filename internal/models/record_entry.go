package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/pipeline"
)

// RecordEntry is a slide segment annotated against a recording.
// OwnerUserID follows the owning recording's owner.
type RecordEntry struct {
	ID            uuid.UUID       `json:"id"`
	RecordingID   uuid.UUID       `json:"recording_id"`
	OwnerUserID   uuid.UUID       `json:"user_id"`
	MaterialName  string          `json:"material_name"`
	SlideNumber   int             `json:"slide_number"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	Memo          string          `json:"memo,omitempty"`
	AIExplanation json.RawMessage `json:"ai_explanation"`
	AIGeneratedAt *time.Time      `json:"ai_generated_at"`
	AIModel       *string         `json:"ai_model"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AIStatus returns the entry's annotation status.
func (e *RecordEntry) AIStatus() pipeline.EntryStage {
	return pipeline.ResolveEntry(len(e.AIExplanation) > 0)
}

// EntryStatusCounts tallies entries per annotation status.
type EntryStatusCounts struct {
	Pending   int `json:"pending"`
	Annotated int `json:"annotated"`
}

// Total returns the number of entries counted.
func (c EntryStatusCounts) Total() int { return c.Pending + c.Annotated }
