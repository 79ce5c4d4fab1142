package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/pipeline"
)

// TaskRow is one recording as seen by the task queue view. Enrichment payloads are reduced to
// presence flags so list reads stay light.
type TaskRow struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	OwnerUserID   uuid.UUID      `json:"user_id"`
	OwnerName     string         `json:"user_name,omitempty"`
	OwnerEmail    string         `json:"user_email,omitempty"`
	HasTranscript bool           `json:"has_transcript"`
	HasSubtitles  bool           `json:"has_subtitles"`
	HasOverview   bool           `json:"has_ai_overview"`
	AIAnalyzedAt  *time.Time     `json:"ai_analyzed_at,omitempty"`
	Version       int64          `json:"version"`
	Stage         pipeline.Stage `json:"stage"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Snapshot returns the field-presence view of the row.
func (t *TaskRow) Snapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		HasTranscript: t.HasTranscript,
		HasSubtitles:  t.HasSubtitles,
		HasOverview:   t.HasOverview,
		HasAnalyzedAt: t.AIAnalyzedAt != nil,
	}
}
