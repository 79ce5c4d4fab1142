package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/pipeline"
)

// Recording is a lecture recording tracked through the transcription and analysis pipeline.
// Enrichment fields are written by external workers; nil means not produced yet.
type Recording struct {
	ID            uuid.UUID       `json:"id"`
	OwnerUserID   uuid.UUID       `json:"user_id"`
	SubjectID     *uuid.UUID      `json:"subject_id,omitempty"`
	Title         string          `json:"title"`
	AudioKey      string          `json:"audio_key,omitempty"`
	PDFKey        string          `json:"pdf_key,omitempty"`
	Duration      int             `json:"duration"`
	FileSizeBytes int64           `json:"file_size_bytes"`
	PDFSizeBytes  int64           `json:"pdf_size_bytes"`
	Transcript    *string         `json:"transcript"`
	Subtitles     *string         `json:"subtitles"`
	AIOverview    json.RawMessage `json:"ai_lecture_overview"`
	AIAnalyzedAt  *time.Time      `json:"ai_analyzed_at"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Snapshot returns the field-presence view used for stage resolution.
func (r *Recording) Snapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		HasTranscript: r.Transcript != nil,
		HasSubtitles:  r.Subtitles != nil,
		HasOverview:   len(r.AIOverview) > 0,
		HasAnalyzedAt: r.AIAnalyzedAt != nil,
	}
}

// Stage returns the current pipeline stage.
func (r *Recording) Stage() pipeline.Stage { return pipeline.Resolve(r.Snapshot()) }

// ProcessingStatus is the admin detail view of which enrichment steps have landed.
type ProcessingStatus struct {
	HasTranscript bool           `json:"hasTranscript"`
	HasSubtitles  bool           `json:"hasSubtitles"`
	HasAIAnalysis bool           `json:"hasAIAnalysis"`
	AIAnalyzedAt  *time.Time     `json:"aiAnalyzedAt"`
	Stage         pipeline.Stage `json:"stage"`
}

// ProcessingStatus derives the detail booleans from the recording.
func (r *Recording) ProcessingStatus() ProcessingStatus {
	snap := r.Snapshot()
	return ProcessingStatus{
		HasTranscript: snap.HasTranscript,
		HasSubtitles:  snap.HasSubtitles,
		HasAIAnalysis: snap.HasOverview,
		AIAnalyzedAt:  r.AIAnalyzedAt,
		Stage:         pipeline.Resolve(snap),
	}
}
