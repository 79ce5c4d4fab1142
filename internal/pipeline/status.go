// Package pipeline classifies recordings into processing stages from the presence of their
// enrichment fields. Everything here is pure: no I/O, no clocks.
package pipeline

import "errors"

// Stage is the processing stage of a recording.
type Stage string

const (
	StagePendingTranscription Stage = "pending_transcription"
	StagePendingAnalysis      Stage = "pending_analysis"
	StageCompleted            Stage = "completed"
)

// EntryStage is the AI annotation status of a single slide entry.
type EntryStage string

const (
	EntryPending   EntryStage = "pending"
	EntryAnnotated EntryStage = "annotated"
)

// ErrAnalysisPairing means ai_lecture_overview and ai_analyzed_at disagree on presence.
var ErrAnalysisPairing = errors.New("ai_lecture_overview and ai_analyzed_at must be set together")

// Snapshot is the field-presence view of a recording that stage resolution works from.
type Snapshot struct {
	HasTranscript bool
	HasSubtitles  bool
	HasOverview   bool
	HasAnalyzedAt bool
}

// Resolve maps a snapshot to exactly one stage.
// A recording with only one of transcript/subtitles is still pending transcription.
func Resolve(s Snapshot) Stage {
	if !s.HasTranscript || !s.HasSubtitles {
		return StagePendingTranscription
	}
	if !s.HasOverview || !s.HasAnalyzedAt {
		// overview without its timestamp is not a completion marker
		return StagePendingAnalysis
	}
	return StageCompleted
}

// ResolveEntry returns the AI sub-status of a slide entry.
func ResolveEntry(hasExplanation bool) EntryStage {
	if hasExplanation {
		return EntryAnnotated
	}
	return EntryPending
}

// Validate reports whether the snapshot honours the overview/analyzed-at pairing.
func Validate(s Snapshot) error {
	if s.HasOverview != s.HasAnalyzedAt {
		return ErrAnalysisPairing
	}
	return nil
}

// Valid reports whether st is one of the known stages.
func (st Stage) Valid() bool {
	switch st {
	case StagePendingTranscription, StagePendingAnalysis, StageCompleted:
		return true
	}
	return false
}
