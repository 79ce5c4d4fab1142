package pipeline

// Kind selects which enrichment step an admin reset targets.
// The values are the names used on the wire.
type Kind string

const (
	KindTranscription Kind = "whisper"
	KindAnalysis      Kind = "ai"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTranscription || k == KindAnalysis
}

// Cause identifies who moves a recording between stages.
type Cause int

const (
	// CauseWorker is an external worker writing enrichment fields.
	CauseWorker Cause = iota
	// CauseAdmin is an operator resetting fields.
	CauseAdmin
)

type transition struct {
	from, to Stage
}

var transitions = map[transition]Cause{
	{StagePendingTranscription, StagePendingAnalysis}: CauseWorker,
	{StagePendingAnalysis, StageCompleted}:            CauseWorker,

	{StageCompleted, StagePendingAnalysis}:                 CauseAdmin,
	{StageCompleted, StagePendingTranscription}:            CauseAdmin,
	{StagePendingAnalysis, StagePendingTranscription}:      CauseAdmin,
	{StagePendingTranscription, StagePendingTranscription}: CauseAdmin,
	{StagePendingAnalysis, StagePendingAnalysis}:           CauseAdmin,
}

// CanTransition reports whether cause may move a recording from one stage to another.
func CanTransition(from, to Stage, cause Cause) bool {
	c, ok := transitions[transition{from, to}]
	return ok && c == cause
}

// AfterReset returns the stage a recording lands in once the fields for kind are cleared.
func AfterReset(current Stage, kind Kind) Stage {
	switch kind {
	case KindTranscription:
		return StagePendingTranscription
	case KindAnalysis:
		if current == StagePendingTranscription {
			return StagePendingTranscription
		}
		return StagePendingAnalysis
	}
	return current
}
