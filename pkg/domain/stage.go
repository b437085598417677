package domain

// Stage is a pipeline orchestrator state.
type Stage string

// Pipeline states. A run moves Idle → Normalizing → Aggregating → Persisted
// and back to Idle; Failed is reported instead of the next state on error.
const (
	StageIdle        Stage = "idle"
	StageNormalizing Stage = "normalizing"
	StageAggregating Stage = "aggregating"
	StagePersisted   Stage = "persisted"
	StageFailed      Stage = "failed"
)
