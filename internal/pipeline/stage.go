package pipeline

import (
	"context"

	"loan-intake-be/internal/entity"
)

// StageContext is the ephemeral value handed to each stage: the immutable
// validated application plus the immutable outputs of every prior stage. It
// is never persisted on its own.
type StageContext struct {
	Application  entity.LoanApplication
	PriorOutputs []entity.StageOutput
}

// Stage is one unit of sequential assessment work. Implementations must not
// share mutable state with each other; everything a stage needs from its
// predecessors arrives through the StageContext. Failures are classified with
// errs.StageRetryable / errs.StageFatal.
type Stage interface {
	Name() string
	Assess(ctx context.Context, sc StageContext) (*entity.StageOutput, error)
}
