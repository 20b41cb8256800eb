package stages

import (
	"context"
	"errors"
	"time"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pipeline"
	"loan-intake-be/internal/pkg/errs"
)

// DecisionStage folds the prior assessments into the final verdict.
type DecisionStage struct{}

func NewDecisionStage() *DecisionStage { return &DecisionStage{} }

func (s *DecisionStage) Name() string { return "decision" }

func (s *DecisionStage) Assess(ctx context.Context, sc pipeline.StageContext) (*entity.StageOutput, error) {
	credit := priorOutput(sc.PriorOutputs, "credit")
	risk := priorOutput(sc.PriorOutputs, "risk")
	if credit == nil || risk == nil {
		return nil, errs.StageFatal(s.Name(), errors.New("prior assessments missing from stage context"))
	}

	combined := credit.Score*0.6 + risk.Score*0.4

	verdict := entity.DecisionReferred
	switch {
	case credit.Verdict == entity.DecisionDeclined || risk.Verdict == entity.DecisionDeclined:
		verdict = entity.DecisionDeclined
	case combined >= 65:
		verdict = entity.DecisionApproved
	case combined < 40:
		verdict = entity.DecisionDeclined
	}

	return &entity.StageOutput{
		Stage:   s.Name(),
		Score:   combined,
		Verdict: verdict,
		Details: map[string]interface{}{
			"credit_score": credit.Score,
			"risk_score":   risk.Score,
		},
		ProducedAt: time.Now(),
	}, nil
}
