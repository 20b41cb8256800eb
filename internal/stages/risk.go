package stages

import (
	"context"
	"errors"
	"time"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pipeline"
	"loan-intake-be/internal/pkg/errs"
)

// RiskStage evaluates exposure given the credit assessment. It consumes the
// credit stage's output through the stage context; stages never share state
// any other way.
type RiskStage struct{}

func NewRiskStage() *RiskStage { return &RiskStage{} }

func (s *RiskStage) Name() string { return "risk" }

func (s *RiskStage) Assess(ctx context.Context, sc pipeline.StageContext) (*entity.StageOutput, error) {
	credit := priorOutput(sc.PriorOutputs, "credit")
	if credit == nil {
		return nil, errs.StageFatal(s.Name(), errors.New("credit assessment missing from stage context"))
	}

	app := sc.Application
	exposure := app.LoanAmount / app.AnnualIncome

	risk := exposure * 40
	if credit.Score < 50 {
		risk += 25
	}
	if app.LoanTermMonths > 240 {
		risk += 10
	}

	score := 100 - risk
	if score < 0 {
		score = 0
	}

	verdict := "LOW_RISK"
	switch {
	case risk > 60:
		verdict = entity.DecisionDeclined
	case risk > 35:
		verdict = "ELEVATED_RISK"
	}

	return &entity.StageOutput{
		Stage:   s.Name(),
		Score:   score,
		Verdict: verdict,
		Details: map[string]interface{}{
			"exposure": exposure,
			"risk":     risk,
		},
		ProducedAt: time.Now(),
	}, nil
}

func priorOutput(outputs []entity.StageOutput, stage string) *entity.StageOutput {
	for i := range outputs {
		if outputs[i].Stage == stage {
			return &outputs[i]
		}
	}
	return nil
}
