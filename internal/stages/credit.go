package stages

import (
	"context"
	"errors"
	"time"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pipeline"
	"loan-intake-be/internal/pkg/errs"
)

// CreditStage scores the applicant's capacity to carry the requested debt.
// Rule-based reference implementation of the stage contract; any scoring
// backend can replace it.
type CreditStage struct{}

func NewCreditStage() *CreditStage { return &CreditStage{} }

func (s *CreditStage) Name() string { return "credit" }

func (s *CreditStage) Assess(ctx context.Context, sc pipeline.StageContext) (*entity.StageOutput, error) {
	app := sc.Application
	if app.AnnualIncome <= 0 {
		// The gateway guarantees this; hitting it means the validated record
		// was corrupted downstream.
		return nil, errs.StageFatal(s.Name(), errors.New("validated record has non-positive income"))
	}

	monthlyIncome := app.AnnualIncome / 12
	monthlyPayment := app.LoanAmount / float64(app.LoanTermMonths)
	debtLoad := (monthlyPayment + app.ExistingDebt/12) / monthlyIncome

	score := 100 - debtLoad*100
	if score < 0 {
		score = 0
	}
	if app.EmploymentYears >= 2 {
		score += 5
	}
	if score > 100 {
		score = 100
	}

	verdict := "ACCEPTABLE"
	if debtLoad > 0.45 {
		verdict = entity.DecisionDeclined
	}

	return &entity.StageOutput{
		Stage:   s.Name(),
		Score:   score,
		Verdict: verdict,
		Details: map[string]interface{}{
			"debt_load":       debtLoad,
			"monthly_payment": monthlyPayment,
		},
		ProducedAt: time.Now(),
	}, nil
}
