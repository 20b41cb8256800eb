package entity

import "time"

// LoanApplication is the fully-typed, immutable record produced by the
// validation gateway. Once attached to a session it is never mutated; stages
// receive it by value inside a StageContext.
type LoanApplication struct {
	ApplicantName   string  `json:"applicant_name" validate:"required,min=2"`
	Email           string  `json:"email" validate:"required,email"`
	AnnualIncome    float64 `json:"annual_income" validate:"required,gt=0"`
	LoanAmount      float64 `json:"loan_amount" validate:"required,gt=0"`
	LoanTermMonths  int     `json:"loan_term_months" validate:"required,gte=6,lte=480"`
	LoanPurpose     string  `json:"loan_purpose" validate:"required"`
	EmploymentYears float64 `json:"employment_years" validate:"gte=0"`
	ExistingDebt    float64 `json:"existing_debt" validate:"gte=0"`
}

// StageOutput is one structured assessment appended by the pipeline runner.
// Immutable once appended.
type StageOutput struct {
	Stage      string                 `json:"stage"`
	Score      float64                `json:"score"`
	Verdict    string                 `json:"verdict"`
	Details    map[string]interface{} `json:"details,omitempty"`
	ProducedAt time.Time              `json:"produced_at"`
}

// FinalOutcome is the terminal decision synthesized from all stage outputs.
type FinalOutcome struct {
	Decision   string        `json:"decision"` // "APPROVED" | "DECLINED" | "REFERRED"
	Reason     string        `json:"reason"`
	Stages     []StageOutput `json:"stages"`
	DecidedAt  time.Time     `json:"decided_at"`
	FinalScore float64       `json:"final_score"`
}

const (
	DecisionApproved = "APPROVED"
	DecisionDeclined = "DECLINED"
	DecisionReferred = "REFERRED"
)
