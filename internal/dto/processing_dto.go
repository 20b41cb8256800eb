package dto

import "loan-intake-be/internal/entity"

type StartProcessingRequest struct {
	SessionId string `json:"session_id" validate:"required,uuid"`
}

type StartProcessingResponse struct {
	SessionId string       `json:"session_id"`
	Phase     entity.Phase `json:"phase"`
	// StreamPath is where the client should attach for progress events.
	StreamPath string `json:"stream_path"`
}

// ValidationRejection is the field-level detail returned when the gateway
// bounces a record back to collection.
type ValidationRejection struct {
	SessionId     string            `json:"session_id"`
	Phase         entity.Phase      `json:"phase"`
	MissingFields []string          `json:"missing_fields"`
	InvalidFields map[string]string `json:"invalid_fields"`
	ManualReview  bool              `json:"manual_review"`
}

type SessionSnapshotResponse struct {
	SessionId        string                  `json:"session_id"`
	Phase            entity.Phase            `json:"phase"`
	CompletionSignal int                     `json:"completion_signal"`
	StageOutputs     []entity.StageOutput    `json:"stage_outputs"`
	FinalOutcome     *entity.FinalOutcome    `json:"final_outcome,omitempty"`
	ValidatedRecord  *entity.LoanApplication `json:"validated_record,omitempty"`
	ManualReview     bool                    `json:"manual_review"`
	LastRejection    string                  `json:"last_rejection,omitempty"`
}
