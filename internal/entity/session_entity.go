package entity

import (
	"time"

	"github.com/google/uuid"

	"loan-intake-be/internal/pkg/errs"
)

// Phase is the lifecycle state of an intake session.
type Phase string

const (
	PhaseCollecting Phase = "COLLECTING"
	PhaseReady      Phase = "READY"
	PhaseProcessing Phase = "PROCESSING"
	PhaseCompleted  Phase = "COMPLETED"
	PhaseError      Phase = "ERROR"
)

// legalEdges enumerates every permitted phase transition. READY -> COLLECTING
// is the single backward edge, taken when validation rejects the accumulated
// record.
var legalEdges = map[Phase][]Phase{
	PhaseCollecting: {PhaseCollecting, PhaseReady},
	PhaseReady:      {PhaseProcessing, PhaseCollecting},
	PhaseProcessing: {PhaseCompleted, PhaseError},
}

// Session is the central entity: one per in-flight loan application, held in
// memory for its full lifetime. Mutable fields must only be touched through
// store.SessionStore.Mutate.
type Session struct {
	Id uuid.UUID `json:"id"`

	Phase Phase `json:"phase"`

	// WorkingRecord holds the untyped, partial fields gathered during
	// collection. Mutable only while Phase == COLLECTING.
	WorkingRecord map[string]interface{} `json:"working_record"`

	// CompletionSignal is 0-100 and monotonically non-decreasing while
	// collecting.
	CompletionSignal int `json:"completion_signal"`

	// ValidatedRecord is set exactly once, by the validation gateway, and
	// never mutated afterwards.
	ValidatedRecord *LoanApplication `json:"validated_record,omitempty"`

	// StageOutputs is append-only; the pipeline runner is the only writer.
	StageOutputs []StageOutput `json:"stage_outputs"`

	FinalOutcome *FinalOutcome `json:"final_outcome,omitempty"`

	// ValidationAttempts counts failed gateway passes; past the configured
	// limit the session is flagged for manual review.
	ValidationAttempts int    `json:"validation_attempts"`
	ManualReview       bool   `json:"manual_review"`
	LastRejection      string `json:"last_rejection,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`

	// CancelRequested is advisory during PROCESSING: the in-flight stage
	// finishes, no further stages start.
	CancelRequested bool `json:"cancel_requested"`
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Phase) bool {
	for _, p := range legalEdges[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition moves the session to the target phase, rejecting illegal edges
// with InvalidTransitionError and leaving the session untouched.
func (s *Session) Transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return &errs.InvalidTransitionError{From: string(s.Phase), To: string(to)}
	}
	s.Phase = to
	return nil
}

// Terminal reports whether the session has reached a terminal phase.
func (s *Session) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseError
}

// Clone returns a read snapshot safe to hand out while the original keeps
// being mutated under the store lock.
func (s *Session) Clone() *Session {
	c := *s
	if s.WorkingRecord != nil {
		c.WorkingRecord = make(map[string]interface{}, len(s.WorkingRecord))
		for k, v := range s.WorkingRecord {
			c.WorkingRecord[k] = v
		}
	}
	if s.StageOutputs != nil {
		c.StageOutputs = append([]StageOutput(nil), s.StageOutputs...)
	}
	return &c
}
