package intake

import (
	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/gateway"
	"loan-intake-be/internal/pkg/errs"
)

// Accumulator merges extractor output into a session's working record and
// keeps the completion signal honest. It never talks to the store itself:
// callers run Merge inside SessionStore.Mutate so the merge is serialized
// with every other mutation of the same session.
type Accumulator struct{}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Merge applies partial field updates to the working record, recomputes the
// completion signal, and moves the session to READY when the signal hits 100
// and the extractor judged the data complete. Both conditions are required:
// all known fields being present does not guarantee validity.
func (a *Accumulator) Merge(sess *entity.Session, updates map[string]interface{}, ready bool) error {
	if sess.Phase != entity.PhaseCollecting {
		return &errs.PhaseConflictError{
			SessionID: sess.Id.String(),
			Current:   string(sess.Phase),
			Expected:  string(entity.PhaseCollecting),
		}
	}

	for k, v := range updates {
		if v == nil || v == "" {
			continue
		}
		sess.WorkingRecord[k] = v
	}

	// The signal is monotonically non-decreasing while collecting: merged
	// fields are never removed, so a recompute can only hold or grow, but we
	// clamp anyway in case an update overwrote a field with equal value.
	if signal := CompletionSignal(sess.WorkingRecord); signal > sess.CompletionSignal {
		sess.CompletionSignal = signal
	}

	if sess.CompletionSignal >= 100 && ready {
		return sess.Transition(entity.PhaseReady)
	}
	return nil
}

// CompletionSignal is the percentage of required fields present in the
// working record.
func CompletionSignal(working map[string]interface{}) int {
	total := gateway.RequiredFieldCount()
	if total == 0 {
		return 100
	}
	got := 0
	for _, field := range gateway.RequiredFields() {
		if v, ok := working[field]; ok && v != nil && v != "" {
			got++
		}
	}
	return got * 100 / total
}
