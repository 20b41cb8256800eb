package entity

import (
	"testing"

	"loan-intake-be/internal/pkg/errs"
)

func TestTransitionEdges(t *testing.T) {
	tests := []struct {
		name    string
		from    Phase
		to      Phase
		wantErr bool
	}{
		{"collecting stays collecting", PhaseCollecting, PhaseCollecting, false},
		{"collecting to ready", PhaseCollecting, PhaseReady, false},
		{"ready to processing", PhaseReady, PhaseProcessing, false},
		{"ready back to collecting", PhaseReady, PhaseCollecting, false},
		{"processing to completed", PhaseProcessing, PhaseCompleted, false},
		{"processing to error", PhaseProcessing, PhaseError, false},
		{"collecting to processing skips ready", PhaseCollecting, PhaseProcessing, true},
		{"completed is terminal", PhaseCompleted, PhaseCollecting, true},
		{"error is terminal", PhaseError, PhaseProcessing, true},
		{"processing cannot rewind", PhaseProcessing, PhaseReady, true},
		{"ready cannot complete directly", PhaseReady, PhaseCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Phase: tt.from}
			err := s.Transition(tt.to)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Transition(%s -> %s) succeeded, want InvalidTransition", tt.from, tt.to)
				}
				if _, ok := err.(*errs.InvalidTransitionError); !ok {
					t.Errorf("error type = %T, want *errs.InvalidTransitionError", err)
				}
				if s.Phase != tt.from {
					t.Errorf("phase changed to %s on rejected transition", s.Phase)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transition(%s -> %s) failed: %v", tt.from, tt.to, err)
			}
			if s.Phase != tt.to {
				t.Errorf("phase = %s, want %s", s.Phase, tt.to)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := &Session{
		Phase:         PhaseCollecting,
		WorkingRecord: map[string]interface{}{"email": "a@b.com"},
		StageOutputs:  []StageOutput{{Stage: "credit"}},
	}

	c := s.Clone()
	c.WorkingRecord["email"] = "changed"
	c.StageOutputs = append(c.StageOutputs, StageOutput{Stage: "risk"})

	if s.WorkingRecord["email"] != "a@b.com" {
		t.Error("clone shares the working record map")
	}
	if len(s.StageOutputs) != 1 {
		t.Error("clone shares the stage output slice")
	}
}
