package intake

import "context"

// Extraction is what the field-extraction collaborator produced from one
// conversational turn.
type Extraction struct {
	// Updates are partial field updates to merge into the working record.
	Updates map[string]interface{} `json:"updates"`
	// Ready is the collaborator's readiness hint. Numeric completion alone
	// does not move a session out of collection; the extractor must also
	// judge the data complete.
	Ready bool `json:"ready"`
	// Reply is the assistant text shown to the user for this turn.
	Reply string `json:"reply"`
}

// Extractor is the pluggable NLU capability that turns free text into field
// updates. The state machine does not depend on any concrete implementation.
type Extractor interface {
	Extract(ctx context.Context, userTurn string, current map[string]interface{}) (*Extraction, error)
}
