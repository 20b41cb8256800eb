package entity

import "time"

// EventType classifies one progress event on a session's stream.
type EventType string

const (
	EventStageStarted    EventType = "STAGE_STARTED"
	EventStageCompleted  EventType = "STAGE_COMPLETED"
	EventStageFailed     EventType = "STAGE_FAILED"
	EventPhaseTransition EventType = "PHASE_TRANSITION"
	EventTerminal        EventType = "TERMINAL"
)

// Event is an immutable record on a session's ordered stream. Sequence
// numbers are strictly increasing per session and never reused, so a client
// can detect gaps after reconnecting.
type Event struct {
	SessionID string                 `json:"session_id"`
	Sequence  uint64                 `json:"sequence"`
	Type      EventType              `json:"type"`
	Stage     string                 `json:"stage,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	EmittedAt time.Time              `json:"emitted_at"`
}
