package dto

import "loan-intake-be/internal/entity"

type CreateSessionResponse struct {
	SessionId string       `json:"session_id"`
	Phase     entity.Phase `json:"phase"`
	ExpiresAt string       `json:"expires_at"`
}

type TurnRequest struct {
	// SessionId is optional: a first turn without one creates the session.
	SessionId string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	UserTurn  string `json:"user_turn" validate:"required,min=1,max=4000"`
}

type TurnResponse struct {
	SessionId        string                 `json:"session_id"`
	Phase            entity.Phase           `json:"phase"`
	WorkingRecord    map[string]interface{} `json:"working_record"`
	CompletionSignal int                    `json:"completion_signal"`
	AssistantReply   string                 `json:"assistant_reply"`
}

type HeartbeatRequest struct {
	SessionId string `json:"session_id" validate:"required,uuid"`
}

type HeartbeatResponse struct {
	SessionId string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}
