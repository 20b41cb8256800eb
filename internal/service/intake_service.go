package service

import (
	"context"
	"time"

	"loan-intake-be/internal/dto"
	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/intake"
	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/store"
	"loan-intake-be/internal/stream"
)

// IIntakeService drives the collection phase: conversational turns,
// heartbeats, and cancellation.
type IIntakeService interface {
	CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error)
	Turn(ctx context.Context, request *dto.TurnRequest) (*dto.TurnResponse, error)
	Heartbeat(ctx context.Context, sessionId string) (*dto.HeartbeatResponse, error)
	Cancel(ctx context.Context, sessionId string) error
}

type intakeService struct {
	sessions    *store.SessionStore
	accumulator *intake.Accumulator
	extractor   intake.Extractor
	events      *stream.Stream
	logger      logger.ILogger
}

func NewIntakeService(
	sessions *store.SessionStore,
	accumulator *intake.Accumulator,
	extractor intake.Extractor,
	events *stream.Stream,
	log logger.ILogger,
) IIntakeService {
	return &intakeService{
		sessions:    sessions,
		accumulator: accumulator,
		extractor:   extractor,
		events:      events,
		logger:      log,
	}
}

func (s *intakeService) CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error) {
	sess := s.sessions.Create()
	return &dto.CreateSessionResponse{
		SessionId: sess.Id.String(),
		Phase:     sess.Phase,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// Turn runs one collection turn: extraction happens outside the session lock
// (the collaborator call may take seconds), the merge inside it.
func (s *intakeService) Turn(ctx context.Context, request *dto.TurnRequest) (*dto.TurnResponse, error) {
	var sess *entity.Session
	if request.SessionId == "" {
		sess = s.sessions.Create()
	} else {
		var err error
		sess, err = s.sessions.Get(request.SessionId)
		if err != nil {
			return nil, err
		}
	}

	if sess.Phase != entity.PhaseCollecting {
		return nil, &errs.PhaseConflictError{
			SessionID: sess.Id.String(),
			Current:   string(sess.Phase),
			Expected:  string(entity.PhaseCollecting),
		}
	}

	extraction, err := s.extractor.Extract(ctx, request.UserTurn, sess.WorkingRecord)
	if err != nil {
		return nil, err
	}

	var snapshot *entity.Session
	err = s.sessions.Mutate(sess.Id.String(), func(current *entity.Session) error {
		if mergeErr := s.accumulator.Merge(current, extraction.Updates, extraction.Ready); mergeErr != nil {
			return mergeErr
		}
		snapshot = current.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snapshot.Phase == entity.PhaseReady {
		s.logger.Info("Intake", "Session ready for processing", map[string]interface{}{
			"session_id": snapshot.Id,
		})
	}

	return &dto.TurnResponse{
		SessionId:        snapshot.Id.String(),
		Phase:            snapshot.Phase,
		WorkingRecord:    snapshot.WorkingRecord,
		CompletionSignal: snapshot.CompletionSignal,
		AssistantReply:   extraction.Reply,
	}, nil
}

func (s *intakeService) Heartbeat(ctx context.Context, sessionId string) (*dto.HeartbeatResponse, error) {
	if _, err := s.sessions.Get(sessionId); err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(sessionId); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	return &dto.HeartbeatResponse{
		SessionId: sess.Id.String(),
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// Cancel discards a collecting session outright. During processing it is
// advisory: the in-flight stage finishes, then the pipeline stops.
func (s *intakeService) Cancel(ctx context.Context, sessionId string) error {
	sess, err := s.sessions.Get(sessionId)
	if err != nil {
		return err
	}

	if sess.Phase == entity.PhaseProcessing {
		return s.sessions.Mutate(sessionId, func(current *entity.Session) error {
			current.CancelRequested = true
			return nil
		})
	}

	s.sessions.Remove(sessionId)
	s.events.Forget(sessionId)
	s.logger.Info("Intake", "Session cancelled", map[string]interface{}{"session_id": sessionId})
	return nil
}
