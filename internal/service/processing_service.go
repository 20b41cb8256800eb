package service

import (
	"context"

	"loan-intake-be/internal/dto"
	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/gateway"
	"loan-intake-be/internal/pipeline"
	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/store"
)

// IProcessingService guards the validation gateway and launches pipelines.
type IProcessingService interface {
	// Start validates the accumulated record and, on success, starts the
	// pipeline. On validation failure the session returns to COLLECTING and
	// the rejection carries every missing and invalid field.
	Start(ctx context.Context, sessionId string) (*dto.StartProcessingResponse, *dto.ValidationRejection, error)
	Snapshot(ctx context.Context, sessionId string) (*dto.SessionSnapshotResponse, error)
}

type processingService struct {
	sessions             *store.SessionStore
	gateway              *gateway.Gateway
	runner               *pipeline.Runner
	logger               logger.ILogger
	maxValidationRetries int
}

func NewProcessingService(
	sessions *store.SessionStore,
	gw *gateway.Gateway,
	runner *pipeline.Runner,
	log logger.ILogger,
	maxValidationRetries int,
) IProcessingService {
	return &processingService{
		sessions:             sessions,
		gateway:              gw,
		runner:               runner,
		logger:               log,
		maxValidationRetries: maxValidationRetries,
	}
}

func (s *processingService) Start(ctx context.Context, sessionId string) (*dto.StartProcessingResponse, *dto.ValidationRejection, error) {
	var rejection *dto.ValidationRejection

	if _, err := s.sessions.Get(sessionId); err != nil {
		return nil, nil, err
	}
	err := s.sessions.Mutate(sessionId, func(sess *entity.Session) error {
		if sess.Phase != entity.PhaseReady {
			return &errs.PhaseConflictError{
				SessionID: sessionId,
				Current:   string(sess.Phase),
				Expected:  string(entity.PhaseReady),
			}
		}

		app, failure := s.gateway.Validate(sess.WorkingRecord)
		if failure != nil {
			// The only permitted backward edge: READY -> COLLECTING, with the
			// rejection reason attached so collection can ask for every
			// correction in one round trip.
			sess.ValidationAttempts++
			if s.maxValidationRetries > 0 && sess.ValidationAttempts >= s.maxValidationRetries {
				sess.ManualReview = true
			}
			sess.LastRejection = failure.Reason()
			if err := sess.Transition(entity.PhaseCollecting); err != nil {
				return err
			}
			rejection = &dto.ValidationRejection{
				SessionId:     sessionId,
				Phase:         sess.Phase,
				MissingFields: failure.MissingFields,
				InvalidFields: failure.InvalidFields,
				ManualReview:  sess.ManualReview,
			}
			return nil
		}

		// validatedRecord is set exactly once, here, and never mutated again.
		sess.ValidatedRecord = app
		sess.LastRejection = ""
		return sess.Transition(entity.PhaseProcessing)
	})
	if err != nil {
		return nil, nil, err
	}
	if rejection != nil {
		s.logger.Info("Processing", "Validation rejected record", map[string]interface{}{
			"session_id":     sessionId,
			"missing_fields": rejection.MissingFields,
			"invalid_fields": rejection.InvalidFields,
		})
		return nil, rejection, nil
	}

	// The pipeline owns its own lifetime; the request context would kill it
	// when the HTTP call returns.
	go s.runner.Run(context.Background(), sessionId)

	s.logger.Info("Processing", "Pipeline started", map[string]interface{}{"session_id": sessionId})

	return &dto.StartProcessingResponse{
		SessionId:  sessionId,
		Phase:      entity.PhaseProcessing,
		StreamPath: "/api/processing/v1/stream/" + sessionId,
	}, nil, nil
}

func (s *processingService) Snapshot(ctx context.Context, sessionId string) (*dto.SessionSnapshotResponse, error) {
	sess, err := s.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	return &dto.SessionSnapshotResponse{
		SessionId:        sess.Id.String(),
		Phase:            sess.Phase,
		CompletionSignal: sess.CompletionSignal,
		StageOutputs:     sess.StageOutputs,
		FinalOutcome:     sess.FinalOutcome,
		ValidatedRecord:  sess.ValidatedRecord,
		ManualReview:     sess.ManualReview,
		LastRejection:    sess.LastRejection,
	}, nil
}
