package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/store"
	"loan-intake-be/internal/stream"
)

// Runner executes the fixed, ordered assessment pipeline for one session.
// Stages for a single session run strictly sequentially; many sessions run
// their pipelines concurrently. Every session that enters PROCESSING leaves
// it through exactly one of COMPLETED or ERROR, and the stream always carries
// a terminal event.
type Runner struct {
	stages     []Stage
	sessions   *store.SessionStore
	events     *stream.Stream
	logger     logger.ILogger
	maxRetries uint64
	baseDelay  time.Duration

	// onOutcome, when set, receives the completed session after the terminal
	// event. Used for outcome delivery collaborators (mail, archival).
	onOutcome func(*entity.Session)
}

func NewRunner(
	stages []Stage,
	sessions *store.SessionStore,
	events *stream.Stream,
	log logger.ILogger,
	maxRetries uint64,
	baseDelay time.Duration,
) *Runner {
	return &Runner{
		stages:     stages,
		sessions:   sessions,
		events:     events,
		logger:     log,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// SetOutcomeHook registers the collaborator that consumes the final outcome.
func (r *Runner) SetOutcomeHook(hook func(*entity.Session)) {
	r.onOutcome = hook
}

// StageCount is the fixed pipeline length; stageOutputs never grows past it.
func (r *Runner) StageCount() int { return len(r.stages) }

// Run drives the session through every stage. The session must already be in
// PROCESSING with its validated record attached. Run blocks until terminal;
// callers start it on its own goroutine.
func (r *Runner) Run(ctx context.Context, sessionID string) {
	defer func() {
		if rec := recover(); rec != nil {
			// A runner panic must never leave the client hanging: surface a
			// synthetic error event and force the session to ERROR.
			r.logger.Error("PipelineRunner", "Runner panicked", map[string]interface{}{
				"session_id": sessionID,
				"panic":      fmt.Sprintf("%v", rec),
			})
			r.failSession(sessionID, "", fmt.Sprintf("internal failure: %v", rec))
		}
	}()

	r.events.Emit(sessionID, entity.EventPhaseTransition, "", map[string]interface{}{
		"phase": entity.PhaseProcessing,
	})

	for i, stg := range r.stages {
		if reason, stop := r.shouldStop(ctx, sessionID); stop {
			r.failSession(sessionID, stg.Name(), reason)
			return
		}

		r.events.Emit(sessionID, entity.EventStageStarted, stg.Name(), map[string]interface{}{
			"index": i,
		})

		output, err := r.invoke(ctx, sessionID, stg)
		if err != nil {
			r.logger.Error("PipelineRunner", "Stage failed", map[string]interface{}{
				"session_id": sessionID,
				"stage":      stg.Name(),
				"error":      err.Error(),
			})
			r.events.Emit(sessionID, entity.EventStageFailed, stg.Name(), map[string]interface{}{
				"error": err.Error(),
			})
			r.failSession(sessionID, stg.Name(), err.Error())
			return
		}

		if err := r.appendOutput(sessionID, output); err != nil {
			r.events.Emit(sessionID, entity.EventStageFailed, stg.Name(), map[string]interface{}{
				"error": err.Error(),
			})
			r.failSession(sessionID, stg.Name(), err.Error())
			return
		}

		r.events.Emit(sessionID, entity.EventStageCompleted, stg.Name(), map[string]interface{}{
			"output": output,
		})
	}

	r.complete(sessionID)
}

// invoke runs one stage with bounded retries and exponential backoff for
// transient failures. Fatal classifications escalate immediately.
func (r *Runner) invoke(ctx context.Context, sessionID string, stg Stage) (*entity.StageOutput, error) {
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ValidatedRecord == nil {
		return nil, &errs.InvalidTransitionError{From: string(sess.Phase), To: string(entity.PhaseProcessing)}
	}
	sc := StageContext{
		Application:  *sess.ValidatedRecord,
		PriorOutputs: sess.StageOutputs,
	}

	var output *entity.StageOutput
	operation := func() error {
		out, err := stg.Assess(ctx, sc)
		if err != nil {
			if errs.IsRetryable(err) {
				r.logger.Warn("PipelineRunner", "Retryable stage failure", map[string]interface{}{
					"session_id": sessionID,
					"stage":      stg.Name(),
					"error":      err.Error(),
				})
				return err
			}
			return backoff.Permanent(err)
		}
		output = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, r.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return output, nil
}

func (r *Runner) appendOutput(sessionID string, output *entity.StageOutput) error {
	return r.sessions.Mutate(sessionID, func(sess *entity.Session) error {
		if len(sess.StageOutputs) >= len(r.stages) {
			return &errs.InvalidTransitionError{From: string(sess.Phase), To: string(sess.Phase)}
		}
		sess.StageOutputs = append(sess.StageOutputs, *output)
		return nil
	})
}

func (r *Runner) complete(sessionID string) {
	var completed *entity.Session
	err := r.sessions.Mutate(sessionID, func(sess *entity.Session) error {
		outcome := synthesizeOutcome(sess.StageOutputs)
		if err := sess.Transition(entity.PhaseCompleted); err != nil {
			return err
		}
		sess.FinalOutcome = outcome
		completed = sess.Clone()
		return nil
	})
	if err != nil {
		r.failSession(sessionID, "", err.Error())
		return
	}

	r.events.Emit(sessionID, entity.EventTerminal, "", map[string]interface{}{
		"result":  entity.PhaseCompleted,
		"outcome": completed.FinalOutcome,
	})
	r.logger.Info("PipelineRunner", "Pipeline completed", map[string]interface{}{
		"session_id": sessionID,
		"decision":   completed.FinalOutcome.Decision,
	})

	if r.onOutcome != nil {
		r.onOutcome(completed)
	}
}

// failSession forces the session to ERROR and emits the terminal event. Safe
// to call from any failure path; a session already terminal is left alone.
func (r *Runner) failSession(sessionID, stage, reason string) {
	err := r.sessions.Mutate(sessionID, func(sess *entity.Session) error {
		if sess.Terminal() {
			return nil
		}
		return sess.Transition(entity.PhaseError)
	})
	if err != nil {
		r.logger.Error("PipelineRunner", "Failed to mark session errored", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	r.events.Emit(sessionID, entity.EventTerminal, stage, map[string]interface{}{
		"result": entity.PhaseError,
		"reason": reason,
	})
}

// shouldStop honors advisory cancellation: the in-flight stage finishes, but
// no further stages start.
func (r *Runner) shouldStop(ctx context.Context, sessionID string) (string, bool) {
	if ctx.Err() != nil {
		return "context cancelled", true
	}
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return err.Error(), true
	}
	if sess.CancelRequested {
		return "cancelled by client", true
	}
	return "", false
}

// synthesizeOutcome folds the complete stage output list into the terminal
// decision. The decision stage has the last word when it produced a proper
// decision verdict; otherwise any declining stage declines the application.
func synthesizeOutcome(outputs []entity.StageOutput) *entity.FinalOutcome {
	outcome := &entity.FinalOutcome{
		Decision:  entity.DecisionReferred,
		Stages:    outputs,
		DecidedAt: time.Now(),
	}

	var total float64
	for _, out := range outputs {
		total += out.Score
	}
	if len(outputs) > 0 {
		outcome.FinalScore = total / float64(len(outputs))
	}

	if len(outputs) > 0 {
		last := outputs[len(outputs)-1]
		switch last.Verdict {
		case entity.DecisionApproved, entity.DecisionDeclined, entity.DecisionReferred:
			outcome.Decision = last.Verdict
			outcome.Reason = last.Stage + " verdict"
			return outcome
		}
	}

	for _, out := range outputs {
		if out.Verdict == entity.DecisionDeclined {
			outcome.Decision = entity.DecisionDeclined
			outcome.Reason = "declined by " + out.Stage
			return outcome
		}
	}
	outcome.Reason = "no decisive verdict"
	return outcome
}
