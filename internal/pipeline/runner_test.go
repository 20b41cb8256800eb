package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/store"
	"loan-intake-be/internal/stream"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

type stubStage struct {
	name   string
	assess func(ctx context.Context, sc StageContext) (*entity.StageOutput, error)
}

func (s *stubStage) Name() string { return s.name }
func (s *stubStage) Assess(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
	return s.assess(ctx, sc)
}

func okStage(name string) *stubStage {
	return &stubStage{name: name, assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
		return &entity.StageOutput{Stage: name, Score: 80, Verdict: entity.DecisionApproved, ProducedAt: time.Now()}, nil
	}}
}

type harness struct {
	sessions *store.SessionStore
	events   *stream.Stream
	runner   *Runner
	id       string
}

func newHarness(t *testing.T, stages []Stage) *harness {
	t.Helper()
	sessions := store.NewSessionStore(time.Minute, time.Minute, nopLogger{})
	t.Cleanup(sessions.Close)
	events := stream.NewStream(32, nopLogger{})
	t.Cleanup(func() { events.Close() })

	runner := NewRunner(stages, sessions, events, nopLogger{}, 2, time.Millisecond)

	sess := sessions.Create()
	id := sess.Id.String()
	err := sessions.Mutate(id, func(cur *entity.Session) error {
		if err := cur.Transition(entity.PhaseReady); err != nil {
			return err
		}
		cur.ValidatedRecord = &entity.LoanApplication{
			ApplicantName:  "Ada Lovelace",
			Email:          "ada@example.com",
			AnnualIncome:   85000,
			LoanAmount:     20000,
			LoanTermMonths: 48,
			LoanPurpose:    "car",
		}
		return cur.Transition(entity.PhaseProcessing)
	})
	if err != nil {
		t.Fatal(err)
	}
	return &harness{sessions: sessions, events: events, runner: runner, id: id}
}

// runAndCollect subscribes, runs the pipeline to completion, and returns the
// full ordered event history.
func (h *harness) runAndCollect(t *testing.T) []entity.Event {
	t.Helper()
	ch, release, err := h.events.Subscribe(context.Background(), h.id)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	h.runner.Run(context.Background(), h.id)

	var got []entity.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("stream never terminated; got %d events", len(got))
		}
	}
}

func eventTypes(events []entity.Event) []entity.EventType {
	types := make([]entity.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestAllStagesSucceed(t *testing.T) {
	h := newHarness(t, []Stage{okStage("credit"), okStage("risk"), okStage("decision")})
	got := h.runAndCollect(t)

	want := []entity.EventType{
		entity.EventPhaseTransition,
		entity.EventStageStarted, entity.EventStageCompleted,
		entity.EventStageStarted, entity.EventStageCompleted,
		entity.EventStageStarted, entity.EventStageCompleted,
		entity.EventTerminal,
	}
	types := eventTypes(got)
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	for i, ev := range got {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d sequence = %d, want %d (gap)", i, ev.Sequence, i+1)
		}
	}

	sess, err := h.sessions.Get(h.id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Phase != entity.PhaseCompleted {
		t.Errorf("phase = %s, want COMPLETED", sess.Phase)
	}
	if len(sess.StageOutputs) != 3 {
		t.Errorf("stage outputs = %d, want 3", len(sess.StageOutputs))
	}
	if sess.FinalOutcome == nil || sess.FinalOutcome.Decision != entity.DecisionApproved {
		t.Errorf("final outcome = %+v", sess.FinalOutcome)
	}
}

func TestFatalStageHaltsPipeline(t *testing.T) {
	var thirdRan atomic.Bool
	stages := []Stage{
		okStage("credit"),
		&stubStage{name: "risk", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			return nil, errs.StageFatal("risk", errors.New("invariant violated"))
		}},
		&stubStage{name: "decision", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			thirdRan.Store(true)
			return nil, nil
		}},
	}

	h := newHarness(t, stages)
	got := h.runAndCollect(t)

	want := []entity.EventType{
		entity.EventPhaseTransition,
		entity.EventStageStarted, entity.EventStageCompleted, // credit
		entity.EventStageStarted, entity.EventStageFailed, // risk
		entity.EventTerminal,
	}
	types := eventTypes(got)
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	if thirdRan.Load() {
		t.Error("stage after fatal failure was invoked")
	}

	sess, err := h.sessions.Get(h.id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Phase != entity.PhaseError {
		t.Errorf("phase = %s, want ERROR", sess.Phase)
	}
	if len(sess.StageOutputs) != 1 {
		t.Errorf("stage outputs = %d, want 1", len(sess.StageOutputs))
	}
}

func TestRetryableFailureIsRetried(t *testing.T) {
	var attempts atomic.Int32
	flaky := &stubStage{name: "credit", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
		if attempts.Add(1) < 3 {
			return nil, errs.StageRetryable("credit", errors.New("downstream timeout"))
		}
		return &entity.StageOutput{Stage: "credit", Score: 70, Verdict: entity.DecisionApproved, ProducedAt: time.Now()}, nil
	}}

	h := newHarness(t, []Stage{flaky})
	got := h.runAndCollect(t)

	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	types := eventTypes(got)
	// Retries happen inside one stage invocation: exactly one STARTED.
	started := 0
	for _, ty := range types {
		if ty == entity.EventStageStarted {
			started++
		}
	}
	if started != 1 {
		t.Errorf("STAGE_STARTED count = %d, want 1", started)
	}

	sess, _ := h.sessions.Get(h.id)
	if sess.Phase != entity.PhaseCompleted {
		t.Errorf("phase = %s, want COMPLETED", sess.Phase)
	}
}

func TestRetriesExhaustEscalatesToFatal(t *testing.T) {
	var attempts atomic.Int32
	failing := &stubStage{name: "credit", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
		attempts.Add(1)
		return nil, errs.StageRetryable("credit", errors.New("downstream timeout"))
	}}

	h := newHarness(t, []Stage{failing})
	got := h.runAndCollect(t)

	// maxRetries=2 means three attempts total before escalation.
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	types := eventTypes(got)
	if types[len(types)-2] != entity.EventStageFailed || types[len(types)-1] != entity.EventTerminal {
		t.Errorf("event types = %v, want ...STAGE_FAILED, TERMINAL", types)
	}

	sess, _ := h.sessions.Get(h.id)
	if sess.Phase != entity.PhaseError {
		t.Errorf("phase = %s, want ERROR", sess.Phase)
	}
}

func TestStagePanicStillTerminatesStream(t *testing.T) {
	stages := []Stage{
		&stubStage{name: "credit", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			panic("scoring table corrupted")
		}},
	}

	h := newHarness(t, stages)
	got := h.runAndCollect(t)

	// The subscriber channel only closes on TERMINAL, so a panic must still
	// surface one with an error result.
	if len(got) == 0 {
		t.Fatal("no events delivered")
	}
	last := got[len(got)-1]
	if last.Type != entity.EventTerminal {
		t.Fatalf("last event = %s, want TERMINAL", last.Type)
	}
	if result, _ := last.Payload["result"].(string); result != string(entity.PhaseError) {
		t.Errorf("terminal result = %v, want %s", last.Payload["result"], entity.PhaseError)
	}

	sess, err := h.sessions.Get(h.id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Phase != entity.PhaseError {
		t.Errorf("phase = %s, want ERROR", sess.Phase)
	}
}

func TestStagesSeePriorOutputsInOrder(t *testing.T) {
	var priorCounts []int
	mk := func(name string) *stubStage {
		return &stubStage{name: name, assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			priorCounts = append(priorCounts, len(sc.PriorOutputs))
			return &entity.StageOutput{Stage: name, Score: 50, Verdict: entity.DecisionApproved, ProducedAt: time.Now()}, nil
		}}
	}

	h := newHarness(t, []Stage{mk("credit"), mk("risk"), mk("decision")})
	h.runAndCollect(t)

	for i, n := range priorCounts {
		if n != i {
			t.Errorf("stage %d saw %d prior outputs, want %d", i, n, i)
		}
	}
}

func TestCancellationStopsBeforeNextStage(t *testing.T) {
	var secondRan atomic.Bool
	stages := []Stage{
		&stubStage{name: "credit", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			return &entity.StageOutput{Stage: "credit", Score: 80, Verdict: entity.DecisionApproved, ProducedAt: time.Now()}, nil
		}},
		&stubStage{name: "risk", assess: func(ctx context.Context, sc StageContext) (*entity.StageOutput, error) {
			secondRan.Store(true)
			return nil, nil
		}},
	}

	h := newHarness(t, stages)
	if err := h.sessions.Mutate(h.id, func(cur *entity.Session) error {
		cur.CancelRequested = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	h.runAndCollect(t)

	if secondRan.Load() {
		t.Error("stage invoked after cancellation")
	}
	sess, _ := h.sessions.Get(h.id)
	if sess.Phase != entity.PhaseError {
		t.Errorf("phase = %s, want ERROR", sess.Phase)
	}
}
