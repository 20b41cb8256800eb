package stream

import (
	"context"
	"testing"
	"time"

	"loan-intake-be/internal/entity"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func collect(t *testing.T, ch <-chan entity.Event, n int) []entity.Event {
	t.Helper()
	var got []entity.Event
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d/%d events", len(got), n)
		}
	}
	return got
}

func TestSequenceNumbersStrictlyIncrease(t *testing.T) {
	s := NewStream(8, nopLogger{})
	defer s.Close()

	ch, release, err := s.Subscribe(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	s.Emit("sess-1", entity.EventStageStarted, "credit", nil)
	s.Emit("sess-1", entity.EventStageCompleted, "credit", nil)
	s.Emit("sess-1", entity.EventTerminal, "", nil)

	got := collect(t, ch, 3)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, ev := range got {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d sequence = %d, want %d", i, ev.Sequence, i+1)
		}
	}

	// Terminal event ends the subscription.
	if _, ok := <-ch; ok {
		t.Error("channel still open after terminal event")
	}
}

func TestLateSubscriberReceivesHistory(t *testing.T) {
	s := NewStream(8, nopLogger{})
	defer s.Close()

	// Events published before anyone attaches must still be delivered: the
	// bus is persistent so a client attaching mid-pipeline sees everything.
	s.Emit("sess-2", entity.EventStageStarted, "credit", nil)
	s.Emit("sess-2", entity.EventStageCompleted, "credit", nil)

	ch, release, err := s.Subscribe(context.Background(), "sess-2")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	got := collect(t, ch, 2)
	if len(got) != 2 || got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("history replay wrong: %+v", got)
	}
}

func TestSecondSubscriberTakesOver(t *testing.T) {
	s := NewStream(8, nopLogger{})
	defer s.Close()

	first, releaseFirst, err := s.Subscribe(context.Background(), "sess-3")
	if err != nil {
		t.Fatal(err)
	}
	defer releaseFirst()

	second, releaseSecond, err := s.Subscribe(context.Background(), "sess-3")
	if err != nil {
		t.Fatal(err)
	}
	defer releaseSecond()

	// The first subscriber's channel closes on takeover.
	select {
	case _, ok := <-first:
		if ok {
			t.Error("first subscriber received an event after takeover")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first subscriber channel not closed on takeover")
	}

	s.Emit("sess-3", entity.EventStageStarted, "credit", nil)
	got := collect(t, second, 1)
	if len(got) != 1 || got[0].Stage != "credit" {
		t.Fatalf("second subscriber did not receive event: %+v", got)
	}
}

func TestSlowConsumerDropsOldest(t *testing.T) {
	s := NewStream(4, nopLogger{})
	defer s.Close()

	ch, release, err := s.Subscribe(context.Background(), "sess-slow")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	// Publish well past the buffer without reading anything.
	for i := 0; i < 12; i++ {
		s.Emit("sess-slow", entity.EventStageCompleted, "credit", nil)
	}
	s.Emit("sess-slow", entity.EventTerminal, "", nil)

	// Let the pump fall behind the emitter before draining.
	time.Sleep(300 * time.Millisecond)

	got := collect(t, ch, 14)
	if len(got) >= 13 {
		t.Fatalf("slow consumer received all %d events, expected drops", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Sequence <= got[i-1].Sequence {
			t.Errorf("sequences not strictly increasing: %d then %d", got[i-1].Sequence, got[i].Sequence)
		}
	}
	last := got[len(got)-1]
	if last.Type != entity.EventTerminal || last.Sequence != 13 {
		t.Errorf("last event = %s seq %d, want TERMINAL seq 13", last.Type, last.Sequence)
	}
}

func TestForgetReleasesSessionState(t *testing.T) {
	s := NewStream(8, nopLogger{})
	defer s.Close()

	ch, release, err := s.Subscribe(context.Background(), "sess-gone")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	s.Emit("sess-gone", entity.EventStageStarted, "credit", nil)
	collect(t, ch, 1)

	s.Forget("sess-gone")

	// The subscriber channel closes.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("subscriber received an event after Forget")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed by Forget")
	}

	// No per-session state survives.
	s.mu.Lock()
	_, chanKept := s.chans["sess-gone"]
	_, subKept := s.active["sess-gone"]
	s.mu.Unlock()
	if chanKept {
		t.Error("session channel retained after Forget")
	}
	if subKept {
		t.Error("subscription retained after Forget")
	}

	// A reused id starts a fresh stream with no replayed history.
	ev := s.Emit("sess-gone", entity.EventStageStarted, "credit", nil)
	if ev.Sequence != 1 {
		t.Errorf("sequence after Forget = %d, want 1", ev.Sequence)
	}
}

func TestSequencesIndependentAcrossSessions(t *testing.T) {
	s := NewStream(8, nopLogger{})
	defer s.Close()

	a := s.Emit("sess-a", entity.EventStageStarted, "credit", nil)
	b := s.Emit("sess-b", entity.EventStageStarted, "credit", nil)

	if a.Sequence != 1 || b.Sequence != 1 {
		t.Errorf("sequences not per-session: a=%d b=%d", a.Sequence, b.Sequence)
	}
}
