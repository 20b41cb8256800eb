package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/logger"
)

// Stream carries pipeline progress events from the runner to at most one
// subscriber per session. Each session gets its own persistent watermill
// gochannel, so a subscriber attaching after processing started still
// receives the full ordered history and can detect gaps by sequence number.
// Forget closes the session's channel and releases that history; the store's
// reclamation sweep calls it so stream state never outlives the session.
//
// Second-subscriber policy: take over. A new subscription closes the previous
// one instead of being rejected, so a reconnecting client always wins.
type Stream struct {
	logger logger.ILogger
	buffer int

	mu     sync.Mutex
	chans  map[string]*sessionChannel
	active map[string]*subscription
}

// sessionChannel is one session's bus plus its sequence counter.
type sessionChannel struct {
	bus *gochannel.GoChannel
	seq uint64
}

type subscription struct {
	cancel context.CancelFunc
}

func NewStream(buffer int, log logger.ILogger) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{
		logger: log,
		buffer: buffer,
		chans:  make(map[string]*sessionChannel),
		active: make(map[string]*subscription),
	}
}

func topic(sessionID string) string {
	return "session.events." + sessionID
}

// channelForLocked returns the session's channel, creating it on first use.
// Callers hold s.mu.
func (s *Stream) channelForLocked(sessionID string) *sessionChannel {
	if sc, ok := s.chans[sessionID]; ok {
		return sc
	}
	sc := &sessionChannel{
		bus: gochannel.NewGoChannel(
			gochannel.Config{
				Persistent:          true,
				OutputChannelBuffer: int64(s.buffer),
			},
			watermill.NewStdLogger(false, false),
		),
	}
	s.chans[sessionID] = sc
	return sc
}

// Emit publishes one event on the session's stream, assigning the next
// sequence number. Sequence numbers are strictly increasing per session and
// never reused for the session's lifetime.
func (s *Stream) Emit(sessionID string, evType entity.EventType, stage string, payload map[string]interface{}) entity.Event {
	s.mu.Lock()
	sc := s.channelForLocked(sessionID)
	sc.seq++
	seq := sc.seq
	bus := sc.bus
	s.mu.Unlock()

	ev := entity.Event{
		SessionID: sessionID,
		Sequence:  seq,
		Type:      evType,
		Stage:     stage,
		Payload:   payload,
		EmittedAt: time.Now(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Stream", "Event marshal failed", map[string]interface{}{"error": err.Error()})
		return ev
	}
	if err := bus.Publish(topic(sessionID), message.NewMessage(watermill.NewUUID(), data)); err != nil {
		s.logger.Error("Stream", "Event publish failed", map[string]interface{}{
			"session_id": sessionID,
			"sequence":   seq,
			"error":      err.Error(),
		})
	}
	return ev
}

// Subscribe attaches the single subscriber for a session and returns an
// ordered event channel plus a cancel function. Delivery applies a bounded
// buffer with drop-oldest back-pressure; a consumer that falls behind loses
// the oldest undelivered events and can see the gap in the sequence numbers.
func (s *Stream) Subscribe(ctx context.Context, sessionID string) (<-chan entity.Event, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.active[sessionID]; ok {
		prev.cancel()
		s.logger.Info("Stream", "Subscriber taken over", map[string]interface{}{"session_id": sessionID})
	}
	sub := &subscription{cancel: cancel}
	s.active[sessionID] = sub
	bus := s.channelForLocked(sessionID).bus
	s.mu.Unlock()

	msgs, err := bus.Subscribe(subCtx, topic(sessionID))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan entity.Event, s.buffer)
	go s.pump(subCtx, sessionID, msgs, out)

	release := func() {
		cancel()
		s.mu.Lock()
		if existing, ok := s.active[sessionID]; ok && existing == sub {
			delete(s.active, sessionID)
		}
		s.mu.Unlock()
	}
	return out, release, nil
}

// pump forwards bus messages to the subscriber channel in order, enforcing
// that no event with a sequence number at or below one already delivered ever
// goes out again.
func (s *Stream) pump(ctx context.Context, sessionID string, msgs <-chan *message.Message, out chan entity.Event) {
	defer close(out)
	var lastDelivered uint64

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev entity.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				s.logger.Warn("Stream", "Dropping malformed event", map[string]interface{}{"error": err.Error()})
				msg.Ack()
				continue
			}
			msg.Ack()

			if ev.Sequence <= lastDelivered {
				continue
			}

			select {
			case out <- ev:
				lastDelivered = ev.Sequence
			default:
				// Slow consumer: drop the oldest buffered event to make room.
				select {
				case <-out:
				default:
				}
				select {
				case out <- ev:
					lastDelivered = ev.Sequence
				default:
				}
			}

			if ev.Type == entity.EventTerminal {
				return
			}
		}
	}
}

// Forget tears down a session's stream: its subscription is cancelled, its
// channel closed, and its event history and sequence counter released. Called
// on client cancellation and by the store when a session is reclaimed.
func (s *Stream) Forget(sessionID string) {
	s.mu.Lock()
	if sub, ok := s.active[sessionID]; ok {
		sub.cancel()
		delete(s.active, sessionID)
	}
	sc, ok := s.chans[sessionID]
	if ok {
		delete(s.chans, sessionID)
	}
	s.mu.Unlock()

	if ok {
		if err := sc.bus.Close(); err != nil {
			s.logger.Warn("Stream", "Channel close failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	chans := make([]*sessionChannel, 0, len(s.chans))
	for id, sc := range s.chans {
		chans = append(chans, sc)
		delete(s.chans, id)
	}
	for id, sub := range s.active {
		sub.cancel()
		delete(s.active, id)
	}
	s.mu.Unlock()

	var firstErr error
	for _, sc := range chans {
		if err := sc.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
