package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/pkg/logger"
)

// completedGrace is how long a terminal session stays retrievable before
// reclamation.
const completedGrace = 5 * time.Minute

// SessionStore owns every in-flight session, its expiration, and its
// concurrency contract: all mutation of a session's mutable fields goes
// through Mutate, which holds an exclusive per-session lock. Different
// sessions proceed fully in parallel.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	logger logger.ILogger
	stop   chan struct{}
	once   sync.Once

	// onReclaim, when set, is notified after the sweep discards a session so
	// collaborators holding per-session state (the event stream) release it.
	onReclaim func(id string)
}

func NewSessionStore(ttl, sweepInterval time.Duration, log logger.ILogger) *SessionStore {
	// Expiry is enforced by our own sweep so that reclamation can take the
	// per-session lock first; go-cache's janitor is disabled.
	s := &SessionStore{
		cache:  cache.New(cache.NoExpiration, 0),
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
		logger: log,
		stop:   make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// SetReclaimHook registers the callback invoked with the id of every session
// the sweep reclaims.
func (s *SessionStore) SetReclaimHook(hook func(id string)) {
	s.onReclaim = hook
}

// Create registers a fresh session in COLLECTING and returns a snapshot.
func (s *SessionStore) Create() *entity.Session {
	now := time.Now()
	sess := &entity.Session{
		Id:             uuid.New(),
		Phase:          entity.PhaseCollecting,
		WorkingRecord:  make(map[string]interface{}),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.ttl),
	}
	s.cache.Set(sess.Id.String(), sess, cache.NoExpiration)
	s.logger.Info("SessionStore", "Session created", map[string]interface{}{"session_id": sess.Id})
	return sess.Clone()
}

// Get returns a read snapshot. Expired or reclaimed sessions are reported as
// not found, never as a stale object.
func (s *SessionStore) Get(id string) (*entity.Session, error) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, errs.ErrSessionNotFound
	}
	sess := x.(*entity.Session)
	if time.Now().After(sess.ExpiresAt) {
		return nil, errs.ErrSessionExpired
	}
	return sess.Clone(), nil
}

// Mutate applies fn to the session under its exclusive lock and persists the
// result. It fails with Conflict if the session was reclaimed between the
// caller's read and the lock acquisition.
func (s *SessionStore) Mutate(id string, fn func(*entity.Session) error) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	x, found := s.cache.Get(id)
	if !found {
		return errs.ErrConflict
	}
	sess := x.(*entity.Session)
	if time.Now().After(sess.ExpiresAt) {
		return errs.ErrSessionExpired
	}

	if err := fn(sess); err != nil {
		var invalid *errs.InvalidTransitionError
		if errors.As(err, &invalid) && !sess.Terminal() {
			// An illegal edge at runtime means the session state can no longer
			// be trusted; force it to ERROR instead of leaving it wedged.
			sess.Phase = entity.PhaseError
			sess.LastActivityAt = time.Now()
			sess.ExpiresAt = sess.LastActivityAt.Add(completedGrace)
			s.cache.Set(id, sess, cache.NoExpiration)
			s.logger.Error("SessionStore", "Illegal transition forced session to ERROR", map[string]interface{}{
				"session_id": id,
				"error":      invalid.Error(),
			})
		}
		return err
	}

	sess.LastActivityAt = time.Now()
	if sess.Terminal() {
		sess.ExpiresAt = sess.LastActivityAt.Add(completedGrace)
	} else {
		sess.ExpiresAt = sess.LastActivityAt.Add(s.ttl)
	}
	s.cache.Set(id, sess, cache.NoExpiration)
	return nil
}

// Touch extends the session's expiry without mutating its record. Used by
// heartbeats during slow collection.
func (s *SessionStore) Touch(id string) error {
	return s.Mutate(id, func(*entity.Session) error { return nil })
}

// Remove discards the session immediately (client cancellation during
// collection).
func (s *SessionStore) Remove(id string) {
	lock := s.lockFor(id)
	lock.Lock()
	s.cache.Delete(id)
	lock.Unlock()

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// Close stops the background sweep.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *SessionStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// sweep reclaims idle sessions. It takes the same per-session lock Mutate
// uses, so reclamation never races an in-flight mutation.
func (s *SessionStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for id, item := range s.cache.Items() {
				sess := item.Object.(*entity.Session)
				if time.Now().Before(sess.ExpiresAt) {
					continue
				}
				lock := s.lockFor(id)
				lock.Lock()
				reclaimed := false
				// Re-check after acquiring: a mutate may have extended it.
				if x, found := s.cache.Get(id); found {
					cur := x.(*entity.Session)
					if time.Now().After(cur.ExpiresAt) {
						s.cache.Delete(id)
						reclaimed = true
						s.logger.Info("SessionStore", "Session reclaimed", map[string]interface{}{
							"session_id": id,
							"phase":      cur.Phase,
						})
					}
				}
				lock.Unlock()
				if reclaimed {
					s.mu.Lock()
					delete(s.locks, id)
					s.mu.Unlock()
					if s.onReclaim != nil {
						s.onReclaim(id)
					}
				}
			}
		}
	}
}

// IsNotFound reports whether err maps to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, errs.ErrSessionNotFound) || errors.Is(err, errs.ErrSessionExpired)
}
