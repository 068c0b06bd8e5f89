package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wellnessai/agent-backend/internal/logger"
)

type liveSession struct {
	session   Session
	expiresAt time.Time
}

// inProcStore keeps sessions in process memory. Expired sessions are
// evicted lazily on the next touch; there is no background sweeper.
type inProcStore struct {
	log        *logger.Logger
	mu         sync.Mutex
	sessions   map[string]*liveSession
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

func NewInProcStore(baseLog *logger.Logger, maxEntries int, ttl time.Duration) Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &inProcStore{
		log:        baseLog.With("service", "SessionMemory"),
		sessions:   make(map[string]*liveSession),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// liveLocked returns the session if it has not expired, evicting it
// otherwise. Callers hold mu.
func (s *inProcStore) liveLocked(userID string) *liveSession {
	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, userID)
		return nil
	}
	return sess
}

func (s *inProcStore) Get(_ context.Context, userID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(userID)
	if sess == nil {
		return Session{}, false, nil
	}
	sess.expiresAt = s.now().Add(s.ttl)

	out := Session{
		Entries:    make([]Entry, len(sess.session.Entries)),
		LastIntent: sess.session.LastIntent,
	}
	copy(out.Entries, sess.session.Entries)
	return out, true, nil
}

func (s *inProcStore) Append(_ context.Context, userID string, entry Entry, lastIntent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(userID)
	if sess == nil {
		sess = &liveSession{}
		s.sessions[userID] = sess
	}

	sess.session.Entries = append(sess.session.Entries, entry)
	if n := len(sess.session.Entries); n > s.maxEntries {
		sess.session.Entries = sess.session.Entries[n-s.maxEntries:]
	}
	if lastIntent != "" {
		sess.session.LastIntent = lastIntent
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *inProcStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
