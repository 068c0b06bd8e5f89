package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wellnessai/agent-backend/internal/logger"
)

// redisStore keeps sessions in Redis, for deployments with more than
// one replica. The idle TTL rides on the key's native expiry; Redis
// does the eviction.
type redisStore struct {
	log        *logger.Logger
	client     *redis.Client
	maxEntries int
	ttl        time.Duration
}

func NewRedisStore(baseLog *logger.Logger, client *redis.Client, maxEntries int, ttl time.Duration) Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{
		log:        baseLog.With("service", "SessionMemory"),
		client:     client,
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func sessionKey(userID string) string {
	return "session:" + userID
}

func (s *redisStore) Get(ctx context.Context, userID string) (Session, bool, error) {
	sess, found, err := s.read(ctx, userID)
	if err != nil || !found {
		return Session{}, false, err
	}
	// Slide the idle window on read as well.
	if err := s.client.Expire(ctx, sessionKey(userID), s.ttl).Err(); err != nil {
		s.log.Warn("failed to refresh session ttl", "error", err)
	}
	return sess, true, nil
}

func (s *redisStore) Append(ctx context.Context, userID string, entry Entry, lastIntent string) error {
	sess, _, err := s.read(ctx, userID)
	if err != nil {
		return err
	}

	sess.Entries = append(sess.Entries, entry)
	if n := len(sess.Entries); n > s.maxEntries {
		sess.Entries = sess.Entries[n-s.maxEntries:]
	}
	if lastIntent != "" {
		sess.LastIntent = lastIntent
	}

	encoded, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func (s *redisStore) read(ctx context.Context, userID string) (Session, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// Treat a corrupt value like an expired session.
		s.log.Warn("stored session is not valid JSON, resetting", "error", err)
		return Session{}, false, nil
	}
	return sess, true, nil
}
