package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/cache"
)

// CacheStore keeps sessions as JSON in a cache backend, keyed by id and
// expiring with the session.
type CacheStore struct {
	cache  cache.Cache
	prefix string
}

func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{
		cache:  c,
		prefix: "session:",
	}
}

func (s *CacheStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *CacheStore) Create(ctx context.Context, sess Session) error {
	if sess.SessionID == "" || sess.UserID == "" {
		return fmt.Errorf("session: missing session_id or user_id")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	return s.put(ctx, sess, ttl)
}

func (s *CacheStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	b, err := s.cache.Get(ctx, s.key(sessionID))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *CacheStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, s.key(sessionID))
}

func (s *CacheStore) Update(ctx context.Context, sess Session) error {
	if sess.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		// expired: drop instead of extending
		return s.Delete(ctx, sess.SessionID)
	}
	return s.put(ctx, sess, ttl)
}

func (s *CacheStore) put(ctx context.Context, sess Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return s.cache.Set(ctx, s.key(sess.SessionID), data, ttl)
}
