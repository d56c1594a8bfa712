package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: not found")

// Session represents an authenticated user session.
// It stores only identity pointers, not provider state.
type Session struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"` // references accounts.id
	RememberMe bool      `json:"remember_me"`
	ExpiresAt  time.Time `json:"expires_at"` // absolute expiry time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Lifetimes picks the session length from the remember-me flag.
type Lifetimes struct {
	TTL         time.Duration
	RememberTTL time.Duration
}

func (l Lifetimes) For(rememberMe bool) time.Duration {
	if rememberMe && l.RememberTTL > 0 {
		return l.RememberTTL
	}
	return l.TTL
}

// Start creates and stores a new session for userID.
func Start(ctx context.Context, store Store, userID string, rememberMe bool, l Lifetimes) (Session, error) {
	id, err := GenerateID()
	if err != nil {
		return Session{}, err
	}
	s := Session{
		SessionID:  id,
		UserID:     userID,
		RememberMe: rememberMe,
		ExpiresAt:  time.Now().Add(l.For(rememberMe)),
	}
	if err := store.Create(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}
