package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps accounts in process. Used in dev mode and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	byID         map[string]Account
	byIdentifier map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:         make(map[string]Account),
		byIdentifier: make(map[string]string),
	}
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) FindByIdentifier(_ context.Context, identifier string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	a := s.byID[id]
	return &a, nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.byID {
		if a.Email != "" && strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	if err := Validate(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a.OpenIDIdentifier != "" {
		if _, taken := s.byIdentifier[a.OpenIDIdentifier]; taken {
			return ErrDuplicateIdentifier
		}
	}

	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.byID[a.ID] = *a
	if a.OpenIDIdentifier != "" {
		s.byIdentifier[a.OpenIDIdentifier] = a.ID
	}
	return nil
}

func (s *MemoryStore) UpdateIdentifier(_ context.Context, id string, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.byIdentifier[identifier]; taken && owner != id {
		return ErrDuplicateIdentifier
	}

	delete(s.byIdentifier, a.OpenIDIdentifier)
	a.OpenIDIdentifier = identifier
	a.UpdatedAt = time.Now().UTC()
	s.byID[id] = a
	s.byIdentifier[identifier] = id
	return nil
}

// Len reports how many accounts are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
