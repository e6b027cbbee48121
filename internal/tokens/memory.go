package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// MemoryStore keeps tokens in process. Tokens older than the retention window
// are dropped on the next Create.
type MemoryStore struct {
	mu        sync.Mutex
	tokens    map[uuid.UUID]models.ProcessToken
	retention time.Duration
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{tokens: make(map[uuid.UUID]models.ProcessToken), retention: retention}
}

func (s *MemoryStore) Create(_ context.Context, token *models.ProcessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention > 0 {
		cutoff := token.CreatedAt.Add(-s.retention)
		for k, t := range s.tokens {
			if t.CreatedAt.Before(cutoff) {
				delete(s.tokens, k)
			}
		}
	}
	s.tokens[token.Token] = *token
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, token uuid.UUID, result models.ProcessResult, at time.Time) (*models.ProcessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, pkgerrors.ErrTokenNotFound
	}
	if !t.Completed {
		t.Completed = true
		t.Result = &result
		t.CompletedAt = &at
		s.tokens[token] = t
	}
	return &t, nil
}

func (s *MemoryStore) Get(_ context.Context, token uuid.UUID) (*models.ProcessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, pkgerrors.ErrTokenNotFound
	}
	return &t, nil
}
