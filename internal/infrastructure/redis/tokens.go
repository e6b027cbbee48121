package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const maxTokenRetries = 5

// TokenStore keeps process tokens as JSON with a retention TTL. Completion is
// write-once under WATCH.
type TokenStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewTokenStore(client redis.UniversalClient, retention time.Duration) *TokenStore {
	return &TokenStore{client: client, retention: retention}
}

func tokenKey(token uuid.UUID) string {
	return "process_token:" + token.String()
}

func (s *TokenStore) Create(ctx context.Context, token *models.ProcessToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal process token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(token.Token), data, s.retention).Err(); err != nil {
		slog.Error("failed to store process token", "token", token.Token, "error", err)
		return fmt.Errorf("failed to store process token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, token uuid.UUID) (*models.ProcessToken, error) {
	return s.get(ctx, s.client, token)
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *TokenStore) get(ctx context.Context, c getter, token uuid.UUID) (*models.ProcessToken, error) {
	data, err := c.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, pkgerrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process token: %w", err)
	}
	var t models.ProcessToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal process token: %w", err)
	}
	return &t, nil
}

func (s *TokenStore) Complete(ctx context.Context, token uuid.UUID, result models.ProcessResult, at time.Time) (*models.ProcessToken, error) {
	key := tokenKey(token)
	var stored *models.ProcessToken

	txf := func(tx *redis.Tx) error {
		t, err := s.get(ctx, tx, token)
		if err != nil {
			return err
		}
		if t.Completed {
			stored = t
			return nil
		}
		t.Completed = true
		t.Result = &result
		t.CompletedAt = &at
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal process token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			stored = t
		}
		return err
	}

	for i := 0; i < maxTokenRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, pkgerrors.ErrTokenNotFound) {
			return nil, err
		}
		slog.Error("failed to complete process token", "token", token, "error", err)
		return nil, fmt.Errorf("failed to complete process token: %w", err)
	}
	return nil, fmt.Errorf("failed to complete process token: %w", redis.TxFailedErr)
}
