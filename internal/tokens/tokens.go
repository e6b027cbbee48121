// Package tokens tracks asynchronous payment operations by opaque process token.
// A token completes once; later completions return the stored result.
package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
)

// Store persists process tokens. Complete must be write-once: when the token is
// already completed it returns the stored token untouched.
// Get and Complete return pkgerrors.ErrTokenNotFound for unknown tokens.
type Store interface {
	Create(ctx context.Context, token *models.ProcessToken) error
	Complete(ctx context.Context, token uuid.UUID, result models.ProcessResult, at time.Time) (*models.ProcessToken, error)
	Get(ctx context.Context, token uuid.UUID) (*models.ProcessToken, error)
}

type Status struct {
	Completed bool                  `json:"completed"`
	Result    *models.ProcessResult `json:"result,omitempty"`
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

func (t *Tracker) Create(ctx context.Context, transactionID uuid.UUID, op models.TokenOp) (*models.ProcessToken, error) {
	token := &models.ProcessToken{
		Token:         uuid.New(),
		TransactionID: transactionID,
		Op:            op,
		CreatedAt:     t.now().UTC(),
	}
	if err := t.store.Create(ctx, token); err != nil {
		slog.Error("failed to create process token", "transaction_id", transactionID, "op", op, "error", err)
		return nil, fmt.Errorf("failed to create process token: %w", err)
	}
	slog.Info("process token created", "token", token.Token, "transaction_id", transactionID, "op", op)
	return token, nil
}

func (t *Tracker) Complete(ctx context.Context, token uuid.UUID, result models.ProcessResult) (*models.ProcessToken, error) {
	stored, err := t.store.Complete(ctx, token, result, t.now().UTC())
	if err != nil {
		slog.Error("failed to complete process token", "token", token, "error", err)
		return nil, fmt.Errorf("failed to complete process token: %w", err)
	}
	slog.Info("process token completed", "token", token, "success", stored.Result.Success, "reason", stored.Result.Reason)
	return stored, nil
}

// GetStatus returns pkgerrors.ErrTokenNotFound (wrapped) for unknown tokens.
func (t *Tracker) GetStatus(ctx context.Context, token uuid.UUID) (Status, error) {
	stored, err := t.store.Get(ctx, token)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get process token: %w", err)
	}
	return Status{Completed: stored.Completed, Result: stored.Result}, nil
}
