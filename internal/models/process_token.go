package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenOp is the asynchronous operation a process token tracks.
type TokenOp string

const (
	TokenOpFinalize TokenOp = "finalize"
)

type ProcessResult struct {
	Success         bool      `json:"success"`
	TransactionUUID uuid.UUID `json:"transaction_id"`
	Reason          string    `json:"reason,omitempty"`
	RedirectURL     string    `json:"redirect_url,omitempty"`
}

// ProcessToken tracks one in-flight asynchronous operation. Result is set
// exactly once, together with Completed.
type ProcessToken struct {
	Token         uuid.UUID      `json:"token"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	Op            TokenOp        `json:"op"`
	Completed     bool           `json:"completed"`
	Result        *ProcessResult `json:"result,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}
