// Package repository declares the storage the transaction service depends on.
// Postgres and in-memory implementations live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
)

type TransactionRepository interface {
	// Create stores tx with its first transition and sets ID and timestamps.
	Create(ctx context.Context, tx *models.Transaction, first *models.Transition) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByChargeID(ctx context.Context, gateway models.Gateway, chargeID string) (*models.Transaction, error)
	// UpdateState moves tx out of from and appends the transition. It returns
	// pkgerrors.ErrStateConflict when tx is no longer in from.
	UpdateState(ctx context.Context, tx *models.Transaction, from models.State, tr *models.Transition) error
	SetCharge(ctx context.Context, id int64, chargeID, approvalURL string) error
	SetAvailableOn(ctx context.Context, id int64, availableOn time.Time) error
	Transitions(ctx context.Context, id int64) ([]models.Transition, error)
	MarkSeen(ctx context.Context, id int64, starter bool, at time.Time) error
}

type ListingRepository interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

type CommunityRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Community, error)
	// PaymentSettings returns the active settings rows of a community.
	PaymentSettings(ctx context.Context, communityID int64) ([]models.PaymentSettings, error)
	GetProcess(ctx context.Context, id int64) (*models.TransactionProcess, error)
}

type SellerAccountRepository interface {
	// ListByPerson returns every gateway account of a seller, possibly none.
	ListByPerson(ctx context.Context, personID uuid.UUID) ([]models.SellerAccount, error)
}

type ConversationRepository interface {
	// Create stores the conversation, its participants and any initial messages.
	Create(ctx context.Context, c *models.Conversation) error
	AppendMessage(ctx context.Context, m *models.Message) error
	MarkRead(ctx context.Context, conversationID int64, personID uuid.UUID) error
}

type BookingRepository interface {
	// Overlapping returns held slots on the listing that intersect [startOn, endOn).
	Overlapping(ctx context.Context, listingID int64, startOn, endOn time.Time) ([]models.BookingSlot, error)
	Hold(ctx context.Context, slot *models.BookingSlot) error
	Release(ctx context.Context, transactionID int64) error
}
