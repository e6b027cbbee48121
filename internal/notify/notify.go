// Package notify publishes transaction notifications for the mailer. Delivery
// is fire-and-forget: failures are logged and never affect the transaction.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
)

// Sender is the transport; kafka.Producer satisfies it.
type Sender interface {
	Send(ctx context.Context, topic, key string, value []byte) error
}

type Event struct {
	Type        models.EventType
	Transaction *models.Transaction
	Recipients  []models.Role
	// AdminIDs resolves RoleAdmin recipients.
	AdminIDs []uuid.UUID
	Message  string
}

type Recipient struct {
	Role     models.Role `json:"role"`
	PersonID uuid.UUID   `json:"person_id"`
}

// Message is the payload written to the notifications topic.
type Message struct {
	Type          models.EventType `json:"type"`
	TransactionID uuid.UUID        `json:"transaction_id"`
	ListingID     uuid.UUID        `json:"listing_id"`
	ListingTitle  string           `json:"listing_title"`
	State         models.State     `json:"state"`
	Recipients    []Recipient      `json:"recipients"`
	Total         string           `json:"total,omitempty"`
	Text          string           `json:"text,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

type Notifier struct {
	sender  Sender
	topic   string
	retries int
	backoff time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewNotifier(sender Sender, topic string) *Notifier {
	return &Notifier{sender: sender, topic: topic, retries: 3, backoff: time.Second, now: time.Now}
}

// Recipients maps roles to the people of a transaction.
func Recipients(tx *models.Transaction, roles []models.Role, adminIDs []uuid.UUID) []Recipient {
	var out []Recipient
	seen := make(map[uuid.UUID]bool)
	add := func(role models.Role, id uuid.UUID) {
		if id == uuid.Nil || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Recipient{Role: role, PersonID: id})
	}
	for _, role := range roles {
		switch role {
		case models.RoleBuyer:
			add(role, tx.StarterID)
		case models.RoleSeller:
			add(role, tx.ListingAuthorID)
		case models.RoleAdmin:
			for _, id := range adminIDs {
				add(role, id)
			}
		}
	}
	return out
}

// Notify publishes in the background, retrying a few times.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if ev.Transaction == nil {
		return
	}
	msg := Message{
		Type:          ev.Type,
		TransactionID: ev.Transaction.UUID,
		ListingID:     ev.Transaction.ListingUUID,
		ListingTitle:  ev.Transaction.ListingTitle,
		State:         ev.Transaction.CurrentState,
		Recipients:    Recipients(ev.Transaction, ev.Recipients, ev.AdminIDs),
		Text:          ev.Message,
		OccurredAt:    n.now().UTC(),
	}
	if ev.Transaction.PaymentProcess != models.ProcessNone {
		msg.Total = ev.Transaction.Total().String()
	}
	if len(msg.Recipients) == 0 {
		slog.Debug("notification without recipients skipped", "type", ev.Type, "transaction_id", msg.TransactionID)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal notification", "type", ev.Type, "transaction_id", msg.TransactionID, "error", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for i := 0; i < n.retries; i++ {
			if err := n.sender.Send(ctx, n.topic, msg.TransactionID.String(), data); err == nil {
				slog.Info("notification sent", "type", msg.Type, "transaction_id", msg.TransactionID, "recipients", len(msg.Recipients))
				return
			}
			time.Sleep(n.backoff * time.Duration(i+1))
		}
		slog.Error("failed to send notification after retries", "type", msg.Type, "transaction_id", msg.TransactionID)
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
