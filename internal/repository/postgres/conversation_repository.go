package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const conversationTracer = "conversation-repository"

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, c *models.Conversation) (err error) {
	ctx, done := observe(ctx, conversationTracer, "CreateConversation", attribute.Int64("listing_id", c.ListingID))
	defer done(&err)

	if !c.StartingPage.Valid() {
		err = fmt.Errorf("%w: starting page %q", pkgerrors.ErrInvalidInput, c.StartingPage)
		slog.Error("invalid conversation", "method", "Create", "error", err)
		return err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var lastMessageAt sql.NullTime
	if n := len(c.Messages); n > 0 {
		lastMessageAt = sql.NullTime{Time: c.Messages[n-1].CreatedAt, Valid: true}
	}
	query := `INSERT INTO conversations (community_id, listing_id, starting_page, last_message_at) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err = dbTx.QueryRowContext(ctx, query, c.CommunityID, c.ListingID, c.StartingPage, lastMessageAt).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		err = rollback(dbTx, "Create", err)
		slog.Error("failed to create conversation", "method", "Create", "listing_id", c.ListingID, "error", err)
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, p := range c.Participants {
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO participations (conversation_id, person_id, is_starter, is_read, last_sent_at, last_received_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, p.PersonID, p.IsStarter, p.IsRead, nullTime(p.LastSentAt), nullTime(p.LastReceivedAt))
		if err != nil {
			err = rollback(dbTx, "Create", err)
			slog.Error("failed to add participant", "method", "Create", "conversation_id", c.ID, "error", err)
			return fmt.Errorf("failed to add participant: %w", err)
		}
	}

	for i := range c.Messages {
		m := &c.Messages[i]
		m.ConversationID = c.ID
		err = dbTx.QueryRowContext(ctx,
			`INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			m.ConversationID, m.SenderID, m.Content, m.CreatedAt).Scan(&m.ID)
		if err != nil {
			err = rollback(dbTx, "Create", err)
			slog.Error("failed to add message", "method", "Create", "conversation_id", c.ID, "error", err)
			return fmt.Errorf("failed to add message: %w", err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("conversation created", "method", "Create", "conversation_id", c.ID, "listing_id", c.ListingID, "starting_page", c.StartingPage)
	return nil
}

// AppendMessage stores the message and updates both participations: the sender
// has read it, everyone else has not.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *models.Message) (err error) {
	ctx, done := observe(ctx, conversationTracer, "AppendMessage", attribute.Int64("conversation_id", m.ConversationID))
	defer done(&err)

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "AppendMessage", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = dbTx.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		m.ConversationID, m.SenderID, m.Content, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		err = rollback(dbTx, "AppendMessage", err)
		slog.Error("failed to add message", "method", "AppendMessage", "conversation_id", m.ConversationID, "error", err)
		return fmt.Errorf("failed to add message: %w", err)
	}

	steps := []struct {
		query string
		args  []any
	}{
		{`UPDATE conversations SET last_message_at = $1 WHERE id = $2`, []any{m.CreatedAt, m.ConversationID}},
		{`UPDATE participations SET is_read = TRUE, last_sent_at = $1 WHERE conversation_id = $2 AND person_id = $3`, []any{m.CreatedAt, m.ConversationID, m.SenderID}},
		{`UPDATE participations SET is_read = FALSE, last_received_at = $1 WHERE conversation_id = $2 AND person_id <> $3`, []any{m.CreatedAt, m.ConversationID, m.SenderID}},
	}
	for _, step := range steps {
		if _, err = dbTx.ExecContext(ctx, step.query, step.args...); err != nil {
			err = rollback(dbTx, "AppendMessage", err)
			slog.Error("failed to update conversation", "method", "AppendMessage", "conversation_id", m.ConversationID, "error", err)
			return fmt.Errorf("failed to update conversation: %w", err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "AppendMessage", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID int64, personID uuid.UUID) (err error) {
	ctx, done := observe(ctx, conversationTracer, "MarkConversationRead", attribute.Int64("conversation_id", conversationID))
	defer done(&err)

	res, err := r.db.ExecContext(ctx,
		`UPDATE participations SET is_read = TRUE WHERE conversation_id = $1 AND person_id = $2`,
		conversationID, personID)
	if err != nil {
		slog.Error("failed to mark conversation read", "method", "MarkRead", "conversation_id", conversationID, "error", err)
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrConversationNotFound
	}
	return nil
}
