package service

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/lock"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/notify"
	"github.com/honeynil/marketplace-tx/internal/process"
	"github.com/honeynil/marketplace-tx/internal/repository"
	"github.com/honeynil/marketplace-tx/internal/statemachine"
	"github.com/honeynil/marketplace-tx/internal/tokens"
	"github.com/honeynil/marketplace-tx/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TransactionService interface {
	CreateTransaction(ctx context.Context, params CreateParams) (*models.Transaction, error)
	FinalizeTransaction(ctx context.Context, txUUID uuid.UUID, actor models.Actor, forceSync bool) (*FinalizeResult, error)
	GetAsyncStatus(ctx context.Context, token uuid.UUID) (tokens.Status, error)
	Transition(ctx context.Context, txUUID uuid.UUID, action models.Action, actor models.Actor) (*models.Transaction, error)
	HandleWebhook(ctx context.Context, gatewayName models.Gateway, r *http.Request, body []byte) error
	ProcessJob(ctx context.Context, job jobs.Job) error
	MarkSeen(ctx context.Context, txUUID uuid.UUID, personID uuid.UUID) error
	PostingStatus(ctx context.Context, listingUUID uuid.UUID, actor models.Actor) (process.PostingStatus, error)
}

// Deduplicator remembers processed event ids; redis.Deduplicator satisfies it.
type Deduplicator interface {
	Seen(ctx context.Context, source, eventID string) (bool, error)
	Forget(ctx context.Context, source, eventID string) error
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type Repositories struct {
	Transactions   repository.TransactionRepository
	Listings       repository.ListingRepository
	Communities    repository.CommunityRepository
	SellerAccounts repository.SellerAccountRepository
	Conversations  repository.ConversationRepository
	Bookings       repository.BookingRepository
}

type Config struct {
	Horizons validation.Horizons
	// PayoutDelay is the minimum time between completion and a delayed payout.
	PayoutDelay time.Duration
	// DelayedPayoutModes lists the Stripe charge modes whose payouts wait for
	// the funds to settle. Other modes pay out as soon as the job runs.
	DelayedPayoutModes []models.ChargesMode
	// AutoCompleteAfter applies when the payment settings carry no
	// confirmation_after_days.
	AutoCompleteAfter time.Duration
	// AsyncTimeout bounds a background finalization.
	AsyncTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Horizons:           validation.DefaultHorizons,
		PayoutDelay:        7 * 24 * time.Hour,
		DelayedPayoutModes: []models.ChargesMode{models.ChargesModeSeparate},
		AutoCompleteAfter:  14 * 24 * time.Hour,
		AsyncTimeout:       time.Minute,
	}
}

type transactionService struct {
	repos    Repositories
	tokens   *tokens.Tracker
	gateways *gateway.Registry
	locker   lock.Locker
	dedup    Deduplicator
	jobs     jobs.Queue
	notifier Notifier
	cfg      Config
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewTransactionService(
	repos Repositories,
	tracker *tokens.Tracker,
	gateways *gateway.Registry,
	locker lock.Locker,
	dedup Deduplicator,
	queue jobs.Queue,
	notifier Notifier,
	cfg Config,
) *transactionService {
	return &transactionService{
		repos:    repos,
		tokens:   tracker,
		gateways: gateways,
		locker:   locker,
		dedup:    dedup,
		jobs:     queue,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Wait blocks until background finalizations finish.
func (s *transactionService) Wait() {
	s.wg.Wait()
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("transaction-service").Start(ctx, name)
}

func fail(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// settingsFor loads the community's preauthorize payment settings keyed by gateway.
func (s *transactionService) settingsFor(ctx context.Context, communityID int64) (process.Settings, error) {
	rows, err := s.repos.Communities.PaymentSettings(ctx, communityID)
	if err != nil {
		return nil, err
	}
	settings := make(process.Settings, len(rows))
	for i := range rows {
		if rows[i].Process == models.ProcessPreauthorize {
			settings[rows[i].Gateway] = &rows[i]
		}
	}
	return settings, nil
}

func (s *transactionService) accountsFor(ctx context.Context, personID uuid.UUID) (process.Accounts, error) {
	rows, err := s.repos.SellerAccounts.ListByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	accounts := make(process.Accounts, len(rows))
	for i := range rows {
		accounts[rows[i].Gateway] = &rows[i]
	}
	return accounts, nil
}

// resolve returns the payment process a listing runs under.
func (s *transactionService) resolve(ctx context.Context, community *models.Community, listing *models.Listing) (process.Resolution, error) {
	proc, err := s.repos.Communities.GetProcess(ctx, listing.TransactionProcessID)
	if err != nil {
		return process.Resolution{}, err
	}
	types, err := process.TypesOf(community.ActivePaymentTypes)
	if err != nil {
		return process.Resolution{}, err
	}
	return process.Resolve(types, proc.Process)
}

// roleOf is the role actor plays for action on tx. A participant acts in their
// own role when it allows the action; admins fall back to RoleAdmin.
func roleOf(tx *models.Transaction, community *models.Community, actor models.Actor, action models.Action) (models.Role, bool) {
	if actor.IsSystem() {
		return models.RoleSystem, true
	}
	var role models.Role
	switch actor.ID {
	case tx.ListingAuthorID:
		role = models.RoleSeller
	case tx.StarterID:
		role = models.RoleBuyer
	}
	admin := actor.Admin || slices.Contains(community.AdminIDs, actor.ID)
	if role != "" && (!admin || statemachine.Authorized(role, action, tx.CurrentState)) {
		return role, true
	}
	if admin {
		return models.RoleAdmin, true
	}
	return "", false
}
