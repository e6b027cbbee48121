// Package memory implements the repositories in process. The service tests run
// against it; it keeps the same conflict and not-found semantics as postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// Store holds every table. Its methods satisfy all repository interfaces
// through the typed views returned by Transactions, Listings and the rest.
type Store struct {
	mu            sync.Mutex
	seq           int64
	transactions  map[int64]models.Transaction
	transitions   map[int64][]models.Transition
	listings      map[uuid.UUID]models.Listing
	communities   map[int64]models.Community
	settings      map[int64][]models.PaymentSettings
	processes     map[int64]models.TransactionProcess
	accounts      map[uuid.UUID][]models.SellerAccount
	conversations map[int64]*models.Conversation
	slots         map[int64]models.BookingSlot
}

func NewStore() *Store {
	return &Store{
		transactions:  make(map[int64]models.Transaction),
		transitions:   make(map[int64][]models.Transition),
		listings:      make(map[uuid.UUID]models.Listing),
		communities:   make(map[int64]models.Community),
		settings:      make(map[int64][]models.PaymentSettings),
		processes:     make(map[int64]models.TransactionProcess),
		accounts:      make(map[uuid.UUID][]models.SellerAccount),
		conversations: make(map[int64]*models.Conversation),
		slots:         make(map[int64]models.BookingSlot),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) AddCommunity(c models.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[c.ID] = c
}

func (s *Store) AddPaymentSettings(ps models.PaymentSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[ps.CommunityID] = append(s.settings[ps.CommunityID], ps)
}

func (s *Store) AddProcess(p models.TransactionProcess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[p.ID] = p
}

func (s *Store) AddListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.UUID] = l
}

func (s *Store) AddSellerAccount(a models.SellerAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.PersonID] = append(s.accounts[a.PersonID], a)
}

// Conversation returns a copy of a stored conversation.
func (s *Store) Conversation(id int64) (*models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	cp := *c
	cp.Participants = append([]models.Participation(nil), c.Participants...)
	cp.Messages = append([]models.Message(nil), c.Messages...)
	return &cp, true
}

// Slots returns the held booking slots of a listing.
func (s *Store) Slots(listingID int64) []models.BookingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingSlot
	for _, slot := range s.slots {
		if slot.ListingID == listingID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

type Transactions struct{ s *Store }
type Listings struct{ s *Store }
type Communities struct{ s *Store }
type SellerAccounts struct{ s *Store }
type Conversations struct{ s *Store }
type Bookings struct{ s *Store }

func (s *Store) Transactions() *Transactions     { return &Transactions{s} }
func (s *Store) Listings() *Listings             { return &Listings{s} }
func (s *Store) Communities() *Communities       { return &Communities{s} }
func (s *Store) SellerAccounts() *SellerAccounts { return &SellerAccounts{s} }
func (s *Store) Conversations() *Conversations   { return &Conversations{s} }
func (s *Store) Bookings() *Bookings             { return &Bookings{s} }

func (r *Transactions) Create(_ context.Context, tx *models.Transaction, first *models.Transition) error {
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx.ID = s.nextID()
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.transactions[tx.ID] = *tx
	if first != nil {
		first.TransactionID = tx.ID
		first.ID = s.nextID()
		s.transitions[tx.ID] = append(s.transitions[tx.ID], *first)
	}
	return nil
}

func (r *Transactions) find(match func(models.Transaction) bool) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.transactions {
		if match(tx) {
			return &tx, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (r *Transactions) GetByUUID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.find(func(tx models.Transaction) bool { return tx.UUID == id })
}

func (r *Transactions) GetByChargeID(_ context.Context, gateway models.Gateway, chargeID string) (*models.Transaction, error) {
	if chargeID == "" {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return r.find(func(tx models.Transaction) bool {
		return tx.PaymentGateway == gateway && tx.GatewayChargeID == chargeID
	})
}

func (r *Transactions) UpdateState(_ context.Context, tx *models.Transaction, from models.State, tr *models.Transition) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transactions[tx.ID]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if stored.CurrentState != from {
		return pkgerrors.ErrStateConflict
	}
	stored.CurrentState = tx.CurrentState
	stored.CancelReason = tx.CancelReason
	stored.LastTransitionByAdmin = tx.LastTransitionByAdmin
	stored.LastTransitionAt = tx.LastTransitionAt
	stored.GatewayChargeID = tx.GatewayChargeID
	stored.ApprovalURL = tx.ApprovalURL
	stored.AvailableOn = tx.AvailableOn
	stored.UpdatedAt = time.Now().UTC()
	s.transactions[tx.ID] = stored
	tx.UpdatedAt = stored.UpdatedAt

	tr.TransactionID = tx.ID
	tr.ID = s.nextID()
	s.transitions[tx.ID] = append(s.transitions[tx.ID], *tr)
	return nil
}

func (r *Transactions) update(id int64, fn func(*models.Transaction)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	fn(&tx)
	tx.UpdatedAt = time.Now().UTC()
	r.s.transactions[id] = tx
	return nil
}

func (r *Transactions) SetCharge(_ context.Context, id int64, chargeID, approvalURL string) error {
	return r.update(id, func(tx *models.Transaction) {
		tx.GatewayChargeID = chargeID
		tx.ApprovalURL = approvalURL
	})
}

func (r *Transactions) SetAvailableOn(_ context.Context, id int64, availableOn time.Time) error {
	return r.update(id, func(tx *models.Transaction) { tx.AvailableOn = &availableOn })
}

func (r *Transactions) MarkSeen(_ context.Context, id int64, starter bool, at time.Time) error {
	return r.update(id, func(tx *models.Transaction) {
		if starter {
			tx.StarterSeenAt = &at
		} else {
			tx.AuthorSeenAt = &at
		}
	})
}

func (r *Transactions) Transitions(_ context.Context, id int64) ([]models.Transition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.Transition(nil), r.s.transitions[id]...), nil
}

func (r *Listings) GetByUUID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, pkgerrors.ErrListingNotFound
	}
	return &l, nil
}

func (r *Communities) GetByID(_ context.Context, id int64) (*models.Community, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.communities[id]
	if !ok {
		return nil, pkgerrors.ErrCommunityNotFound
	}
	return &c, nil
}

func (r *Communities) PaymentSettings(_ context.Context, communityID int64) ([]models.PaymentSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentSettings
	for _, ps := range r.s.settings[communityID] {
		if ps.Active {
			out = append(out, ps)
		}
	}
	return out, nil
}

func (r *Communities) GetProcess(_ context.Context, id int64) (*models.TransactionProcess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.processes[id]
	if !ok {
		return nil, pkgerrors.ErrProcessNotFound
	}
	return &p, nil
}

func (r *SellerAccounts) ListByPerson(_ context.Context, personID uuid.UUID) ([]models.SellerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.SellerAccount(nil), r.s.accounts[personID]...), nil
}

func (r *Conversations) Create(_ context.Context, c *models.Conversation) error {
	if !c.StartingPage.Valid() {
		return pkgerrors.ErrInvalidInput
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID()
	c.CreatedAt = time.Now().UTC()
	for i := range c.Messages {
		c.Messages[i].ID = s.nextID()
		c.Messages[i].ConversationID = c.ID
		c.LastMessageAt = c.Messages[i].CreatedAt
	}
	cp := *c
	cp.Participants = append([]models.Participation(nil), c.Participants...)
	cp.Messages = append([]models.Message(nil), c.Messages...)
	s.conversations[c.ID] = &cp
	return nil
}

func (r *Conversations) AppendMessage(_ context.Context, m *models.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return pkgerrors.ErrConversationNotFound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ID = s.nextID()
	c.Messages = append(c.Messages, *m)
	c.LastMessageAt = m.CreatedAt
	for i := range c.Participants {
		at := m.CreatedAt
		p := &c.Participants[i]
		if p.PersonID == m.SenderID {
			p.IsRead = true
			p.LastSentAt = &at
		} else {
			p.IsRead = false
			p.LastReceivedAt = &at
		}
	}
	return nil
}

func (r *Conversations) MarkRead(_ context.Context, conversationID int64, personID uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return pkgerrors.ErrConversationNotFound
	}
	for i := range c.Participants {
		if c.Participants[i].PersonID == personID {
			c.Participants[i].IsRead = true
			return nil
		}
	}
	return pkgerrors.ErrConversationNotFound
}

func (r *Bookings) Overlapping(_ context.Context, listingID int64, startOn, endOn time.Time) ([]models.BookingSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.BookingSlot
	for _, slot := range r.s.slots {
		if slot.ListingID == listingID && slot.Overlaps(startOn, endOn) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (r *Bookings) Hold(_ context.Context, slot *models.BookingSlot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.slots[slot.TransactionID]; !ok {
		r.s.slots[slot.TransactionID] = *slot
	}
	return nil
}

func (r *Bookings) Release(_ context.Context, transactionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.slots, transactionID)
	return nil
}
