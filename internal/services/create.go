package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/notify"
	"github.com/honeynil/marketplace-tx/internal/pricing"
	"github.com/honeynil/marketplace-tx/internal/process"
	"github.com/honeynil/marketplace-tx/internal/statemachine"
	"github.com/honeynil/marketplace-tx/internal/validation"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

type CreateParams struct {
	ListingUUID uuid.UUID `json:"listing_id"`
	StarterID   uuid.UUID `json:"-"`
	// StarterAdmin is set for platform administrators.
	StarterAdmin bool `json:"-"`
	Quantity int `json:"quantity"`
	// StartOn and EndOn are calendar dates for day and night bookings.
	StartOn *time.Time `json:"start_on,omitempty"`
	EndOn   *time.Time `json:"end_on,omitempty"`
	// StartTime and EndTime are set for per-hour bookings.
	StartTime       *time.Time      `json:"start_time,omitempty"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	Delivery        models.Delivery `json:"delivery,omitempty"`
	ContractAgreed  bool            `json:"contract_agreed"`
	Message         string          `json:"message,omitempty"`
	Gateway         models.Gateway  `json:"payment_type,omitempty"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	ReturnURL       string          `json:"return_url,omitempty"`
	CancelURL       string          `json:"cancel_url,omitempty"`
}

func (s *transactionService) CreateTransaction(ctx context.Context, params CreateParams) (*models.Transaction, error) {
	ctx, span := startSpan(ctx, "CreateTransaction")
	defer span.End()

	listing, err := s.repos.Listings.GetByUUID(ctx, params.ListingUUID)
	if err != nil {
		fail(span, err, "listing lookup failed")
		slog.Error("failed to get listing", "listing_id", params.ListingUUID, "error", err)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	community, err := s.repos.Communities.GetByID(ctx, listing.CommunityID)
	if err != nil {
		fail(span, err, "community lookup failed")
		slog.Error("failed to get community", "community_id", listing.CommunityID, "error", err)
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	res, err := s.resolve(ctx, community, listing)
	if err != nil {
		fail(span, err, "process resolution failed")
		slog.Error("failed to resolve payment process",
			"community_id", community.ID,
			"listing_id", listing.UUID,
			"active_payment_types", community.ActivePaymentTypes,
			"error", err)
		return nil, err
	}

	if err := s.validate(params, listing, community, res); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		slog.Info("transaction request rejected",
			"listing_id", listing.UUID,
			"starter_id", params.StarterID,
			"codes", err.Error())
		return nil, err
	}

	settings, err := s.settingsFor(ctx, community.ID)
	if err != nil {
		fail(span, err, "payment settings lookup failed")
		slog.Error("failed to get payment settings", "community_id", community.ID, "error", err)
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	accounts, err := s.accountsFor(ctx, listing.AuthorID)
	if err != nil {
		fail(span, err, "seller accounts lookup failed")
		slog.Error("failed to get seller accounts", "person_id", listing.AuthorID, "error", err)
		return nil, fmt.Errorf("failed to get seller accounts: %w", err)
	}
	admin := params.StarterAdmin || slices.Contains(community.AdminIDs, params.StarterID)
	gw, err := process.SelectGateway(res, settings, accounts, params.Gateway, admin)
	if err != nil {
		fail(span, err, "gateway selection failed")
		slog.Warn("no payment gateway available",
			"listing_id", listing.UUID,
			"requested", params.Gateway,
			"error", err)
		return nil, err
	}

	tx, err := s.build(params, listing, community, res.Process, gw, settings[gw])
	if err != nil {
		fail(span, err, "pricing failed")
		slog.Error("failed to price transaction", "listing_id", listing.UUID, "error", err)
		return nil, err
	}

	conversation := models.NewConversation(community.ID, listing.ID, models.StartingPagePayment, params.StarterID, listing.AuthorID)
	if params.Message != "" {
		conversation.Messages = append(conversation.Messages, models.Message{
			SenderID:  params.StarterID,
			Content:   params.Message,
			CreatedAt: tx.LastTransitionAt,
		})
	}
	if err := s.repos.Conversations.Create(ctx, conversation); err != nil {
		fail(span, err, "conversation creation failed")
		slog.Error("failed to create conversation", "listing_id", listing.UUID, "error", err)
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	tx.ConversationID = conversation.ID

	state, action := statemachine.Initial(res.Process)
	first := &models.Transition{
		From:      statemachine.StateNone,
		To:        state,
		Action:    string(action),
		ActorID:   params.StarterID,
		CreatedAt: tx.LastTransitionAt,
	}
	if err := s.repos.Transactions.Create(ctx, tx, first); err != nil {
		fail(span, err, "transaction creation failed")
		slog.Error("failed to create transaction, conversation left without transaction",
			"conversation_id", conversation.ID,
			"listing_id", listing.UUID,
			"error", err)
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	slog.Info("transaction created",
		"transaction_id", tx.UUID,
		"listing_id", listing.UUID,
		"process", tx.PaymentProcess,
		"gateway", tx.PaymentGateway,
		"total", tx.Total().String())

	if res.Free() {
		s.notifier.Notify(ctx, notify.Event{
			Type:        models.EventNewMessage,
			Transaction: tx,
			Recipients:  []models.Role{models.RoleSeller},
			Message:     params.Message,
		})
		return tx, nil
	}

	if err := s.charge(ctx, tx, community, accounts[gw], params); err != nil {
		fail(span, err, "charge failed")
		return nil, err
	}
	return tx, nil
}

func (s *transactionService) validate(params CreateParams, listing *models.Listing, community *models.Community, res process.Resolution) error {
	stripeInUse := !res.Free() && slices.Contains(community.ActivePaymentTypes, models.GatewayStripe)
	results := []validation.Result{
		validation.ValidateCanStart(listing, params.StarterID),
		validation.ValidateDeliveryMethod(params.Delivery, listing.ShippingEnabled, listing.PickupEnabled),
		validation.ValidateTransactionAgreement(params.ContractAgreed, community.TransactionAgreementInUse),
		validation.ValidateMessage(res.Process, params.Message),
	}
	switch {
	case listing.QuantitySelector.DateBased():
		results = append(results, validation.ValidateBooking(params.StartOn, params.EndOn, listing.QuantitySelector, stripeInUse, s.now(), s.cfg.Horizons))
	case listing.QuantitySelector == models.SelectorHour:
		results = append(results, validation.ValidatePerHourBooking(params.StartTime, params.EndTime))
	case params.Quantity != 0:
		results = append(results, validation.ValidateQuantity(params.Quantity))
	}
	return validation.Collect(results...)
}

// build prices a new transaction. ps is nil for free transactions.
func (s *transactionService) build(params CreateParams, listing *models.Listing, community *models.Community, proc models.Process, gw models.Gateway, ps *models.PaymentSettings) (*models.Transaction, error) {
	now := s.now().UTC()
	tx := &models.Transaction{
		UUID:             uuid.New(),
		CommunityID:      community.ID,
		ListingID:        listing.ID,
		ListingUUID:      listing.UUID,
		ListingTitle:     listing.Title,
		StarterID:        params.StarterID,
		ListingAuthorID:  listing.AuthorID,
		UnitType:         listing.UnitType,
		UnitPrice:        listing.Price,
		Delivery:         params.Delivery,
		PaymentProcess:   proc,
		PaymentGateway:   gw,
		LastTransitionAt: now,
	}
	tx.CurrentState, _ = statemachine.Initial(proc)

	switch {
	case listing.QuantitySelector.DateBased():
		start, end := validation.Day(*params.StartOn), validation.Day(*params.EndOn)
		tx.Booking = &models.Booking{StartOn: start, EndOn: end}
		tx.Quantity = pricing.CalculateQuantity(true, &start, &end, 0)
	case listing.QuantitySelector == models.SelectorHour:
		start, end := *params.StartTime, *params.EndTime
		tx.Booking = &models.Booking{
			StartOn:   validation.Day(start),
			EndOn:     validation.Day(end),
			StartTime: &start,
			EndTime:   &end,
			PerHour:   true,
		}
		tx.Quantity = pricing.CalculateHours(&start, &end)
	default:
		tx.Quantity = pricing.CalculateQuantity(false, nil, nil, params.Quantity)
	}
	tx.ShippingPrice = pricing.ShippingPrice(listing, params.Delivery, tx.Quantity)

	in := pricing.Input{
		Currency:  community.Currency,
		UnitPrice: listing.Price,
		Quantity:  tx.Quantity,
		IsBooking: tx.IsBooking(),
		Shipping:  tx.ShippingPrice,
	}
	if ps != nil {
		in.SellerPercent = ps.CommissionFromSeller
		in.SellerMinimum = ps.MinimumTransactionFee
		in.BuyerPercent = ps.CommissionFromBuyer
		in.BuyerMinimum = ps.MinimumBuyerTransactionFee
	}
	breakdown, err := pricing.Calculate(in)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate price: %w", err)
	}
	tx.Commission = breakdown.Commission
	tx.BuyerCommission = breakdown.BuyerCommission
	return tx, nil
}

// charge places the payment hold for a new transaction. A failed charge voids
// whatever the gateway may have authorized and cancels the transaction.
func (s *transactionService) charge(ctx context.Context, tx *models.Transaction, community *models.Community, seller *models.SellerAccount, params CreateParams) error {
	gw, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		slog.Error("payment gateway not registered", "gateway", tx.PaymentGateway, "transaction_id", tx.UUID, "error", err)
		return err
	}

	fee := tx.Commission
	fee.Cents += tx.BuyerCommission.Cents
	res, err := gw.Charge(ctx, gateway.ChargeRequest{
		TransactionUUID: tx.UUID,
		Amount:          tx.Total(),
		Fee:             fee,
		Seller:          seller,
		PaymentMethodID: params.PaymentMethodID,
		ReturnURL:       params.ReturnURL,
		CancelURL:       params.CancelURL,
		Description:     tx.ListingTitle,
		ChargesMode:     community.StripeChargesMode,
	})
	if res.ChargeID != "" {
		tx.GatewayChargeID = res.ChargeID
		tx.ApprovalURL = res.RedirectURL
		if serr := s.repos.Transactions.SetCharge(ctx, tx.ID, res.ChargeID, res.RedirectURL); serr != nil {
			slog.Error("failed to store charge id", "transaction_id", tx.UUID, "charge_id", res.ChargeID, "error", serr)
		}
	}
	if err != nil {
		code := pkgerrors.CodeOf(err)
		if code == "" {
			code = pkgerrors.CodeConnectionIssue
		}
		slog.Warn("charge failed, canceling transaction", "transaction_id", tx.UUID, "reason", code, "error", err)
		if _, terr := s.transition(ctx, tx, community, models.ActionPaymentFailed, models.SystemActor, models.RoleSystem, reasonOf(code)); terr != nil {
			slog.Error("failed to cancel transaction after charge failure", "transaction_id", tx.UUID, "error", terr)
		}
		var pe *pkgerrors.PaymentError
		if stderrors.As(err, &pe) {
			return err
		}
		return pkgerrors.NewPaymentError(code, err)
	}

	slog.Info("charge placed", "transaction_id", tx.UUID, "charge_id", res.ChargeID, "status", res.Status.String())
	if res.Status == gateway.ChargeRequiresAction {
		if _, err := s.transition(ctx, tx, community, models.ActionPaymentRequiresAction, models.SystemActor, models.RoleSystem, models.ReasonNone); err != nil {
			return err
		}
	}
	return nil
}

func reasonOf(code pkgerrors.Code) models.Reason {
	switch code {
	case pkgerrors.CodeDoubleBooking:
		return models.ReasonDoubleBooking
	case pkgerrors.CodePaymentDeclined:
		return models.ReasonDeclined
	}
	return models.ReasonConnectionIssue
}
