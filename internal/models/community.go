package models

import "github.com/google/uuid"

// ChargesMode is the Stripe charge flow a community uses.
type ChargesMode string

const (
	ChargesModeDestination ChargesMode = "destination"
	ChargesModeSeparate    ChargesMode = "separate"
)

type Community struct {
	ID                        int64       `json:"-"`
	UUID                      uuid.UUID   `json:"id"`
	Currency                  string      `json:"currency"`
	ActivePaymentTypes        []Gateway   `json:"active_payment_types"`
	TransactionAgreementInUse bool        `json:"transaction_agreement_in_use"`
	StripeChargesMode         ChargesMode `json:"stripe_charges_mode"`
	AdminIDs                  []uuid.UUID `json:"-"`
}

// PaymentSettings configures one (community, gateway, process) combination.
// Commissions are whole percentages.
type PaymentSettings struct {
	ID                         int64   `json:"-"`
	CommunityID                int64   `json:"-"`
	Gateway                    Gateway `json:"gateway"`
	Process                    Process `json:"process"`
	Active                     bool    `json:"active"`
	CommissionFromSeller       *int    `json:"commission_from_seller,omitempty"`
	CommissionFromBuyer        *int    `json:"commission_from_buyer,omitempty"`
	MinimumTransactionFee      Money   `json:"minimum_transaction_fee"`
	MinimumBuyerTransactionFee Money   `json:"minimum_buyer_transaction_fee"`
	MinimumPrice               Money   `json:"minimum_price"`
	ConfirmationAfterDays      int     `json:"confirmation_after_days"`
	APIVerified                bool    `json:"api_verified"`
	APICredentials             []byte  `json:"-"`
}

type TransactionProcess struct {
	ID          int64   `json:"id"`
	CommunityID int64   `json:"-"`
	Process     Process `json:"process"`
	Author      bool    `json:"author_is_seller"`
}
