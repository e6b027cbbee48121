package process

import (
	"fmt"
	"slices"

	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// Settings are a community's preauthorize payment settings keyed by gateway.
type Settings map[models.Gateway]*models.PaymentSettings

// Accounts are a seller's payout accounts keyed by gateway.
type Accounts map[models.Gateway]*models.SellerAccount

const (
	notReadyAdminMessage  = "Payments are not configured for this marketplace yet. Set up a payment gateway in the payment settings before posting."
	notReadyMemberMessage = "This marketplace cannot accept payments yet. Please contact the administrator."
	sellerNotReadyMessage = "The seller has not finished setting up payouts yet."
)

// CommunityReady reports whether the gateway is active, its API keys verified and
// a seller commission configured.
func CommunityReady(settings Settings, gateway models.Gateway) bool {
	if gateway == models.GatewayNone {
		return true
	}
	s := settings[gateway]
	return s != nil && s.Active && s.APIVerified && s.CommissionFromSeller != nil
}

// SellerReady additionally requires the seller's payout credentials.
func SellerReady(settings Settings, accounts Accounts, gateway models.Gateway) bool {
	if gateway == models.GatewayNone {
		return true
	}
	return CommunityReady(settings, gateway) && accounts[gateway].Ready()
}

// PostingStatus is whether a listing with the resolved process may be posted.
type PostingStatus struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// CanPost checks that at least one candidate gateway is ready at community level.
// The message addresses an administrator or a member.
func CanPost(res Resolution, settings Settings, admin bool) PostingStatus {
	if res.Free() {
		return PostingStatus{Allowed: true}
	}
	for _, g := range res.Candidates {
		if CommunityReady(settings, g) {
			return PostingStatus{Allowed: true}
		}
	}
	if admin {
		return PostingStatus{Message: notReadyAdminMessage}
	}
	return PostingStatus{Message: notReadyMemberMessage}
}

// SelectGateway picks the gateway a transaction is charged through. A preferred
// gateway must be a ready candidate; otherwise the first ready candidate wins.
// admin selects the not-ready message the way CanPost does.
func SelectGateway(res Resolution, settings Settings, accounts Accounts, preferred models.Gateway, admin bool) (models.Gateway, error) {
	if res.Free() {
		return models.GatewayNone, nil
	}

	if preferred != "" && preferred != models.GatewayNone {
		if !slices.Contains(res.Candidates, preferred) {
			return "", fmt.Errorf("%w: gateway %q not offered", pkgerrors.ErrUnknownGateway, preferred)
		}
		if SellerReady(settings, accounts, preferred) {
			return preferred, nil
		}
		return "", notReady(settings, preferred, admin)
	}

	for _, g := range res.Candidates {
		if SellerReady(settings, accounts, g) {
			return g, nil
		}
	}
	for _, g := range res.Candidates {
		if CommunityReady(settings, g) {
			return "", notReady(settings, g, admin)
		}
	}
	return "", communityNotReady(admin)
}

func notReady(settings Settings, g models.Gateway, admin bool) error {
	if CommunityReady(settings, g) {
		return &pkgerrors.NotReadyError{Message: sellerNotReadyMessage}
	}
	return communityNotReady(admin)
}

func communityNotReady(admin bool) error {
	if admin {
		return &pkgerrors.NotReadyError{Message: notReadyAdminMessage}
	}
	return &pkgerrors.NotReadyError{Message: notReadyMemberMessage}
}
