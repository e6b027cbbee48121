// Package process decides which payment process and gateway a transaction runs
// on, and whether a community and seller are ready to take payments.
package process

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// PaymentTypes is the set of gateways a community has switched on.
type PaymentTypes int

const (
	TypesNone PaymentTypes = iota
	TypesPaypal
	TypesStripe
	TypesPaypalStripe
)

func (t PaymentTypes) String() string {
	switch t {
	case TypesNone:
		return "none"
	case TypesPaypal:
		return "paypal"
	case TypesStripe:
		return "stripe"
	case TypesPaypalStripe:
		return "paypal+stripe"
	}
	return fmt.Sprintf("PaymentTypes(%d)", int(t))
}

// TypesOf maps a community's active gateways to PaymentTypes.
func TypesOf(active []models.Gateway) (PaymentTypes, error) {
	paypal := slices.Contains(active, models.GatewayPaypal)
	stripe := slices.Contains(active, models.GatewayStripe)
	for _, g := range active {
		if g != models.GatewayPaypal && g != models.GatewayStripe && g != models.GatewayNone {
			return TypesNone, fmt.Errorf("%w: active payment type %q", pkgerrors.ErrUnknownGateway, g)
		}
	}
	switch {
	case paypal && stripe:
		return TypesPaypalStripe, nil
	case paypal:
		return TypesPaypal, nil
	case stripe:
		return TypesStripe, nil
	}
	return TypesNone, nil
}

// Resolution is the process and the gateways that may serve it, in order of
// preference. For ProcessNone the only candidate is GatewayNone.
type Resolution struct {
	Process    models.Process
	Candidates []models.Gateway
	// Transitional is set when a community without active gateways runs a
	// preauthorize process; either gateway may then serve it once onboarded.
	Transitional bool
}

func (r Resolution) Free() bool {
	return r.Process == models.ProcessNone
}

// Resolve matches every (types, process) pair explicitly. Anything unmatched is
// a configuration defect and returns ErrUnresolvableProcess.
func Resolve(types PaymentTypes, process models.Process) (Resolution, error) {
	switch process {
	case models.ProcessNone:
		switch types {
		case TypesNone, TypesPaypal, TypesStripe, TypesPaypalStripe:
			return Resolution{Process: models.ProcessNone, Candidates: []models.Gateway{models.GatewayNone}}, nil
		}
	case models.ProcessPreauthorize:
		switch types {
		case TypesPaypal:
			return Resolution{Process: process, Candidates: []models.Gateway{models.GatewayPaypal}}, nil
		case TypesStripe:
			return Resolution{Process: process, Candidates: []models.Gateway{models.GatewayStripe}}, nil
		case TypesPaypalStripe:
			return Resolution{Process: process, Candidates: []models.Gateway{models.GatewayStripe, models.GatewayPaypal}}, nil
		case TypesNone:
			return Resolution{Process: process, Candidates: []models.Gateway{models.GatewayStripe, models.GatewayPaypal}, Transitional: true}, nil
		}
	}
	slog.Error("unresolvable payment process", "payment_types", types.String(), "process", process)
	return Resolution{}, fmt.Errorf("%w: types=%s process=%q", pkgerrors.ErrUnresolvableProcess, types, process)
}
