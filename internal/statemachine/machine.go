// Package statemachine defines the transaction lifecycle: which action moves a
// transaction from which state to which, who may request it, and the side
// effects each transition carries.
package statemachine

import (
	"fmt"

	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// StateNone is the state of a transaction that has not been persisted yet.
const StateNone models.State = ""

type edge struct {
	from   models.State
	action models.Action
}

var transitions = map[edge]models.State{
	{StateNone, models.ActionInitiate}:  models.StateInitiated,
	{StateNone, models.ActionStartFree}: models.StateFree,

	{models.StateInitiated, models.ActionPaymentSucceeded}:      models.StatePaid,
	{models.StateInitiated, models.ActionPaymentRequiresAction}: models.StateRequiresAction,
	{models.StateInitiated, models.ActionPaymentFailed}:         models.StateCanceled,
	{models.StateInitiated, models.ActionDismiss}:               models.StateDismissed,
	{models.StateInitiated, models.ActionCancel}:                models.StateCanceled,

	{models.StateRequiresAction, models.ActionPaymentSucceeded}:     models.StatePaid,
	{models.StateRequiresAction, models.ActionPaymentActionExpired}: models.StateActionExpired,
	{models.StateRequiresAction, models.ActionPaymentFailed}:        models.StateCanceled,
	{models.StateRequiresAction, models.ActionDismiss}:              models.StateDismissed,
	{models.StateRequiresAction, models.ActionCancel}:               models.StateCanceled,

	{models.StateActionExpired, models.ActionPaymentFailed}: models.StateCanceled,
	{models.StateActionExpired, models.ActionDismiss}:       models.StateDismissed,
	{models.StateActionExpired, models.ActionCancel}:        models.StateCanceled,

	{models.StatePaid, models.ActionAccept}:         models.StateConfirmed,
	{models.StatePaid, models.ActionCapturePending}: models.StatePendingExternal,
	{models.StatePaid, models.ActionCaptureFailed}:  models.StateRejected,
	{models.StatePaid, models.ActionReject}:         models.StateRejected,
	{models.StatePaid, models.ActionCancel}:         models.StateCanceled,

	{models.StatePendingExternal, models.ActionCaptureCompleted}: models.StateConfirmed,
	{models.StatePendingExternal, models.ActionCaptureFailed}:    models.StateRejected,
	{models.StatePendingExternal, models.ActionReject}:           models.StateRejected,
	{models.StatePendingExternal, models.ActionCancel}:           models.StateCanceled,

	{models.StateConfirmed, models.ActionDispute}:      models.StateDisputed,
	{models.StateConfirmed, models.ActionMarkComplete}: models.StateCompleted,
	{models.StateConfirmed, models.ActionCancel}:       models.StateCanceled,

	{models.StateDisputed, models.ActionRefund}:  models.StateRefunded,
	{models.StateDisputed, models.ActionDismiss}: models.StateDismissed,
	{models.StateDisputed, models.ActionResolve}: models.StateConfirmed,
	{models.StateDisputed, models.ActionCancel}:  models.StateCanceled,

	{models.StateFree, models.ActionCancel}: models.StateCanceled,
}

// Next returns the state action leads to from the given state.
func Next(from models.State, action models.Action) (models.State, error) {
	to, ok := transitions[edge{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %q", pkgerrors.ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Target is the state an action always ends in, regardless of where it starts.
func Target(action models.Action) (models.State, bool) {
	switch action {
	case models.ActionInitiate:
		return models.StateInitiated, true
	case models.ActionStartFree:
		return models.StateFree, true
	case models.ActionAccept, models.ActionCaptureCompleted, models.ActionResolve:
		return models.StateConfirmed, true
	case models.ActionReject, models.ActionCaptureFailed:
		return models.StateRejected, true
	case models.ActionCancel, models.ActionPaymentFailed:
		return models.StateCanceled, true
	case models.ActionDispute:
		return models.StateDisputed, true
	case models.ActionRefund:
		return models.StateRefunded, true
	case models.ActionDismiss:
		return models.StateDismissed, true
	case models.ActionMarkComplete:
		return models.StateCompleted, true
	case models.ActionPaymentSucceeded:
		return models.StatePaid, true
	case models.ActionPaymentRequiresAction:
		return models.StateRequiresAction, true
	case models.ActionPaymentActionExpired:
		return models.StateActionExpired, true
	case models.ActionCapturePending:
		return models.StatePendingExternal, true
	}
	return "", false
}

// AlreadyApplied reports whether a transaction in current has already gone
// through action. Re-applying it is then a no-op.
func AlreadyApplied(current models.State, action models.Action) bool {
	if target, ok := Target(action); ok && target == current {
		return true
	}
	// accepted, capture still pending at the gateway
	return action == models.ActionAccept && current == models.StatePendingExternal
}

// Initial is the state a new transaction starts in and the action recorded for it.
func Initial(process models.Process) (models.State, models.Action) {
	if process == models.ProcessNone {
		return models.StateFree, models.ActionStartFree
	}
	return models.StateInitiated, models.ActionInitiate
}

// Terminal reports whether no further transition leaves the state.
func Terminal(s models.State) bool {
	for e := range transitions {
		if e.from == s {
			return false
		}
	}
	return true
}

// Authorized reports whether role may request a public action on a transaction
// in state from. Gateways and jobs act as RoleSystem and may request any action.
// A buyer may cancel only until the seller has accepted.
func Authorized(role models.Role, action models.Action, from models.State) bool {
	switch role {
	case models.RoleSystem, models.RoleAdmin:
		return true
	case models.RoleSeller:
		switch action {
		case models.ActionAccept, models.ActionReject, models.ActionCancel:
			return true
		}
	case models.RoleBuyer:
		switch action {
		case models.ActionDispute, models.ActionMarkComplete:
			return true
		case models.ActionCancel:
			return !accepted(from)
		}
	}
	return false
}

func accepted(s models.State) bool {
	switch s {
	case models.StatePendingExternal, models.StateConfirmed, models.StateDisputed:
		return true
	}
	return false
}
