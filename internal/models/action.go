package models

import "github.com/google/uuid"

// Action names a transition trigger. Public actions come from users and admins,
// the rest are raised by gateways and jobs.
type Action string

const (
	ActionAccept       Action = "accept"
	ActionReject       Action = "reject"
	ActionCancel       Action = "cancel"
	ActionDispute      Action = "dispute"
	ActionRefund       Action = "refund"
	ActionDismiss      Action = "dismiss"
	ActionMarkComplete Action = "mark_complete"
	// ActionResolve settles a dispute in the seller's favour and returns the
	// transaction to confirmed.
	ActionResolve Action = "resolve"

	ActionInitiate              Action = "initiate"
	ActionStartFree             Action = "start_free"
	ActionPaymentSucceeded      Action = "payment_succeeded"
	ActionPaymentRequiresAction Action = "payment_requires_action"
	ActionPaymentActionExpired  Action = "payment_action_expired"
	ActionPaymentFailed         Action = "payment_failed"
	ActionCapturePending        Action = "capture_pending"
	ActionCaptureCompleted      Action = "capture_completed"
	ActionCaptureFailed         Action = "capture_failed"
)

// Public reports whether the action may be requested through the API.
func (a Action) Public() bool {
	switch a {
	case ActionAccept, ActionReject, ActionCancel, ActionDispute, ActionRefund, ActionDismiss, ActionMarkComplete, ActionResolve:
		return true
	}
	return false
}

// Actor is the caller of an operation. System actors (gateways, jobs) have a nil ID.
type Actor struct {
	ID    uuid.UUID `json:"id"`
	Admin bool      `json:"admin"`
}

var SystemActor = Actor{}

func (a Actor) IsSystem() bool {
	return a.ID == uuid.Nil
}
