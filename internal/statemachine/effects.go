package statemachine

import "github.com/honeynil/marketplace-tx/internal/models"

// GatewayOp is the gateway call a transition needs before it is persisted.
type GatewayOp int

const (
	OpNone GatewayOp = iota
	OpCapture
	OpVoid
	OpRefund
)

func (o GatewayOp) String() string {
	switch o {
	case OpCapture:
		return "capture"
	case OpVoid:
		return "void"
	case OpRefund:
		return "refund"
	}
	return "none"
}

type Notification struct {
	Type       models.EventType
	Recipients []models.Role
}

// Change describes one transition about to be applied.
type Change struct {
	From    models.State
	To      models.State
	Action  models.Action
	Gateway models.Gateway
	By      models.Role
}

// Plan lists the side effects of a Change.
type Plan struct {
	GatewayOp            GatewayOp
	Notifications        []Notification
	SchedulePayout       bool
	ScheduleAutoComplete bool
	ReleaseBooking       bool
}

func notify(t models.EventType, to ...models.Role) Notification {
	return Notification{Type: t, Recipients: to}
}

// Effects builds the side-effect plan for a change.
func Effects(c Change) Plan {
	var p Plan
	switch c.To {
	case models.StatePaid:
		p.Notifications = append(p.Notifications, notify(models.EventPaymentReceived, models.RoleSeller, models.RoleBuyer))

	case models.StateConfirmed:
		p.ScheduleAutoComplete = true
		switch c.Action {
		case models.ActionAccept:
			p.GatewayOp = OpCapture
			p.Notifications = append(p.Notifications, notify(models.EventAccepted, models.RoleBuyer))
		case models.ActionResolve:
			p.Notifications = append(p.Notifications, notify(models.EventDisputeResolved, models.RoleSeller, models.RoleBuyer))
		default:
			p.Notifications = append(p.Notifications, notify(models.EventAccepted, models.RoleBuyer))
		}

	case models.StateRejected:
		if c.Action == models.ActionReject {
			p.GatewayOp = OpVoid
		}
		p.ReleaseBooking = true
		p.Notifications = append(p.Notifications, notify(models.EventRejected, models.RoleBuyer))

	case models.StateCanceled:
		switch c.From {
		case models.StatePendingExternal, models.StateConfirmed, models.StateDisputed:
			p.GatewayOp = OpRefund
		case models.StatePaid, models.StateInitiated, models.StateRequiresAction, models.StateActionExpired:
			p.GatewayOp = OpVoid
		}
		p.ReleaseBooking = true
		if c.Action == models.ActionPaymentFailed {
			p.Notifications = append(p.Notifications, notify(models.EventPaymentFailed, models.RoleBuyer))
		} else {
			p.Notifications = append(p.Notifications, notify(models.EventCanceled, counterparts(c.By)...))
		}

	case models.StateDisputed:
		p.Notifications = append(p.Notifications, notify(models.EventDisputed, models.RoleSeller, models.RoleBuyer, models.RoleAdmin))

	case models.StateCompleted:
		p.SchedulePayout = c.Gateway == models.GatewayStripe
		recipients := []models.Role{models.RoleSeller}
		if c.By == models.RoleAdmin {
			recipients = append(recipients, models.RoleBuyer)
		}
		p.Notifications = append(p.Notifications, notify(models.EventConfirmed, recipients...))

	case models.StateRefunded:
		p.GatewayOp = OpRefund
		p.ReleaseBooking = true
		p.Notifications = append(p.Notifications, notify(models.EventRefunded, models.RoleSeller, models.RoleBuyer))

	case models.StateDismissed:
		if c.From == models.StateDisputed {
			// dispute resolved in the seller's favour: funds go out, nobody gets a confirmation mail
			p.SchedulePayout = c.Gateway == models.GatewayStripe
			if c.By == models.RoleAdmin {
				p.Notifications = append(p.Notifications, notify(models.EventDismissed, models.RoleBuyer))
			}
		} else {
			p.GatewayOp = OpVoid
			p.ReleaseBooking = true
		}
	}
	if c.Gateway == models.GatewayNone {
		p.GatewayOp = OpNone
	}
	return p
}

// counterparts is who hears about an action other than the one who took it.
func counterparts(by models.Role) []models.Role {
	switch by {
	case models.RoleBuyer:
		return []models.Role{models.RoleSeller}
	case models.RoleSeller:
		return []models.Role{models.RoleBuyer}
	}
	return []models.Role{models.RoleBuyer, models.RoleSeller}
}
