package statemachine

import (
	"errors"
	"testing"

	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []models.State{
	models.StateFree, models.StateInitiated, models.StateRequiresAction, models.StateActionExpired,
	models.StatePendingExternal, models.StatePaid, models.StateConfirmed, models.StateCompleted,
	models.StateRejected, models.StateCanceled, models.StateDisputed, models.StateRefunded,
	models.StateDismissed,
}

func TestNext(t *testing.T) {
	tests := []struct {
		from   models.State
		action models.Action
		to     models.State
	}{
		{models.StateInitiated, models.ActionPaymentSucceeded, models.StatePaid},
		{models.StateInitiated, models.ActionPaymentRequiresAction, models.StateRequiresAction},
		{models.StateRequiresAction, models.ActionPaymentSucceeded, models.StatePaid},
		{models.StateRequiresAction, models.ActionPaymentActionExpired, models.StateActionExpired},
		{models.StateActionExpired, models.ActionPaymentFailed, models.StateCanceled},
		{models.StatePaid, models.ActionAccept, models.StateConfirmed},
		{models.StatePaid, models.ActionCapturePending, models.StatePendingExternal},
		{models.StatePendingExternal, models.ActionCaptureCompleted, models.StateConfirmed},
		{models.StatePendingExternal, models.ActionCaptureFailed, models.StateRejected},
		{models.StatePaid, models.ActionReject, models.StateRejected},
		{models.StateConfirmed, models.ActionDispute, models.StateDisputed},
		{models.StateConfirmed, models.ActionMarkComplete, models.StateCompleted},
		{models.StateDisputed, models.ActionRefund, models.StateRefunded},
		{models.StateDisputed, models.ActionDismiss, models.StateDismissed},
		{models.StateFree, models.ActionCancel, models.StateCanceled},
		{models.StateInitiated, models.ActionCancel, models.StateCanceled},
		{models.StateRequiresAction, models.ActionCancel, models.StateCanceled},
		{models.StateActionExpired, models.ActionCancel, models.StateCanceled},
		{models.StatePaid, models.ActionCancel, models.StateCanceled},
		{models.StatePendingExternal, models.ActionCancel, models.StateCanceled},
		{models.StateConfirmed, models.ActionCancel, models.StateCanceled},
		{models.StateDisputed, models.ActionCancel, models.StateCanceled},
		{models.StateDisputed, models.ActionResolve, models.StateConfirmed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			to, err := Next(tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestNextInvalid(t *testing.T) {
	invalid := []struct {
		from   models.State
		action models.Action
	}{
		{models.StateInitiated, models.ActionAccept},
		{models.StateCompleted, models.ActionCancel},
		{models.StateFree, models.ActionAccept},
		{models.StateRefunded, models.ActionDispute},
		{models.StatePaid, models.ActionDispute},
		{models.StateCanceled, models.ActionCancel},
		{models.StateConfirmed, models.ActionResolve},
		{models.StatePaid, models.ActionResolve},
	}
	for _, tt := range invalid {
		_, err := Next(tt.from, tt.action)
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidTransition), "%s/%s", tt.from, tt.action)
	}
}

func TestEveryEdgeEndsInItsTarget(t *testing.T) {
	for e, to := range transitions {
		target, ok := Target(e.action)
		require.True(t, ok, "action %s has no target", e.action)
		assert.Equal(t, target, to, "edge %s/%s", e.from, e.action)
	}
}

func TestAlreadyApplied(t *testing.T) {
	assert.True(t, AlreadyApplied(models.StateConfirmed, models.ActionAccept))
	assert.True(t, AlreadyApplied(models.StatePendingExternal, models.ActionAccept))
	assert.True(t, AlreadyApplied(models.StatePaid, models.ActionPaymentSucceeded))
	assert.True(t, AlreadyApplied(models.StateCanceled, models.ActionCancel))
	assert.True(t, AlreadyApplied(models.StateConfirmed, models.ActionResolve))
	assert.False(t, AlreadyApplied(models.StateDisputed, models.ActionResolve))
	assert.False(t, AlreadyApplied(models.StatePaid, models.ActionAccept))
	assert.False(t, AlreadyApplied(models.StateRejected, models.ActionAccept))
}

func TestTerminal(t *testing.T) {
	terminal := map[models.State]bool{
		models.StateCompleted: true,
		models.StateRejected:  true,
		models.StateCanceled:  true,
		models.StateRefunded:  true,
		models.StateDismissed: true,
	}
	for _, s := range allStates {
		assert.Equal(t, terminal[s], Terminal(s), "state %s", s)
	}
}

func TestInitial(t *testing.T) {
	s, a := Initial(models.ProcessNone)
	assert.Equal(t, models.StateFree, s)
	assert.Equal(t, models.ActionStartFree, a)

	s, a = Initial(models.ProcessPreauthorize)
	assert.Equal(t, models.StateInitiated, s)
	assert.Equal(t, models.ActionInitiate, a)
}

func TestAuthorized(t *testing.T) {
	assert.True(t, Authorized(models.RoleSeller, models.ActionAccept, models.StatePaid))
	assert.False(t, Authorized(models.RoleBuyer, models.ActionAccept, models.StatePaid))
	assert.True(t, Authorized(models.RoleBuyer, models.ActionDispute, models.StateConfirmed))
	assert.False(t, Authorized(models.RoleSeller, models.ActionRefund, models.StateDisputed))
	assert.True(t, Authorized(models.RoleAdmin, models.ActionRefund, models.StateDisputed))
	assert.False(t, Authorized(models.Role("stranger"), models.ActionCancel, models.StatePaid))

	t.Run("Cancel", func(t *testing.T) {
		assert.True(t, Authorized(models.RoleBuyer, models.ActionCancel, models.StateInitiated))
		assert.True(t, Authorized(models.RoleBuyer, models.ActionCancel, models.StatePaid))
		assert.False(t, Authorized(models.RoleBuyer, models.ActionCancel, models.StateConfirmed))
		assert.False(t, Authorized(models.RoleBuyer, models.ActionCancel, models.StateDisputed))
		assert.True(t, Authorized(models.RoleSeller, models.ActionCancel, models.StatePendingExternal))
		assert.True(t, Authorized(models.RoleSeller, models.ActionCancel, models.StateDisputed))
		assert.True(t, Authorized(models.RoleAdmin, models.ActionCancel, models.StateDisputed))
	})

	t.Run("Resolve is admin only", func(t *testing.T) {
		assert.True(t, Authorized(models.RoleAdmin, models.ActionResolve, models.StateDisputed))
		assert.False(t, Authorized(models.RoleSeller, models.ActionResolve, models.StateDisputed))
		assert.False(t, Authorized(models.RoleBuyer, models.ActionResolve, models.StateDisputed))
	})
}

func TestEffects(t *testing.T) {
	t.Run("Accept captures", func(t *testing.T) {
		p := Effects(Change{From: models.StatePaid, To: models.StateConfirmed, Action: models.ActionAccept, Gateway: models.GatewayStripe, By: models.RoleSeller})
		assert.Equal(t, OpCapture, p.GatewayOp)
		assert.True(t, p.ScheduleAutoComplete)
		assert.False(t, p.SchedulePayout)
	})

	t.Run("Cancel after confirmation refunds", func(t *testing.T) {
		p := Effects(Change{From: models.StateConfirmed, To: models.StateCanceled, Action: models.ActionCancel, Gateway: models.GatewayPaypal, By: models.RoleSeller})
		assert.Equal(t, OpRefund, p.GatewayOp)
		assert.True(t, p.ReleaseBooking)
		require.Len(t, p.Notifications, 1)
		assert.Equal(t, []models.Role{models.RoleBuyer}, p.Notifications[0].Recipients)
	})

	t.Run("Cancel refunds once funds may be captured", func(t *testing.T) {
		for _, from := range []models.State{models.StatePendingExternal, models.StateDisputed} {
			p := Effects(Change{From: from, To: models.StateCanceled, Action: models.ActionCancel, Gateway: models.GatewayStripe, By: models.RoleAdmin})
			assert.Equal(t, OpRefund, p.GatewayOp, "from %s", from)
			assert.True(t, p.ReleaseBooking)
		}
	})

	t.Run("Cancel before capture voids", func(t *testing.T) {
		for _, from := range []models.State{models.StateInitiated, models.StateRequiresAction, models.StateActionExpired, models.StatePaid} {
			p := Effects(Change{From: from, To: models.StateCanceled, Action: models.ActionCancel, Gateway: models.GatewayStripe, By: models.RoleSeller})
			assert.Equal(t, OpVoid, p.GatewayOp, "from %s", from)
			assert.Equal(t, models.EventCanceled, p.Notifications[0].Type)
		}
	})

	t.Run("Resolved dispute re-arms auto-complete", func(t *testing.T) {
		p := Effects(Change{From: models.StateDisputed, To: models.StateConfirmed, Action: models.ActionResolve, Gateway: models.GatewayStripe, By: models.RoleAdmin})
		assert.Equal(t, OpNone, p.GatewayOp)
		assert.True(t, p.ScheduleAutoComplete)
		assert.False(t, p.SchedulePayout)
		require.Len(t, p.Notifications, 1)
		assert.Equal(t, models.EventDisputeResolved, p.Notifications[0].Type)
		assert.Equal(t, []models.Role{models.RoleSeller, models.RoleBuyer}, p.Notifications[0].Recipients)
	})

	t.Run("Completed by admin mails both", func(t *testing.T) {
		p := Effects(Change{From: models.StateConfirmed, To: models.StateCompleted, Action: models.ActionMarkComplete, Gateway: models.GatewayStripe, By: models.RoleAdmin})
		assert.True(t, p.SchedulePayout)
		require.Len(t, p.Notifications, 1)
		assert.Equal(t, []models.Role{models.RoleSeller, models.RoleBuyer}, p.Notifications[0].Recipients)
	})

	t.Run("Completed by buyer mails seller only", func(t *testing.T) {
		p := Effects(Change{From: models.StateConfirmed, To: models.StateCompleted, Action: models.ActionMarkComplete, Gateway: models.GatewayPaypal, By: models.RoleBuyer})
		assert.False(t, p.SchedulePayout)
		assert.Equal(t, []models.Role{models.RoleSeller}, p.Notifications[0].Recipients)
	})

	t.Run("Disputed mails everyone", func(t *testing.T) {
		p := Effects(Change{From: models.StateConfirmed, To: models.StateDisputed, Action: models.ActionDispute, Gateway: models.GatewayStripe, By: models.RoleBuyer})
		assert.Equal(t, []models.Role{models.RoleSeller, models.RoleBuyer, models.RoleAdmin}, p.Notifications[0].Recipients)
	})

	t.Run("Dismissed dispute pays out without confirmation mail", func(t *testing.T) {
		p := Effects(Change{From: models.StateDisputed, To: models.StateDismissed, Action: models.ActionDismiss, Gateway: models.GatewayStripe, By: models.RoleAdmin})
		assert.True(t, p.SchedulePayout)
		assert.Equal(t, OpNone, p.GatewayOp)
		for _, n := range p.Notifications {
			assert.NotEqual(t, models.EventConfirmed, n.Type)
			assert.NotContains(t, n.Recipients, models.RoleSeller)
		}
	})

	t.Run("Dismissed before payment voids", func(t *testing.T) {
		p := Effects(Change{From: models.StateInitiated, To: models.StateDismissed, Action: models.ActionDismiss, Gateway: models.GatewayStripe, By: models.RoleSystem})
		assert.Equal(t, OpVoid, p.GatewayOp)
		assert.Empty(t, p.Notifications)
	})

	t.Run("Free transactions never touch a gateway", func(t *testing.T) {
		p := Effects(Change{From: models.StateFree, To: models.StateCanceled, Action: models.ActionCancel, Gateway: models.GatewayNone, By: models.RoleSeller})
		assert.Equal(t, OpNone, p.GatewayOp)
	})
}
