package models

// EventType names a notification sent to transaction parties.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventPaymentReceived EventType = "payment_received"
	EventPaymentFailed   EventType = "payment_failed"
	EventAccepted        EventType = "transaction_accepted"
	EventRejected        EventType = "transaction_rejected"
	EventCanceled        EventType = "transaction_canceled"
	EventDisputed        EventType = "transaction_disputed"
	EventConfirmed       EventType = "transaction_confirmed"
	EventRefunded        EventType = "transaction_refunded"
	EventDismissed       EventType = "transaction_dismissed"
	EventDisputeResolved EventType = "dispute_resolved"
	EventPayoutSent      EventType = "payout_sent"
)

// Role is a party's relation to a transaction.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)
