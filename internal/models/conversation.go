package models

import (
	"time"

	"github.com/google/uuid"
)

type StartingPage string

const (
	StartingPageNone    StartingPage = ""
	StartingPageProfile StartingPage = "profile"
	StartingPageListing StartingPage = "listing"
	StartingPagePayment StartingPage = "payment"
)

func (p StartingPage) Valid() bool {
	switch p {
	case StartingPageNone, StartingPageProfile, StartingPageListing, StartingPagePayment:
		return true
	}
	return false
}

type Conversation struct {
	ID            int64           `json:"-"`
	CommunityID   int64           `json:"-"`
	ListingID     int64           `json:"-"`
	StartingPage  StartingPage    `json:"starting_page,omitempty"`
	Participants  []Participation `json:"participants"`
	Messages      []Message       `json:"messages"`
	LastMessageAt time.Time       `json:"last_message_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Participation is one person's view of a conversation. The starter is listed first.
type Participation struct {
	PersonID       uuid.UUID  `json:"person_id"`
	IsStarter      bool       `json:"is_starter"`
	IsRead         bool       `json:"is_read"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	LastReceivedAt *time.Time `json:"last_received_at,omitempty"`
}

type Message struct {
	ID             int64     `json:"-"`
	ConversationID int64     `json:"-"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewConversation builds a conversation between starter and recipient, starter first.
func NewConversation(communityID, listingID int64, page StartingPage, starter, recipient uuid.UUID) *Conversation {
	return &Conversation{
		CommunityID:  communityID,
		ListingID:    listingID,
		StartingPage: page,
		Participants: []Participation{
			{PersonID: starter, IsStarter: true, IsRead: true},
			{PersonID: recipient},
		},
	}
}
