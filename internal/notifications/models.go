package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventKind identifies what happened in the market
type EventKind string

const (
	EventCreditMinted       EventKind = "credit.minted"
	EventListingCreated     EventKind = "listing.created"
	EventListingUpdated     EventKind = "listing.updated"
	EventListingCancelled   EventKind = "listing.cancelled"
	EventListingPurchased   EventKind = "listing.purchased"
	EventCreditsTransferred EventKind = "credits.transferred"
	EventFundsDeposited     EventKind = "funds.deposited"
	EventIssueReported      EventKind = "issue.reported"
	EventAuditCompleted     EventKind = "audit.completed"
)

// Event is the structured record emitted after a committed market operation
type Event struct {
	ID           uuid.UUID              `json:"id"`
	Kind         EventKind              `json:"kind"`
	Actor        string                 `json:"actor,omitempty"`
	Counterparty string                 `json:"counterparty,omitempty"`
	CreditID     uint64                 `json:"credit_id,omitempty"`
	ListingID    uint64                 `json:"listing_id,omitempty"`
	Amount       int64                  `json:"amount,omitempty"`
	Price        int64                  `json:"price,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// NewEvent creates an event of the given kind stamped with a fresh id
func NewEvent(kind EventKind) *Event {
	return &Event{
		ID:         uuid.New(),
		Kind:       kind,
		Attributes: make(map[string]interface{}),
		OccurredAt: time.Now().UTC(),
	}
}

// JournalEntry is the persisted form of an Event
type JournalEntry struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	Kind         string            `json:"kind" gorm:"size:32;not null;index"`
	Actor        string            `json:"actor,omitempty" gorm:"size:128;index"`
	Counterparty string            `json:"counterparty,omitempty" gorm:"size:128"`
	CreditID     uint64            `json:"credit_id,omitempty" gorm:"index"`
	ListingID    uint64            `json:"listing_id,omitempty" gorm:"index"`
	Amount       int64             `json:"amount,omitempty"`
	Price        int64             `json:"price,omitempty"`
	Attributes   datatypes.JSONMap `json:"attributes,omitempty" gorm:"type:jsonb"`
	OccurredAt   time.Time         `json:"occurred_at" gorm:"not null;index"`
}

func (JournalEntry) TableName() string {
	return "market_events"
}

// JournalFilter narrows journal queries. Zero values match everything.
type JournalFilter struct {
	Kind      EventKind
	CreditID  uint64
	ListingID uint64
	Actor     string
	Limit     int
}

// WebSocketMessage represents WebSocket message format
type WebSocketMessage struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Channel   string                 `json:"channel"`
	Target    string                 `json:"target,omitempty"`
	Source    string                 `json:"source,omitempty"`
}

const (
	// WebSocket message types
	WSMessageTypeEvent     = "event"
	WSMessageTypeStatus    = "status"
	WSMessageTypeSubscribe = "subscribe"
)

func toJournalEntry(event *Event) *JournalEntry {
	return &JournalEntry{
		ID:           event.ID,
		Kind:         string(event.Kind),
		Actor:        event.Actor,
		Counterparty: event.Counterparty,
		CreditID:     event.CreditID,
		ListingID:    event.ListingID,
		Amount:       event.Amount,
		Price:        event.Price,
		Attributes:   datatypes.JSONMap(event.Attributes),
		OccurredAt:   event.OccurredAt,
	}
}

// ToMessage renders an event for websocket subscribers
func (e *Event) ToMessage() WebSocketMessage {
	data := map[string]interface{}{
		"id":   e.ID.String(),
		"kind": string(e.Kind),
	}
	if e.Actor != "" {
		data["actor"] = e.Actor
	}
	if e.Counterparty != "" {
		data["counterparty"] = e.Counterparty
	}
	if e.CreditID != 0 {
		data["credit_id"] = e.CreditID
	}
	if e.ListingID != 0 {
		data["listing_id"] = e.ListingID
	}
	if e.Amount != 0 {
		data["amount"] = e.Amount
	}
	if e.Price != 0 {
		data["price"] = e.Price
	}
	for k, v := range e.Attributes {
		data[k] = v
	}

	return WebSocketMessage{
		Type:      WSMessageTypeEvent,
		Data:      data,
		Timestamp: e.OccurredAt,
		Channel:   "market",
		Source:    e.Actor,
	}
}
