package models

import (
	"fmt"
	"time"
)

// Fan-out naming shared by the gateway, the broadcast service and the archival worker.
const (
	// EventChannelPrefix prefixes the Redis Pub/Sub channel of a topic: "vault_events:auction:1".
	EventChannelPrefix = "vault_events:"
	// EventStream is the JetStream stream holding events for archival.
	EventStream = "VAULT_EVENTS"
	// EventSubjectPrefix prefixes the JetStream subject of an event kind.
	EventSubjectPrefix = "vault.events."
)

// EventKind names a state transition of the vault.
type EventKind string

// EventKind constants
const (
	EventBrandRegistered  EventKind = "brand.registered"
	EventBrandVerified    EventKind = "brand.verified"
	EventProductListed    EventKind = "product.listed"
	EventProductPurchased EventKind = "product.purchased"
	EventAuctionCreated   EventKind = "auction.created"
	EventBidPlaced        EventKind = "auction.bid_placed"
	EventAuctionEnded     EventKind = "auction.ended"
	EventReviewAdded      EventKind = "review.added"
)

// VaultEvent is emitted for every successful vault action.
// It is sent to:
// 1. Redis Pub/Sub (for real-time WebSocket broadcast)
// 2. NATS JetStream (for archival to PostgreSQL)
type VaultEvent struct {
	EventID        string    `json:"event_id"`
	Kind           EventKind `json:"kind"`
	BlockHeight    uint64    `json:"block_height"`
	TxIndex        int       `json:"tx_index"`
	Principal      string    `json:"principal"`
	Counterparty   string    `json:"counterparty,omitempty"`
	ProductID      uint64    `json:"product_id,omitempty"`
	AuctionID      uint64    `json:"auction_id,omitempty"`
	Amount         uint64    `json:"amount,omitempty"`
	PreviousAmount uint64    `json:"previous_amount,omitempty"`
	Rating         uint64    `json:"rating,omitempty"`
	Name           string    `json:"name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Subject returns the JetStream subject the event is archived under.
func (e *VaultEvent) Subject() string {
	return EventSubjectPrefix + string(e.Kind)
}

// Topic returns the fan-out topic for the event: "auction:{id}",
// "product:{id}" or "brand:{owner}".
func (e *VaultEvent) Topic() string {
	switch e.Kind {
	case EventAuctionCreated, EventBidPlaced, EventAuctionEnded:
		return fmt.Sprintf("auction:%d", e.AuctionID)
	case EventProductListed, EventProductPurchased, EventReviewAdded:
		return fmt.Sprintf("product:%d", e.ProductID)
	default:
		return fmt.Sprintf("brand:%s", e.Principal)
	}
}
