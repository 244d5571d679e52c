package models

import "time"

// Bid is one accepted bid as recorded by the archive.
type Bid struct {
	EventID     string    `json:"event_id" db:"event_id"`
	AuctionID   uint64    `json:"auction_id" db:"auction_id"`
	Bidder      string    `json:"bidder" db:"bidder"`
	Amount      uint64    `json:"amount" db:"amount"`
	PreviousBid uint64    `json:"previous_bid" db:"previous_bid"`
	BlockHeight uint64    `json:"block_height" db:"block_height"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// BidRequest represents the incoming bid request from API
type BidRequest struct {
	Amount uint64 `json:"amount"`
}

// BidResponse represents the API response after placing a bid
type BidResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	CurrentBid uint64 `json:"current_bid"`
	YourBid    uint64 `json:"your_bid"`
	IsHighest  bool   `json:"is_highest"`
	Height     uint64 `json:"height,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

// BidMirror is the last bid known to the Redis mirror for an auction.
type BidMirror struct {
	AuctionID     uint64 `json:"auction_id"`
	HighestBid    uint64 `json:"highest_bid"`
	HighestBidder string `json:"highest_bidder,omitempty"`
}
