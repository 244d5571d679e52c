package vault

import (
	"strings"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Text bounds, in bytes of printable ASCII.
const (
	MaxNameLength        = 50
	MaxDescriptionLength = 500
	MaxCommentLength     = 500
	MaxPrincipalLength   = 128

	MinRating = 1
	MaxRating = 5
)

// Principal is an opaque participant identity supplied by the hosting ledger.
type Principal string

// Valid reports whether p is non-empty, bounded and free of whitespace.
func (p Principal) Valid() bool {
	if p == "" || len(p) > MaxPrincipalLength {
		return false
	}
	return !strings.ContainsAny(string(p), " \t\r\n")
}

// Brand is a registered seller identity.
type Brand struct {
	Owner    Principal `json:"owner"`
	Name     string    `json:"name"`
	Verified bool      `json:"verified"`
}

// Product is a fixed-price listing that can be purchased once.
type Product struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       uint64    `json:"price"`
	Seller      Principal `json:"seller"`
	Available   bool      `json:"available"`
}

// Auction is a bidding process that closes at EndTime (a block height).
type Auction struct {
	ID            uint64            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	MinPrice      uint64            `json:"min_price"`
	Seller        Principal         `json:"seller"`
	HighestBid    uint64            `json:"highest_bid"`
	HighestBidder Option[Principal] `json:"highest_bidder"`
	EndTime       uint64            `json:"end_time"`
	IsActive      bool              `json:"is_active"`
}

// Status returns the auction's state machine position.
func (a Auction) Status() string {
	if a.IsActive {
		return models.AuctionStatusActive
	}
	return models.AuctionStatusEnded
}

// Review is one reviewer's rating of one product.
type Review struct {
	ProductID uint64    `json:"product_id"`
	Reviewer  Principal `json:"reviewer"`
	Rating    uint64    `json:"rating"`
	Comment   string    `json:"comment"`
}

// ReviewSummary aggregates the ratings of a product.
type ReviewSummary struct {
	ProductID uint64  `json:"product_id"`
	Count     uint64  `json:"count"`
	Total     uint64  `json:"total"`
	Average   float64 `json:"average"`
}

type reviewKey struct {
	productID uint64
	reviewer  Principal
}

type ratingTotals struct {
	count uint64
	total uint64
}

func validateText(field, value string, min, max int) error {
	if len(value) < min {
		return NewError(CodeInvalidInput, "%s is required", field)
	}
	if len(value) > max {
		return NewError(CodeInvalidInput, "%s exceeds %d bytes", field, max)
	}
	for i := 0; i < len(value); i++ {
		if c := value[i]; c < 0x20 || c > 0x7e {
			return NewError(CodeInvalidInput, "%s must be printable ASCII", field)
		}
	}
	if min > 0 && strings.TrimSpace(value) == "" {
		return NewError(CodeInvalidInput, "%s is required", field)
	}
	return nil
}
