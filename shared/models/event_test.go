package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaultEventTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event VaultEvent
		want  string
	}{
		{"bid", VaultEvent{Kind: EventBidPlaced, AuctionID: 7}, "auction:7"},
		{"auction ended", VaultEvent{Kind: EventAuctionEnded, AuctionID: 2}, "auction:2"},
		{"purchase", VaultEvent{Kind: EventProductPurchased, ProductID: 3}, "product:3"},
		{"review", VaultEvent{Kind: EventReviewAdded, ProductID: 1}, "product:1"},
		{"brand", VaultEvent{Kind: EventBrandRegistered, Principal: "ST1ABC"}, "brand:ST1ABC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.event.Topic())
		})
	}
}

func TestVaultEventSubject(t *testing.T) {
	t.Parallel()

	e := VaultEvent{Kind: EventBidPlaced}
	require.Equal(t, "vault.events.auction.bid_placed", e.Subject())
}
