package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

func TestNewEventRow(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	row, err := newEventRow(&models.VaultEvent{
		EventID:        "evt-1",
		Kind:           models.EventBidPlaced,
		BlockHeight:    3,
		TxIndex:        1,
		Principal:      "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG",
		AuctionID:      1,
		Amount:         1_100_000,
		PreviousAmount: 1_000_000,
		Timestamp:      ts,
	})
	require.NoError(t, err)
	require.Equal(t, "auction.bid_placed", row.Kind)
	require.Equal(t, int64(3), row.BlockHeight)
	require.Equal(t, int64(1_100_000), row.Amount)
	require.Equal(t, time.UTC, row.OccurredAt.Location())

	_, err = newEventRow(&models.VaultEvent{Kind: models.EventBrandRegistered})
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = newEventRow(&models.VaultEvent{EventID: "evt-2", Amount: 1 << 63})
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.ErrorContains(t, err, "amount")
}

func TestBidFromEvent(t *testing.T) {
	t.Parallel()

	bid := bidFromEvent(&models.VaultEvent{
		EventID:        "evt-1",
		Kind:           models.EventBidPlaced,
		Principal:      "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG",
		AuctionID:      4,
		Amount:         1_200_000,
		PreviousAmount: 1_100_000,
		BlockHeight:    9,
	})
	require.Equal(t, uint64(4), bid.AuctionID)
	require.Equal(t, "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG", bid.Bidder)
	require.Equal(t, uint64(1_100_000), bid.PreviousBid)
}

// TestPostgresArchive runs against a real database when POSTGRES_TEST_URL is set.
func TestPostgresArchive(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	db, err := NewPostgresClient(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.InitSchema(ctx))

	auctionID := uint64(time.Now().UnixNano() & 0x7fffffff)
	now := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i, amount := range []uint64{1_100_000, 1_200_000} {
		event := &models.VaultEvent{
			EventID:     uuid.New().String(),
			Kind:        models.EventBidPlaced,
			BlockHeight: uint64(10 + i),
			Principal:   fmt.Sprintf("ST-test-%d", i),
			AuctionID:   auctionID,
			Amount:      amount,
			Timestamp:   now,
		}
		ids = append(ids, event.EventID)

		inserted, err := db.InsertEvent(ctx, event)
		require.NoError(t, err)
		require.True(t, inserted)

		// Redelivery is a no-op.
		inserted, err = db.InsertEvent(ctx, event)
		require.NoError(t, err)
		require.False(t, inserted)
	}

	bids, err := db.BidHistory(ctx, auctionID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, ids[1], bids[0].EventID)
	require.Equal(t, uint64(1_200_000), bids[0].Amount)
}
