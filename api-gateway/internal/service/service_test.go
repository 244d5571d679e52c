package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	redisClient "github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/redis"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

const (
	deployer vault.Principal = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1  vault.Principal = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
	wallet2  vault.Principal = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
	wallet3  vault.Principal = "ST2JHG361ZXG51QTKY2NQCVBPPRRE2KZB1HR05NNC"
)

type fakeMirror struct {
	mu   sync.Mutex
	bids map[uint64]models.BidMirror
	err  error
}

func (m *fakeMirror) MirrorBid(_ context.Context, auctionID uint64, bidder string, amount uint64) (*redisClient.MirrorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.bids == nil {
		m.bids = make(map[uint64]models.BidMirror)
	}
	prev := m.bids[auctionID]
	if amount <= prev.HighestBid {
		return &redisClient.MirrorResult{PreviousBid: prev.HighestBid}, nil
	}
	m.bids[auctionID] = models.BidMirror{AuctionID: auctionID, HighestBid: amount, HighestBidder: bidder}
	return &redisClient.MirrorResult{Updated: true, PreviousBid: prev.HighestBid}, nil
}

func (m *fakeMirror) GetAuctionBid(_ context.Context, auctionID uint64) (models.BidMirror, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.BidMirror{}, m.err
	}
	return models.BidMirror{AuctionID: auctionID, HighestBid: m.bids[auctionID].HighestBid, HighestBidder: m.bids[auctionID].HighestBidder}, nil
}

type recorder struct {
	mu        sync.Mutex
	topics    []string
	published []models.VaultEvent
	archived  []models.VaultEvent
	err       error
}

func (r *recorder) PublishEvent(_ context.Context, topic string, event *models.VaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.published = append(r.published, *event)
	return r.err
}

func (r *recorder) Archive(_ context.Context, event *models.VaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, *event)
	return r.err
}

type countingSubmitter struct {
	next  Submitter
	mu    sync.Mutex
	calls int
}

func (c *countingSubmitter) Submit(ctx context.Context, tx chain.Tx) (chain.Receipt, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Submit(ctx, tx)
}

type fixture struct {
	chain     *chain.Chain
	svc       *VaultService
	mirror    *fakeMirror
	events    *recorder
	submitter *countingSubmitter
}

func newFixture(t *testing.T, devMode bool) *fixture {
	t.Helper()
	c, err := chain.New(chain.Options{
		Owner: deployer,
		Genesis: map[vault.Principal]uint64{
			wallet1: 1_000_000_000,
			wallet2: 1_000_000_000,
			wallet3: 1_000_000_000,
		},
	})
	require.NoError(t, err)

	f := &fixture{
		chain:     c,
		mirror:    &fakeMirror{},
		events:    &recorder{},
		submitter: &countingSubmitter{next: c},
	}
	f.svc, err = NewVaultService(Options{
		Ledger:      c,
		Submitter:   f.submitter,
		Mirror:      f.mirror,
		Broadcaster: f.events,
		Archiver:    f.events,
		DevMode:     devMode,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) openAuction(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()
	receipt, err := f.svc.RegisterBrand(ctx, wallet1, &models.RegisterBrandRequest{Name: "Test Brand"})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	receipt, err = f.svc.CreateAuction(ctx, wallet1, &models.CreateAuctionRequest{
		Name: "Auction Item", Description: "Special auction item", MinPrice: 1_000_000, Duration: 10,
	})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	return receipt.Result.Value.(uint64)
}

func TestNewVaultServiceRequiresLedgerAndSubmitter(t *testing.T) {
	t.Parallel()

	_, err := NewVaultService(Options{})
	require.Error(t, err)

	c, err := chain.New(chain.Options{Owner: deployer})
	require.NoError(t, err)
	_, err = NewVaultService(Options{Ledger: c})
	require.Error(t, err)

	svc, err := NewVaultService(Options{Ledger: c, Submitter: c, Logger: zerolog.Nop()})
	require.NoError(t, err)
	receipt, err := svc.RegisterBrand(context.Background(), wallet1, &models.RegisterBrandRequest{Name: "Solo"})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	svc.Close()
}

func TestSubmitFansOutEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()

	receipt, err := f.svc.RegisterBrand(ctx, wallet1, &models.RegisterBrandRequest{Name: "Test Brand"})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)

	receipt, err = f.svc.ListProduct(ctx, wallet1, &models.ListProductRequest{
		Name: "Test Product", Description: "A great product", Price: 1_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Result.Value)

	receipt, err = f.svc.PurchaseProduct(ctx, wallet2, 1)
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	f.svc.Close()

	require.Len(t, f.events.published, 3)
	require.Len(t, f.events.archived, 3)
	require.ElementsMatch(t,
		[]string{"brand:" + string(wallet1), "product:1", "product:1"},
		f.events.topics,
	)
}

func TestRejectedTransactionsAreNotPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	receipt, err := f.svc.ListProduct(context.Background(), wallet1, &models.ListProductRequest{
		Name: "Test Product", Price: 1,
	})
	require.NoError(t, err)
	require.False(t, receipt.Result.OK)
	require.Equal(t, vault.CodeUnauthorized, receipt.Result.Err.Code)
	f.svc.Close()

	require.Empty(t, f.events.published)
	require.Empty(t, f.events.archived)
}

func TestFanOutFailuresDoNotFailTheAction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.events.err = errors.New("redis down")
	f.mirror.err = errors.New("redis down")

	auctionID := f.openAuction(t)
	resp, err := f.svc.PlaceBid(context.Background(), wallet2, auctionID, &models.BidRequest{Amount: 1_100_000})
	require.NoError(t, err)
	require.True(t, resp.Success)
	f.svc.Close()

	// Falls back to the ledger while the mirror is down.
	bid, ok := f.svc.AuctionBid(context.Background(), auctionID)
	require.True(t, ok)
	require.Equal(t, uint64(1_100_000), bid.HighestBid)
	require.Equal(t, string(wallet2), bid.HighestBidder)
}

func TestPlaceBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()
	auctionID := f.openAuction(t)

	resp, err := f.svc.PlaceBid(ctx, wallet2, auctionID, &models.BidRequest{Amount: 1_100_000})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.True(t, resp.IsHighest)
	require.NotEmpty(t, resp.EventID)
	require.Equal(t, uint64(1_100_000), resp.CurrentBid)

	resp, err = f.svc.PlaceBid(ctx, wallet3, auctionID, &models.BidRequest{Amount: 1_200_000})
	require.NoError(t, err)
	require.True(t, resp.Success)
	f.svc.Close()

	bid, ok := f.svc.AuctionBid(ctx, auctionID)
	require.True(t, ok)
	require.Equal(t, uint64(1_200_000), bid.HighestBid)
	require.Equal(t, string(wallet3), bid.HighestBidder)

	// wallet2 was refunded when outbid.
	require.Equal(t, uint64(1_000_000_000), f.svc.Balance(wallet2))
}

func TestPlaceBidCacheRejectsWithoutSubmitting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()
	auctionID := f.openAuction(t)

	resp, err := f.svc.PlaceBid(ctx, wallet2, auctionID, &models.BidRequest{Amount: 1_500_000})
	require.NoError(t, err)
	require.True(t, resp.Success)
	before := f.submitter.calls

	resp, err = f.svc.PlaceBid(ctx, wallet3, auctionID, &models.BidRequest{Amount: 1_500_000})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, string(vault.CodeInvalidInput), resp.Code)
	require.Equal(t, uint64(1_500_000), resp.CurrentBid)
	require.Equal(t, before, f.submitter.calls)
	f.svc.Close()
}

func TestPlaceBidStaleCacheIsVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()
	auctionID := f.openAuction(t)

	// Poison the cache with a price the ledger never saw.
	f.svc.priceCache.Store(auctionID, uint64(5_000_000))

	resp, err := f.svc.PlaceBid(ctx, wallet2, auctionID, &models.BidRequest{Amount: 1_100_000})
	require.NoError(t, err)
	require.True(t, resp.Success)
	f.svc.Close()

	cached, ok := f.svc.priceCache.Load(auctionID)
	require.True(t, ok)
	require.Equal(t, uint64(1_100_000), cached)
}

func TestPlaceBidLedgerRejection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()
	auctionID := f.openAuction(t)

	resp, err := f.svc.PlaceBid(ctx, wallet1, auctionID, &models.BidRequest{Amount: 2_000_000})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, string(vault.CodeInvalidInput), resp.Code)

	resp, err = f.svc.PlaceBid(ctx, wallet2, 42, &models.BidRequest{Amount: 2_000_000})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, string(vault.CodeNotFound), resp.Code)
	f.svc.Close()

	_, ok := f.svc.AuctionBid(ctx, 42)
	require.False(t, ok)
}

func TestPlaceBidLowOnClosedAuctionReportsState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	auctionID := f.openAuction(t)

	resp, err := f.svc.PlaceBid(ctx, wallet2, auctionID, &models.BidRequest{Amount: 1_500_000})
	require.NoError(t, err)
	require.True(t, resp.Success)

	_, err = f.svc.Advance(ctx, 20)
	require.NoError(t, err)
	before := f.submitter.calls

	// The cached price would reject this bid, but the closed auction wins.
	resp, err = f.svc.PlaceBid(ctx, wallet3, auctionID, &models.BidRequest{Amount: 1_200_000})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, string(vault.CodeInvalidState), resp.Code)
	require.Equal(t, before+1, f.submitter.calls)

	resp, err = f.svc.PlaceBid(ctx, wallet3, auctionID, &models.BidRequest{Amount: 2_000_000})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, string(vault.CodeInvalidState), resp.Code)
	f.svc.Close()
}

func TestEndAuctionAndAdvance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	locked := newFixture(t, false)
	_, err := locked.svc.Advance(ctx, 20)
	require.ErrorIs(t, err, ErrAdvanceDisabled)

	f := newFixture(t, true)
	auctionID := f.openAuction(t)
	resp, err := f.svc.PlaceBid(ctx, wallet2, auctionID, &models.BidRequest{Amount: 1_100_000})
	require.NoError(t, err)
	require.True(t, resp.Success)

	receipt, err := f.svc.EndAuction(ctx, wallet3, auctionID)
	require.NoError(t, err)
	require.False(t, receipt.Result.OK)
	require.Equal(t, vault.CodeInvalidState, receipt.Result.Err.Code)

	height, err := f.svc.Advance(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(20), height)
	require.Equal(t, uint64(20), f.svc.Height())

	receipt, err = f.svc.EndAuction(ctx, wallet3, auctionID)
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	f.svc.Close()

	auction, ok := f.svc.GetAuction(auctionID).Get()
	require.True(t, ok)
	require.False(t, auction.IsActive)
	require.Equal(t, uint64(1_001_100_000), f.svc.Balance(wallet1))
}

func TestReviewsAndQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	receipt, err := f.svc.AddReview(ctx, wallet1, 1, &models.ReviewRequest{Rating: 5, Comment: "Excellent product!"})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	receipt, err = f.svc.AddReview(ctx, wallet2, 1, &models.ReviewRequest{Rating: 2})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	receipt, err = f.svc.AddReview(ctx, wallet2, 1, &models.ReviewRequest{Rating: 6})
	require.NoError(t, err)
	require.False(t, receipt.Result.OK)
	f.svc.Close()

	review, ok := f.svc.GetReview(1, wallet1).Get()
	require.True(t, ok)
	require.Equal(t, uint64(5), review.Rating)
	require.False(t, f.svc.GetReview(1, wallet3).IsSome())

	summary := f.svc.GetReviewSummary(1)
	require.Equal(t, uint64(2), summary.Count)
	require.Equal(t, uint64(7), summary.Total)

	require.False(t, f.svc.GetBrand(wallet1).IsSome())
	require.False(t, f.svc.GetProduct(1).IsSome())

	receipt, err = f.svc.RegisterBrand(ctx, wallet1, &models.RegisterBrandRequest{Name: "Test Brand"})
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	receipt, err = f.svc.VerifyBrand(ctx, deployer, wallet1)
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	brand, ok := f.svc.GetBrand(wallet1).Get()
	require.True(t, ok)
	require.True(t, brand.Verified)
	f.svc.Close()
}
