package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	redisClient "github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/redis"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// ErrAdvanceDisabled is returned by Advance outside development mode.
var ErrAdvanceDisabled = errors.New("advancing the chain is disabled")

// Submitter orders a transaction into a block. Both *chain.Chain (instant
// mining) and *chain.Miner (interval mining) satisfy it.
type Submitter interface {
	Submit(ctx context.Context, tx chain.Tx) (chain.Receipt, error)
}

// Ledger is the read side of the hosting chain.
type Ledger interface {
	Height() uint64
	Balance(p vault.Principal) uint64
	Read(fn func(v *vault.Vault))
	MineEmptyBlockUntil(ctx context.Context, height uint64) (uint64, error)
}

// BidMirror keeps the latest accepted bid of each auction in a fast store.
type BidMirror interface {
	MirrorBid(ctx context.Context, auctionID uint64, bidder string, amount uint64) (*redisClient.MirrorResult, error)
	GetAuctionBid(ctx context.Context, auctionID uint64) (models.BidMirror, error)
}

// EventBroadcaster pushes events to real-time subscribers.
type EventBroadcaster interface {
	PublishEvent(ctx context.Context, topic string, event *models.VaultEvent) error
}

// EventArchiver hands events to durable storage.
type EventArchiver interface {
	Archive(ctx context.Context, event *models.VaultEvent) error
}

// Options wires a VaultService. Mirror, Broadcaster and Archiver are optional.
type Options struct {
	Ledger      Ledger
	Submitter   Submitter
	Mirror      BidMirror
	Broadcaster EventBroadcaster
	Archiver    EventArchiver
	// DevMode enables Advance.
	DevMode bool
	Logger  zerolog.Logger
}

// VaultService handles the gateway workflow around the vault:
// 1. Submit the action to the ledger and wait for its receipt
// 2. Mirror accepted bids into Redis
// 3. Publish events to Redis Pub/Sub for real-time broadcast
// 4. Publish events to JetStream for archival
//
// Steps 2-4 run after the receipt is returned and never fail the action.
type VaultService struct {
	ledger      Ledger
	submitter   Submitter
	mirror      BidMirror
	broadcaster EventBroadcaster
	archiver    EventArchiver
	devMode     bool
	log         zerolog.Logger

	priceCache sync.Map // auctionID -> highest accepted bid (uint64)
	fanout     sync.WaitGroup
}

// NewVaultService creates a new vault service.
func NewVaultService(opts Options) (*VaultService, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	return &VaultService{
		ledger:      opts.Ledger,
		submitter:   opts.Submitter,
		mirror:      opts.Mirror,
		broadcaster: opts.Broadcaster,
		archiver:    opts.Archiver,
		devMode:     opts.DevMode,
		log:         opts.Logger,
	}, nil
}

// Submit sends tx to the ledger and fans out the events of a successful receipt.
func (s *VaultService) Submit(ctx context.Context, tx chain.Tx) (chain.Receipt, error) {
	receipt, err := s.submitter.Submit(ctx, tx)
	if err != nil {
		return chain.Receipt{}, fmt.Errorf("submit %s: %w", tx.Method, err)
	}
	if !receipt.Result.OK {
		s.log.Debug().
			Str("method", tx.Method).
			Str("sender", string(tx.Sender)).
			Str("code", string(receipt.Result.Err.Code)).
			Msg("transaction rejected")
		return receipt, nil
	}
	s.publish(receipt.Events)
	return receipt, nil
}

// RegisterBrand registers a brand for sender.
func (s *VaultService) RegisterBrand(ctx context.Context, sender vault.Principal, req *models.RegisterBrandRequest) (chain.Receipt, error) {
	return s.Submit(ctx, chain.RegisterBrand(sender, req.Name))
}

// VerifyBrand marks owner's brand verified. Only the vault owner succeeds.
func (s *VaultService) VerifyBrand(ctx context.Context, sender, owner vault.Principal) (chain.Receipt, error) {
	return s.Submit(ctx, chain.VerifyBrand(sender, owner))
}

// ListProduct lists a product; the receipt value is the new product id.
func (s *VaultService) ListProduct(ctx context.Context, sender vault.Principal, req *models.ListProductRequest) (chain.Receipt, error) {
	return s.Submit(ctx, chain.ListProduct(sender, req.Name, req.Description, req.Price))
}

// PurchaseProduct buys product id.
func (s *VaultService) PurchaseProduct(ctx context.Context, sender vault.Principal, id uint64) (chain.Receipt, error) {
	return s.Submit(ctx, chain.PurchaseProduct(sender, id))
}

// CreateAuction opens an auction; the receipt value is the new auction id.
func (s *VaultService) CreateAuction(ctx context.Context, sender vault.Principal, req *models.CreateAuctionRequest) (chain.Receipt, error) {
	return s.Submit(ctx, chain.CreateAuction(sender, req.Name, req.Description, req.MinPrice, req.Duration))
}

// EndAuction closes auction id.
func (s *VaultService) EndAuction(ctx context.Context, sender vault.Principal, id uint64) (chain.Receipt, error) {
	receipt, err := s.Submit(ctx, chain.EndAuction(sender, id))
	if err == nil && receipt.Result.OK {
		s.priceCache.Delete(id)
	}
	return receipt, err
}

// AddReview records sender's review of product id.
func (s *VaultService) AddReview(ctx context.Context, sender vault.Principal, productID uint64, req *models.ReviewRequest) (chain.Receipt, error) {
	return s.Submit(ctx, chain.AddReview(sender, productID, req.Rating, req.Comment))
}

// GetBrand returns owner's brand.
func (s *VaultService) GetBrand(owner vault.Principal) vault.Option[vault.Brand] {
	var out vault.Option[vault.Brand]
	s.ledger.Read(func(v *vault.Vault) { out = v.GetBrand(owner) })
	return out
}

// GetProduct returns product id.
func (s *VaultService) GetProduct(id uint64) vault.Option[vault.Product] {
	var out vault.Option[vault.Product]
	s.ledger.Read(func(v *vault.Vault) { out = v.GetProduct(id) })
	return out
}

// GetAuction returns auction id.
func (s *VaultService) GetAuction(id uint64) vault.Option[vault.Auction] {
	var out vault.Option[vault.Auction]
	s.ledger.Read(func(v *vault.Vault) { out = v.GetAuction(id) })
	return out
}

// GetReview returns reviewer's review of product id.
func (s *VaultService) GetReview(productID uint64, reviewer vault.Principal) vault.Option[vault.Review] {
	var out vault.Option[vault.Review]
	s.ledger.Read(func(v *vault.Vault) { out = v.GetReview(productID, reviewer) })
	return out
}

// GetReviewSummary returns the rating aggregate of product id.
func (s *VaultService) GetReviewSummary(productID uint64) vault.ReviewSummary {
	var out vault.ReviewSummary
	s.ledger.Read(func(v *vault.Vault) { out = v.GetReviewSummary(productID) })
	return out
}

// Height returns the current block height.
func (s *VaultService) Height() uint64 {
	return s.ledger.Height()
}

// Balance returns p's token balance.
func (s *VaultService) Balance(p vault.Principal) uint64 {
	return s.ledger.Balance(p)
}

// Advance mines empty blocks up to height. Development only.
func (s *VaultService) Advance(ctx context.Context, height uint64) (uint64, error) {
	if !s.devMode {
		return 0, ErrAdvanceDisabled
	}
	return s.ledger.MineEmptyBlockUntil(ctx, height)
}

// Close waits for pending event fan-out.
func (s *VaultService) Close() {
	s.fanout.Wait()
}

// publish fans events out in the background.
// The write path doesn't depend on broadcast or archival.
func (s *VaultService) publish(events []models.VaultEvent) {
	for i := range events {
		event := events[i]
		s.fanout.Add(1)
		go func() {
			defer s.fanout.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.deliver(ctx, &event)
		}()
	}
}

func (s *VaultService) deliver(ctx context.Context, event *models.VaultEvent) {
	logger := s.log.With().Str("event_id", event.EventID).Str("kind", string(event.Kind)).Logger()

	if event.Kind == models.EventBidPlaced && s.mirror != nil {
		if _, err := s.mirror.MirrorBid(ctx, event.AuctionID, event.Principal, event.Amount); err != nil {
			logger.Warn().Err(err).Msg("failed to mirror bid")
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.PublishEvent(ctx, event.Topic(), event); err != nil {
			logger.Warn().Err(err).Msg("failed to broadcast event")
		}
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, event); err != nil {
			logger.Warn().Err(err).Msg("failed to publish to archival queue")
		}
	}
}
