package service

import (
	"context"
	"fmt"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// PlaceBid handles the bid workflow:
// 1. Pre-filter using the local price cache (fast rejection)
// 2. Submit the bid to the ledger, which decides
// 3. On success, refresh the cache and fan the event out
func (s *VaultService) PlaceBid(ctx context.Context, sender vault.Principal, auctionID uint64, req *models.BidRequest) (*models.BidResponse, error) {
	if cached, ok := s.priceCache.Load(auctionID); ok && req.Amount <= cached.(uint64) {
		// The cache may be stale and the auction may have closed, so confirm
		// against the ledger. Only an open auction is rejected here; anything
		// else falls through so the ledger reports the authoritative error.
		auction, found := s.GetAuction(auctionID).Get()
		nextHeight := s.ledger.Height() + 1
		if found && auction.HighestBid != cached.(uint64) {
			s.log.Debug().
				Uint64("auction_id", auctionID).
				Uint64("cached", cached.(uint64)).
				Uint64("actual", auction.HighestBid).
				Msg("price cache out of date")
			s.priceCache.Store(auctionID, auction.HighestBid)
		}
		if found && auction.IsActive && nextHeight < auction.EndTime && req.Amount <= auction.HighestBid {
			return &models.BidResponse{
				Success:    false,
				Code:       string(vault.CodeInvalidInput),
				Message:    fmt.Sprintf("Bid too low. Current highest bid is %d", auction.HighestBid),
				CurrentBid: auction.HighestBid,
				YourBid:    req.Amount,
				Height:     nextHeight - 1,
			}, nil
		}
	}

	receipt, err := s.Submit(ctx, chain.PlaceBid(sender, auctionID, req.Amount))
	if err != nil {
		return nil, fmt.Errorf("failed to place bid: %w", err)
	}

	if !receipt.Result.OK {
		current := s.highestBid(auctionID)
		s.priceCache.Store(auctionID, current)
		return &models.BidResponse{
			Success:    false,
			Code:       string(receipt.Result.Err.Code),
			Message:    receipt.Result.Err.Message,
			CurrentBid: current,
			YourBid:    req.Amount,
			Height:     receipt.Height,
		}, nil
	}

	s.priceCache.Store(auctionID, req.Amount)
	var eventID string
	if len(receipt.Events) > 0 {
		eventID = receipt.Events[0].EventID
	}
	return &models.BidResponse{
		Success:    true,
		Message:    "Bid placed successfully!",
		CurrentBid: req.Amount,
		YourBid:    req.Amount,
		IsHighest:  true,
		Height:     receipt.Height,
		EventID:    eventID,
	}, nil
}

// AuctionBid returns the mirrored highest bid of an auction, falling back to
// the ledger when no mirror is configured or the mirror is unreachable.
func (s *VaultService) AuctionBid(ctx context.Context, auctionID uint64) (models.BidMirror, bool) {
	auction, ok := s.GetAuction(auctionID).Get()
	if !ok {
		return models.BidMirror{}, false
	}
	if s.mirror != nil {
		mirror, err := s.mirror.GetAuctionBid(ctx, auctionID)
		if err == nil {
			return mirror, true
		}
		s.log.Warn().Err(err).Uint64("auction_id", auctionID).Msg("bid mirror unavailable, reading ledger")
	}
	bidder, _ := auction.HighestBidder.Get()
	return models.BidMirror{
		AuctionID:     auctionID,
		HighestBid:    auction.HighestBid,
		HighestBidder: string(bidder),
	}, true
}

func (s *VaultService) highestBid(auctionID uint64) uint64 {
	auction, _ := s.GetAuction(auctionID).Get()
	return auction.HighestBid
}
