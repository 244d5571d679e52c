package vault

import "github.com/Gideonite22/clarity-trend-vault/shared/models"

// CreateAuction opens an auction by the sender, who must own a brand. The
// auction accepts bids until the block height reaches env.Height+duration.
func (v *Vault) CreateAuction(env *Env, name, description string, minPrice, duration uint64) (uint64, error) {
	if err := v.checkSender(env); err != nil {
		return 0, err
	}
	if err := v.requireBrand(env.Sender); err != nil {
		return 0, err
	}
	if err := validateText("auction name", name, 1, MaxNameLength); err != nil {
		return 0, err
	}
	if err := validateText("auction description", description, 0, MaxDescriptionLength); err != nil {
		return 0, err
	}
	if minPrice == 0 {
		return 0, NewError(CodeInvalidInput, "minimum price must be greater than zero")
	}
	if duration == 0 {
		return 0, NewError(CodeInvalidInput, "duration must be at least one block")
	}
	endTime := env.Height + duration
	if endTime < env.Height {
		return 0, NewError(CodeInvalidInput, "duration overflows the block height")
	}

	id := v.lastAuctionID + 1
	v.auctions[id] = Auction{
		ID:            id,
		Name:          name,
		Description:   description,
		MinPrice:      minPrice,
		Seller:        env.Sender,
		HighestBidder: None[Principal](),
		EndTime:       endTime,
		IsActive:      true,
	}
	v.lastAuctionID = id
	env.emit(models.VaultEvent{
		Kind:      models.EventAuctionCreated,
		AuctionID: id,
		Amount:    minPrice,
		Name:      name,
	})
	return id, nil
}

// PlaceBid escrows amount from the sender and makes it the highest bid. The
// previous highest bidder is refunded. A bid must reach the minimum price and
// strictly exceed the current highest bid.
func (v *Vault) PlaceBid(env *Env, id, amount uint64) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	auction, ok := v.auctions[id]
	if !ok {
		return NewError(CodeNotFound, "auction %d does not exist", id)
	}
	if !auction.IsActive {
		return NewError(CodeInvalidState, "auction %d has ended", id)
	}
	if env.Height >= auction.EndTime {
		return NewError(CodeInvalidState, "auction %d closed at height %d", id, auction.EndTime)
	}
	if auction.Seller == env.Sender {
		return NewError(CodeInvalidInput, "seller cannot bid on their own auction")
	}
	if amount < auction.MinPrice {
		return NewError(CodeInvalidInput, "bid %d is below the minimum price %d", amount, auction.MinPrice)
	}
	if amount <= auction.HighestBid {
		return NewError(CodeInvalidInput, "bid %d does not exceed the highest bid %d", amount, auction.HighestBid)
	}

	if err := v.transfer(env.Sender, v.escrow, amount); err != nil {
		return err
	}
	previous, hadBid := auction.HighestBidder.Get()
	if hadBid {
		if err := v.transfer(v.escrow, previous, auction.HighestBid); err != nil {
			// Undo the deposit so the action leaves no trace.
			if rbErr := v.bank.Transfer(v.escrow, env.Sender, amount); rbErr != nil {
				return NewError(CodeOf(err), "refund failed (%v); reversing deposit of %d to %s failed: %v",
					err, amount, env.Sender, rbErr)
			}
			return err
		}
	}

	previousBid := auction.HighestBid
	auction.HighestBid = amount
	auction.HighestBidder = Some(env.Sender)
	v.auctions[id] = auction
	env.emit(models.VaultEvent{
		Kind:           models.EventBidPlaced,
		Counterparty:   string(previous),
		AuctionID:      id,
		Amount:         amount,
		PreviousAmount: previousBid,
	})
	return nil
}

// EndAuction closes an auction once its end time has been reached and pays
// the winning bid to the seller. Anyone may end an auction.
func (v *Vault) EndAuction(env *Env, id uint64) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	auction, ok := v.auctions[id]
	if !ok {
		return NewError(CodeNotFound, "auction %d does not exist", id)
	}
	if !auction.IsActive {
		return NewError(CodeInvalidState, "auction %d has already ended", id)
	}
	if env.Height < auction.EndTime {
		return NewError(CodeInvalidState, "auction %d cannot end before height %d", id, auction.EndTime)
	}
	winner, hasWinner := auction.HighestBidder.Get()
	if hasWinner {
		if err := v.transfer(v.escrow, auction.Seller, auction.HighestBid); err != nil {
			return err
		}
	}

	auction.IsActive = false
	v.auctions[id] = auction
	env.emit(models.VaultEvent{
		Kind:         models.EventAuctionEnded,
		Counterparty: string(winner),
		AuctionID:    id,
		Amount:       auction.HighestBid,
		Name:         auction.Name,
	})
	return nil
}

// GetAuction returns the auction with id.
func (v *Vault) GetAuction(id uint64) Option[Auction] {
	if a, ok := v.auctions[id]; ok {
		return Some(a)
	}
	return None[Auction]()
}
