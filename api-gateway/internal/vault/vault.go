package vault

import (
	"errors"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Bank moves value between principals. It is provided by the hosting ledger.
type Bank interface {
	Balance(p Principal) uint64
	Transfer(from, to Principal, amount uint64) error
}

// Env is the execution environment of a single action.
type Env struct {
	Sender Principal
	Height uint64

	events []models.VaultEvent
}

// NewEnv returns the environment for an action sent by sender at height.
func NewEnv(sender Principal, height uint64) *Env {
	return &Env{Sender: sender, Height: height}
}

// Events returns the events emitted by the action so far.
func (e *Env) Events() []models.VaultEvent {
	return e.events
}

func (e *Env) emit(ev models.VaultEvent) {
	ev.BlockHeight = e.Height
	if ev.Principal == "" {
		ev.Principal = string(e.Sender)
	}
	e.events = append(e.events, ev)
}

// Vault holds the four registries.
type Vault struct {
	owner  Principal
	escrow Principal
	bank   Bank

	brands   map[Principal]Brand
	products map[uint64]Product
	auctions map[uint64]Auction
	reviews  map[reviewKey]Review
	ratings  map[uint64]ratingTotals

	lastProductID uint64
	lastAuctionID uint64
}

// New returns an empty vault. owner may verify brands; escrow is the
// principal holding bids until an auction settles.
func New(owner, escrow Principal, bank Bank) (*Vault, error) {
	if !owner.Valid() {
		return nil, errors.New("vault owner principal is invalid")
	}
	if !escrow.Valid() {
		return nil, errors.New("vault escrow principal is invalid")
	}
	if owner == escrow {
		return nil, errors.New("vault escrow must differ from owner")
	}
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	return &Vault{
		owner:    owner,
		escrow:   escrow,
		bank:     bank,
		brands:   make(map[Principal]Brand),
		products: make(map[uint64]Product),
		auctions: make(map[uint64]Auction),
		reviews:  make(map[reviewKey]Review),
		ratings:  make(map[uint64]ratingTotals),
	}, nil
}

// Owner returns the contract owner.
func (v *Vault) Owner() Principal { return v.owner }

// Escrow returns the principal holding auction bids.
func (v *Vault) Escrow() Principal { return v.escrow }

// LastProductID returns the most recently assigned product id (0 if none).
func (v *Vault) LastProductID() uint64 { return v.lastProductID }

// LastAuctionID returns the most recently assigned auction id (0 if none).
func (v *Vault) LastAuctionID() uint64 { return v.lastAuctionID }

// checkSender rejects a missing environment, malformed senders and the escrow
// principal, which only moves value on the vault's behalf.
func (v *Vault) checkSender(env *Env) error {
	if env == nil {
		return NewError(CodeInvalidInput, "execution environment is required")
	}
	if !env.Sender.Valid() {
		return NewError(CodeInvalidInput, "sender principal is invalid")
	}
	if env.Sender == v.escrow {
		return NewError(CodeUnauthorized, "escrow principal cannot send transactions")
	}
	return nil
}

// transfer converts bank failures into INSUFFICIENT_FUNDS.
func (v *Vault) transfer(from, to Principal, amount uint64) error {
	if err := v.bank.Transfer(from, to, amount); err != nil {
		if CodeOf(err) != "" {
			return err
		}
		return NewError(CodeInsufficientFunds, "transfer of %d from %s: %v", amount, from, err)
	}
	return nil
}
