// Package chain hosts the vault the way a ledger runtime would: it owns the
// block height, the native token bank and the ordering of transactions.
// Every transaction is applied atomically and independently of the others in
// its block.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// ErrHalted is returned once the chain failed to persist a block.
var ErrHalted = errors.New("chain halted")

// Result is the outcome of one transaction: ok with a value, or a coded error.
type Result struct {
	OK    bool         `json:"ok"`
	Value any          `json:"value,omitempty"`
	Err   *vault.Error `json:"error,omitempty"`
}

// Receipt records how a transaction was applied.
type Receipt struct {
	Height  uint64              `json:"height"`
	TxIndex int                 `json:"tx_index"`
	Sender  vault.Principal     `json:"sender"`
	Method  string              `json:"method"`
	Result  Result              `json:"result"`
	Events  []models.VaultEvent `json:"events,omitempty"`
}

// Block is a mined batch of transactions.
type Block struct {
	Height   uint64    `json:"height"`
	MinedAt  time.Time `json:"mined_at"`
	Txs      []Tx      `json:"txs"`
	Receipts []Receipt `json:"receipts"`
}

// BlockStore persists mined blocks so the chain can be replayed on restart.
type BlockStore interface {
	AppendBlock(ctx context.Context, block Block) error
	Blocks(ctx context.Context) ([]Block, error)
}

// Options configures a Chain.
type Options struct {
	// Owner deploys the vault and may verify brands.
	Owner vault.Principal
	// Escrow holds auction bids; defaults to "<owner>.trend-vault".
	Escrow vault.Principal
	// Genesis seeds the bank.
	Genesis map[vault.Principal]uint64
	// Store is optional; without it blocks live only in memory.
	Store BlockStore
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID generates event ids; defaults to random UUIDs.
	NewID func() string
}

// Chain serializes all access to the vault and the bank.
type Chain struct {
	mu     sync.Mutex
	height uint64
	vault  *vault.Vault
	bank   *Bank
	store  BlockStore
	now    func() time.Time
	newID  func() string
	halted error
}

// New deploys an empty vault at height 0.
func New(opts Options) (*Chain, error) {
	escrow := opts.Escrow
	if escrow == "" {
		escrow = opts.Owner + ".trend-vault"
	}
	bank := NewBank(opts.Genesis)
	v, err := vault.New(opts.Owner, escrow, bank)
	if err != nil {
		return nil, fmt.Errorf("deploy vault: %w", err)
	}
	c := &Chain{
		vault: v,
		bank:  bank,
		store: opts.Store,
		now:   opts.Now,
		newID: opts.NewID,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	return c, nil
}

// Height returns the height of the last mined block.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Escrow returns the principal holding auction bids.
func (c *Chain) Escrow() vault.Principal {
	return c.vault.Escrow()
}

// Balance returns p's native token balance.
func (c *Chain) Balance(p vault.Principal) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bank.Balance(p)
}

// Read runs fn against the vault with the chain locked. fn must not retain v.
func (c *Chain) Read(fn func(v *vault.Vault)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.vault)
}

// MineBlock applies txs in order in a new block.
func (c *Chain) MineBlock(ctx context.Context, txs []Tx) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mineLocked(ctx, txs)
}

// MineEmptyBlockUntil mines empty blocks until the chain reaches height.
// It returns the resulting height.
func (c *Chain) MineEmptyBlockUntil(ctx context.Context, height uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.height < height {
		if _, err := c.mineLocked(ctx, nil); err != nil {
			return c.height, err
		}
	}
	return c.height, nil
}

// Submit mines tx alone in a new block and returns its receipt.
func (c *Chain) Submit(ctx context.Context, tx Tx) (Receipt, error) {
	block, err := c.MineBlock(ctx, []Tx{tx})
	if err != nil {
		return Receipt{}, err
	}
	return block.Receipts[0], nil
}

func (c *Chain) mineLocked(ctx context.Context, txs []Tx) (Block, error) {
	if c.halted != nil {
		return Block{}, c.halted
	}
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	block := c.execute(c.height+1, c.now().UTC(), txs)
	c.height = block.Height
	if c.store != nil {
		if err := c.store.AppendBlock(ctx, block); err != nil {
			// State already moved past the log; refuse further blocks.
			c.halted = fmt.Errorf("%w: persist block %d: %v", ErrHalted, block.Height, err)
			return Block{}, c.halted
		}
	}
	return block, nil
}

func (c *Chain) execute(height uint64, minedAt time.Time, txs []Tx) Block {
	block := Block{
		Height:   height,
		MinedAt:  minedAt,
		Txs:      txs,
		Receipts: make([]Receipt, 0, len(txs)),
	}
	for i, tx := range txs {
		block.Receipts = append(block.Receipts, c.apply(height, i, minedAt, tx))
	}
	return block
}

func (c *Chain) apply(height uint64, index int, minedAt time.Time, tx Tx) Receipt {
	receipt := Receipt{Height: height, TxIndex: index, Sender: tx.Sender, Method: tx.Method}
	env := vault.NewEnv(tx.Sender, height)
	value, err := call(c.vault, env, tx)
	if err != nil {
		receipt.Result = Result{Err: asVaultError(err)}
		return receipt
	}
	receipt.Result = Result{OK: true, Value: value}
	for _, ev := range env.Events() {
		ev.EventID = c.newID()
		ev.TxIndex = index
		ev.Timestamp = minedAt
		receipt.Events = append(receipt.Events, ev)
	}
	return receipt
}

// Replay re-applies every stored block to a freshly deployed chain.
func (c *Chain) Replay(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	blocks, err := c.store.Blocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load blocks: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.height != 0 {
		return 0, fmt.Errorf("replay requires a fresh chain, height is %d", c.height)
	}
	for _, stored := range blocks {
		if stored.Height <= c.height {
			return 0, fmt.Errorf("stored block %d is out of order after %d", stored.Height, c.height)
		}
		block := c.execute(stored.Height, stored.MinedAt, stored.Txs)
		for i, r := range block.Receipts {
			if i < len(stored.Receipts) && stored.Receipts[i].Result.OK != r.Result.OK {
				return 0, fmt.Errorf("replay diverged at block %d tx %d", stored.Height, i)
			}
		}
		c.height = stored.Height
	}
	return len(blocks), nil
}

func asVaultError(err error) *vault.Error {
	var ve *vault.Error
	if errors.As(err, &ve) {
		return ve
	}
	return vault.NewError(vault.CodeInvalidState, "%v", err)
}
