package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
)

const (
	deployer vault.Principal = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1  vault.Principal = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
	wallet2  vault.Principal = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func newChain(t *testing.T, store chain.BlockStore) *chain.Chain {
	t.Helper()
	var seq int
	c, err := chain.New(chain.Options{
		Owner:   deployer,
		Genesis: map[vault.Principal]uint64{wallet1: 1_000_000_000, wallet2: 1_000_000_000},
		Store:   store,
		NewID: func() string {
			seq++
			return fmt.Sprintf("evt-%d", seq)
		},
	})
	require.NoError(t, err)
	return c
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("")
	require.Error(t, err)
}

func TestAppendAndLoadBlocks(t *testing.T) {
	t.Parallel()

	store, _ := openTempStore(t)
	ctx := context.Background()
	minedAt := time.Date(2026, time.October, 19, 9, 30, 0, 0, time.UTC)

	block := chain.Block{
		Height:  1,
		MinedAt: minedAt,
		Txs: []chain.Tx{
			chain.ListProduct(wallet1, "Test Product", "A great product", 1_000_000),
			chain.PurchaseProduct(wallet2, 9),
		},
		Receipts: []chain.Receipt{
			{Height: 1, TxIndex: 0, Sender: wallet1, Method: chain.MethodListProduct, Result: chain.Result{OK: true, Value: uint64(1)}},
			{Height: 1, TxIndex: 1, Sender: wallet2, Method: chain.MethodPurchaseProduct, Result: chain.Result{
				Err: vault.NewError(vault.CodeNotFound, "product 9 does not exist"),
			}},
		},
	}
	require.NoError(t, store.AppendBlock(ctx, block))
	require.NoError(t, store.AppendBlock(ctx, chain.Block{Height: 2, MinedAt: minedAt.Add(time.Second)}))

	blocks, err := store.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	got := blocks[0]
	require.Equal(t, uint64(1), got.Height)
	require.True(t, got.MinedAt.Equal(minedAt))
	require.Len(t, got.Txs, 2)
	require.Equal(t, wallet1, got.Txs[0].Sender)
	require.Equal(t, chain.MethodListProduct, got.Txs[0].Method)
	require.JSONEq(t, string(block.Txs[0].Args), string(got.Txs[0].Args))

	require.True(t, got.Receipts[0].Result.OK)
	require.Equal(t, json.RawMessage("1"), got.Receipts[0].Result.Value)
	require.False(t, got.Receipts[1].Result.OK)
	require.Equal(t, vault.CodeNotFound, got.Receipts[1].Result.Err.Code)

	require.Equal(t, uint64(2), blocks[1].Height)
	require.Empty(t, blocks[1].Txs)
}

func TestAppendBlockRejectsDuplicateHeight(t *testing.T) {
	t.Parallel()

	store, _ := openTempStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendBlock(ctx, chain.Block{Height: 1, MinedAt: time.Now()}))
	require.ErrorIs(t, store.AppendBlock(ctx, chain.Block{Height: 1, MinedAt: time.Now()}), ErrAlreadyExists)
}

func TestReopenKeepsBlocksAndReplays(t *testing.T) {
	t.Parallel()

	store, path := openTempStore(t)
	ctx := context.Background()

	c := newChain(t, store)
	_, err := c.MineBlock(ctx, []chain.Tx{chain.RegisterBrand(wallet1, "Test Brand")})
	require.NoError(t, err)
	_, err = c.MineBlock(ctx, []chain.Tx{chain.CreateAuction(wallet1, "Auction Item", "Special auction item", 1_000_000, 10)})
	require.NoError(t, err)
	_, err = c.MineBlock(ctx, []chain.Tx{chain.PlaceBid(wallet2, 1, 1_100_000)})
	require.NoError(t, err)
	_, err = c.MineEmptyBlockUntil(ctx, 20)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	replayed := newChain(t, reopened)
	n, err := replayed.Replay(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, uint64(20), replayed.Height())
	require.Equal(t, c.Balance(wallet2), replayed.Balance(wallet2))

	receipt, err := replayed.Submit(ctx, chain.EndAuction(wallet1, 1))
	require.NoError(t, err)
	require.True(t, receipt.Result.OK)
	require.Equal(t, uint64(21), receipt.Height)

	var auction vault.Auction
	replayed.Read(func(v *vault.Vault) { auction, _ = v.GetAuction(1).Get() })
	require.False(t, auction.IsActive)
	require.Equal(t, uint64(1_100_000), auction.HighestBid)
}
