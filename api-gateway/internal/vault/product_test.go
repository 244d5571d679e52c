package vault

import (
	"testing"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
	"github.com/stretchr/testify/require"
)

func TestListAndPurchaseProduct(t *testing.T) {
	t.Parallel()

	v, bank := newTestVault(t)
	require.NoError(t, v.RegisterBrand(NewEnv(wallet1, 1), "Test Brand"))

	id, err := v.ListProduct(NewEnv(wallet1, 2), "Test Product", "A great product", 1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	product, ok := v.GetProduct(id).Get()
	require.True(t, ok)
	require.True(t, product.Available)
	require.Equal(t, wallet1, product.Seller)

	env := NewEnv(wallet2, 3)
	require.NoError(t, v.PurchaseProduct(env, id))

	product, _ = v.GetProduct(id).Get()
	require.False(t, product.Available)
	require.Equal(t, uint64(99_000_000), bank[wallet2])
	require.Equal(t, uint64(101_000_000), bank[wallet1])

	require.Len(t, env.Events(), 1)
	ev := env.Events()[0]
	require.Equal(t, models.EventProductPurchased, ev.Kind)
	require.Equal(t, string(wallet2), ev.Principal)
	require.Equal(t, string(wallet1), ev.Counterparty)
	require.Equal(t, uint64(1_000_000), ev.Amount)

	requireCode(t, v.PurchaseProduct(NewEnv(wallet3, 4), id), CodeInvalidState)
	require.Equal(t, uint64(100_000_000), bank[wallet3])
}

func TestListProductRequiresBrand(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	_, err := v.ListProduct(NewEnv(wallet1, 1), "Test Product", "A great product", 10)
	requireCode(t, err, CodeUnauthorized)
	require.Zero(t, v.LastProductID())
}

func TestListProductValidatesInput(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	require.NoError(t, v.RegisterBrand(NewEnv(wallet1, 1), "Test Brand"))

	_, err := v.ListProduct(NewEnv(wallet1, 2), "Test Product", "", 0)
	requireCode(t, err, CodeInvalidInput)
	_, err = v.ListProduct(NewEnv(wallet1, 2), "", "", 10)
	requireCode(t, err, CodeInvalidInput)
	require.Zero(t, v.LastProductID())

	id, err := v.ListProduct(NewEnv(wallet1, 2), "Test Product", "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestProductIDsAreSequential(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	require.NoError(t, v.RegisterBrand(NewEnv(wallet1, 1), "Brand One"))
	require.NoError(t, v.RegisterBrand(NewEnv(wallet2, 1), "Brand Two"))

	for i, seller := range []Principal{wallet1, wallet2, wallet1} {
		id, err := v.ListProduct(NewEnv(seller, 2), "Product", "", 5)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), id)
	}
	require.Equal(t, uint64(3), v.LastProductID())
}

func TestPurchaseProductFailures(t *testing.T) {
	t.Parallel()

	v, bank := newTestVault(t)
	require.NoError(t, v.RegisterBrand(NewEnv(wallet1, 1), "Test Brand"))
	id, err := v.ListProduct(NewEnv(wallet1, 2), "Pricey", "", 500_000_000)
	require.NoError(t, err)

	requireCode(t, v.PurchaseProduct(NewEnv(wallet2, 3), 99), CodeNotFound)
	requireCode(t, v.PurchaseProduct(NewEnv(wallet1, 3), id), CodeInvalidInput)
	requireCode(t, v.PurchaseProduct(NewEnv(wallet2, 3), id), CodeInsufficientFunds)

	product, _ := v.GetProduct(id).Get()
	require.True(t, product.Available)
	require.Equal(t, uint64(100_000_000), bank[wallet2])
}
