package prime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustody struct {
	withdrawals []CreateWithdrawalParams
	addresses   int
	err         error
}

func (f *fakeCustody) CreateDepositAddress(_ context.Context, _, _, asset, network string) (*DepositAddress, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.addresses++
	return &DepositAddress{Id: fmt.Sprintf("acct_%d", f.addresses), Address: "0x1111111111111111111111111111111111111111", Network: network, Asset: asset}, nil
}

func (f *fakeCustody) CreateWithdrawal(_ context.Context, params CreateWithdrawalParams) (*Withdrawal, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.withdrawals = append(f.withdrawals, params)
	return &Withdrawal{ActivityId: "act_1", Amount: params.Amount}, nil
}

type fakeBook map[string]*models.WalletRecord

func (b fakeBook) GetWallet(_ context.Context, userId, _ string) (*models.WalletRecord, error) {
	if rec, ok := b[userId]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

type fakeBalances struct{}

func (fakeBalances) Balances(context.Context, string) ([]models.TokenBalance, error) {
	return []models.TokenBalance{{Token: "cUSD", Amount: decimal.NewFromInt(7)}}, nil
}

var testTokens = models.TokenCatalog{
	"cUSD": {Symbol: "cUSD", PrimeSymbol: "CUSD", UsdPrice: decimal.NewFromInt(1)},
	"CELO": {Symbol: "CELO", UsdPrice: decimal.RequireFromString("0.5")},
}

func newTestWallet(t *testing.T, custody *fakeCustody, book fakeBook) *Wallet {
	t.Helper()
	w, err := NewWallet(custody, WalletConfig{PortfolioId: "pf", WalletId: "wl"}, testTokens, book, fakeBalances{})
	require.NoError(t, err)
	return w
}

func TestNewWallet_RequiresIds(t *testing.T) {
	_, err := NewWallet(&fakeCustody{}, WalletConfig{}, testTokens, fakeBook{}, nil)
	assert.Equal(t, provider.CategoryNotConfigured, provider.CategoryOf(err))
}

func TestCreateOrLinkWallet(t *testing.T) {
	custody := &fakeCustody{}
	book := fakeBook{"linked": {UserId: "linked", Backend: Name, Address: "0xexisting"}}
	w := newTestWallet(t, custody, book)

	rec, err := w.CreateOrLinkWallet(context.Background(), "linked")
	require.NoError(t, err)
	assert.Equal(t, "0xexisting", rec.Address)
	assert.Equal(t, 0, custody.addresses)

	rec, err = w.CreateOrLinkWallet(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", rec.Meta["account_identifier"])
	assert.Equal(t, "celo-mainnet", rec.Meta["network"])
}

func TestExecuteSend_UsesIdempotencyKeyAndNetworkAsset(t *testing.T) {
	custody := &fakeCustody{}
	w := newTestWallet(t, custody, fakeBook{})

	tx, err := w.ExecuteSend(context.Background(), provider.SendRequest{
		UserId:         "u1",
		To:             "0x2222222222222222222222222222222222222222",
		Token:          "cUSD",
		Amount:         decimal.RequireFromString("5.5"),
		QuoteId:        "pq_1",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "act_1", tx.TxRef)
	assert.Equal(t, Name, tx.Backend)

	require.Len(t, custody.withdrawals, 1)
	got := custody.withdrawals[0]
	assert.Equal(t, "idem-1", got.IdempotencyKey)
	assert.Equal(t, "CUSD-celo-mainnet", got.Asset)
	assert.Equal(t, "5.5", got.Amount)
}

func TestExecuteSend_ClassifiesErrors(t *testing.T) {
	w := newTestWallet(t, &fakeCustody{err: errors.New("unable to create withdrawal: insufficient balance")}, fakeBook{})

	_, err := w.ExecuteSend(context.Background(), provider.SendRequest{Token: "CELO", Amount: decimal.NewFromInt(1), QuoteId: "pq"})
	assert.Equal(t, provider.CategoryInsufficientFunds, provider.CategoryOf(err))
}

func TestGetBalance(t *testing.T) {
	w := newTestWallet(t, &fakeCustody{}, fakeBook{"u1": {Address: "0xabc"}})

	b, err := w.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", b.Address)
	require.Len(t, b.Balances, 1)

	_, err = w.GetBalance(context.Background(), "nobody")
	assert.Equal(t, provider.CategoryInvalidRequest, provider.CategoryOf(err))
}

func TestSwapUnsupported(t *testing.T) {
	w := newTestWallet(t, &fakeCustody{}, fakeBook{})
	_, err := w.PrepareSwap(context.Background(), provider.SwapRequest{})
	assert.Equal(t, provider.CategoryUnsupported, provider.CategoryOf(err))
}
