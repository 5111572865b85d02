package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"clenja-agent-go/internal/models"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cusdContract = "0x765DE816845861e75A25fCA122bb6898B8B1282a"

type fakeBackend struct {
	native *big.Int
	erc20  map[common.Address]*big.Int
	err    error
}

func (f *fakeBackend) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return f.native, f.err
}

func (f *fakeBackend) CallContract(_ context.Context, call gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return math.U256Bytes(new(big.Int).Set(f.erc20[*call.To])), nil
}

func testCatalog() models.TokenCatalog {
	return models.TokenCatalog{
		"CELO": {Symbol: "CELO", Decimals: 18, UsdPrice: decimal.RequireFromString("0.5")},
		"cUSD": {Symbol: "cUSD", Decimals: 18, Contract: cusdContract, UsdPrice: decimal.NewFromInt(1)},
	}
}

func wei(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func TestBalances(t *testing.T) {
	backend := &fakeBackend{
		native: wei("2500000000000000000"),
		erc20:  map[common.Address]*big.Int{common.HexToAddress(cusdContract): wei("12340000000000000000")},
	}
	r, err := NewReader(backend, testCatalog())
	require.NoError(t, err)

	got, err := r.Balances(context.Background(), "0xABCDEF0123456789abcdef0123456789ABCD1234")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "CELO", got[0].Token)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, got[0].UsdValue.Equal(decimal.RequireFromString("1.25")))

	assert.Equal(t, "cUSD", got[1].Token)
	assert.True(t, got[1].Amount.Equal(decimal.RequireFromString("12.34")))
}

func TestBalances_Errors(t *testing.T) {
	r, err := NewReader(&fakeBackend{err: errors.New("rpc down")}, testCatalog())
	require.NoError(t, err)

	_, err = r.Balances(context.Background(), "0xABCDEF0123456789abcdef0123456789ABCD1234")
	assert.ErrorContains(t, err, "rpc down")

	_, err = r.Balances(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0xABCDEF0123456789abcdef0123456789ABCD1234"))
	assert.False(t, IsAddress("ABCDEF0123456789abcdef0123456789ABCD1234"))
	assert.False(t, IsAddress("0x123"))
}
