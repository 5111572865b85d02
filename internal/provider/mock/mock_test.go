package mock

import (
	"context"
	"strings"
	"testing"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = models.TokenCatalog{
	"CELO": {Symbol: "CELO", UsdPrice: decimal.RequireFromString("0.5")},
	"cUSD": {Symbol: "cUSD", UsdPrice: decimal.NewFromInt(1)},
}

func TestOfframpQuote(t *testing.T) {
	o := NewOfframp()
	tests := []struct {
		currency string
		amount   string
		rate     string
		fee      string
		receive  string
	}{
		{"NGN", "100", "1520", "2", "148960"},
		{"NGN", "10", "1520", "0.5", "14440"},
		{"KES", "50", "128", "1", "6272"},
		{"XOF", "10", "100", "0.5", "950"},
	}

	for _, tt := range tests {
		t.Run(tt.currency+"_"+tt.amount, func(t *testing.T) {
			q, err := o.Quote(context.Background(), models.CashoutQuoteRequest{
				FromToken: "cUSD",
				Amount:    decimal.RequireFromString(tt.amount),
				Currency:  tt.currency,
			})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(q.QuoteId, "oq_"))
			assert.Equal(t, Name, q.Backend)
			assert.True(t, q.Rate.Equal(decimal.RequireFromString(tt.rate)), q.Rate.String())
			assert.True(t, q.Fee.Equal(decimal.RequireFromString(tt.fee)), q.Fee.String())
			assert.True(t, q.ReceiveAmount.Equal(decimal.RequireFromString(tt.receive)), q.ReceiveAmount.String())
			assert.Equal(t, "5-30 min", q.Eta)
		})
	}
}

func TestOfframpQuote_RejectsNonPositive(t *testing.T) {
	_, err := NewOfframp().Quote(context.Background(), models.CashoutQuoteRequest{Amount: decimal.Zero, Currency: "NGN"})
	assert.Equal(t, provider.CategoryInvalidRequest, provider.CategoryOf(err))
}

func TestPayoutStatusAdvancesWithAge(t *testing.T) {
	o := NewOfframp()
	start := time.Unix(1_700_000_000, 0)
	o.now = func() time.Time { return start }

	p, err := o.CreatePayout(context.Background(), models.CreatePayoutRequest{
		QuoteId:     "oq_1",
		Beneficiary: models.BankDetails{AccountNumber: "0123456789"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.PayoutId, "po_1700000000_"))

	for _, step := range []struct {
		after time.Duration
		want  models.PayoutStatus
	}{
		{5 * time.Second, models.PayoutPending},
		{45 * time.Second, models.PayoutProcessing},
		{3 * time.Minute, models.PayoutSettled},
	} {
		o.now = func() time.Time { return start.Add(step.after) }
		st, err := o.PayoutStatus(context.Background(), p.PayoutId)
		require.NoError(t, err)
		assert.Equal(t, step.want, st.Status, step.after.String())
	}

	_, err = o.PayoutStatus(context.Background(), "garbage")
	assert.Error(t, err)

	st, err := o.NotifyDeposit(context.Background(), p.PayoutId, "0xfeed")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, st.Status)

	_, err = o.NotifyDeposit(context.Background(), p.PayoutId, " ")
	assert.Equal(t, provider.CategoryInvalidRequest, provider.CategoryOf(err))
}

func TestWalletSendAndSwap(t *testing.T) {
	w := NewWallet(testTokens)
	ctx := context.Background()

	q, err := w.PrepareSend(ctx, provider.SendRequest{UserId: "u1", Token: "cUSD", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q.QuoteId, "q_"))
	assert.True(t, q.Fee.Equal(decimal.RequireFromString("0.0004")))

	tx, err := w.ExecuteSend(ctx, provider.SendRequest{QuoteId: q.QuoteId})
	require.NoError(t, err)
	assert.Len(t, tx.TxRef, 66)

	sq, err := w.PrepareSwap(ctx, provider.SwapRequest{FromToken: "celo", ToToken: "cusd", AmountIn: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, sq.AmountOut.Equal(decimal.NewFromInt(5)))
	assert.True(t, sq.MinAmountOut.Equal(decimal.RequireFromString("4.95")))

	_, err = w.PrepareSwap(ctx, provider.SwapRequest{FromToken: "cUSD", ToToken: "cUSD", AmountIn: decimal.NewFromInt(1)})
	assert.Equal(t, provider.CategoryUnsupported, provider.CategoryOf(err))
}

func TestAddressForIsStable(t *testing.T) {
	a := AddressFor("u1")
	assert.Equal(t, a, AddressFor("u1"))
	assert.NotEqual(t, a, AddressFor("u2"))
	assert.Len(t, a, 42)
}
