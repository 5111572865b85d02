package offramp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	c.httpClient = srv.Client()
	return c
}

func TestNewClient_RequiresConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://example.test"})
	assert.Equal(t, provider.CategoryNotConfigured, provider.CategoryOf(err))
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req models.CashoutQuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cUSD", req.FromToken)

		_, _ = w.Write([]byte(`{"quoteId":"oq_live","rate":"1510.5","fee":"1.00","receiveAmount":"73999.5","currency":"NGN","eta":"10 min"}`))
	})

	q, err := c.Quote(context.Background(), models.CashoutQuoteRequest{FromToken: "cUSD", Amount: decimal.NewFromInt(50), Currency: "NGN"})
	require.NoError(t, err)
	assert.Equal(t, "oq_live", q.QuoteId)
	assert.Equal(t, Name, q.Backend)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1510.5")))
}

func TestCreatePayout_SendsIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "oq_1", r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"payoutId":"po_live_1"}`))
	})

	p, err := c.CreatePayout(context.Background(), models.CreatePayoutRequest{QuoteId: "oq_1"})
	require.NoError(t, err)
	assert.Equal(t, "po_live_1", p.PayoutId)
	assert.Equal(t, models.PayoutPending, p.Status)
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   provider.Category
	}{
		{http.StatusUnauthorized, `{"error":"bad_key"}`, provider.CategoryUnauthorized},
		{http.StatusBadRequest, `{"error":"quote_expired"}`, provider.CategoryQuoteExpired},
		{http.StatusUnprocessableEntity, `{"message":"bad account"}`, provider.CategoryInvalidRequest},
		{http.StatusBadGateway, `upstream down`, provider.CategoryUpstream},
	}

	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		})
		_, err := c.PayoutStatus(context.Background(), "po_1")
		assert.Equal(t, tt.want, provider.CategoryOf(err), tt.body)
	}
}

func TestListBanksAndResolve(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/banks":
			assert.Equal(t, "NG", r.URL.Query().Get("country"))
			_, _ = w.Write([]byte(`{"banks":[{"code":"044","name":"Access Bank","country":"NG"}]}`))
		case "/recipients/resolve":
			_, _ = w.Write([]byte(`{"valid":true,"accountName":"ADA OBI"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	banks, err := c.ListBanks(context.Background(), "NG")
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, "Access Bank", banks[0].Name)

	check, err := c.ResolveRecipient(context.Background(), models.BankDetails{AccountNumber: "0123456789"})
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.Equal(t, "ADA OBI", check.AccountName)
}

func TestNotifyDeposit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payouts/po_1/deposit", r.URL.Path)

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "0xfeed", in["txHash"])

		_, _ = w.Write([]byte(`{"status":"processing"}`))
	})

	st, err := c.NotifyDeposit(context.Background(), "po_1", "0xfeed")
	require.NoError(t, err)
	assert.Equal(t, "po_1", st.PayoutId)
	assert.Equal(t, models.PayoutProcessing, st.Status)
	assert.False(t, st.UpdatedAt.IsZero())
}
