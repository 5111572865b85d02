package mock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ provider.Offramp = (*Offramp)(nil)

var rates = map[string]decimal.Decimal{
	"NGN": decimal.NewFromInt(1520),
	"KES": decimal.NewFromInt(128),
	"GHS": decimal.RequireFromString("15.5"),
	"ZAR": decimal.RequireFromString("18.9"),
}

var (
	defaultRate = decimal.NewFromInt(100)
	minFee      = decimal.RequireFromString("0.5")
	feeRate     = decimal.RequireFromString("0.02")
)

var banks = []models.Bank{
	{Code: "044", Name: "Access Bank", Country: "NG"},
	{Code: "058", Name: "GTBank", Country: "NG"},
	{Code: "057", Name: "Zenith Bank", Country: "NG"},
	{Code: "011", Name: "First Bank", Country: "NG"},
	{Code: "01", Name: "KCB", Country: "KE"},
	{Code: "68", Name: "Equity Bank", Country: "KE"},
	{Code: "GCB", Name: "GCB Bank", Country: "GH"},
	{Code: "632005", Name: "Absa", Country: "ZA"},
}

// Offramp simulates a fiat payout provider. Payout status advances with age
// so the status listener has something to observe.
type Offramp struct {
	now func() time.Time
}

func NewOfframp() *Offramp {
	return &Offramp{now: time.Now}
}

func (o *Offramp) Name() string        { return Name }
func (o *Offramp) Mode() provider.Mode { return provider.ModeMock }

func (o *Offramp) Quote(_ context.Context, req models.CashoutQuoteRequest) (*models.CashoutQuote, error) {
	if !req.Amount.IsPositive() {
		return nil, provider.NewError(Name, "quote", provider.CategoryInvalidRequest, fmt.Errorf("amount must be positive"))
	}

	rate, ok := rates[strings.ToUpper(req.Currency)]
	if !ok {
		rate = defaultRate
	}
	fee := decimal.Max(minFee, req.Amount.Mul(feeRate))
	receive := req.Amount.Mul(rate).Sub(fee.Mul(rate))

	expires := o.now().UTC().Add(10 * time.Minute)
	return &models.CashoutQuote{
		QuoteId:       "oq_" + uuid.New().String(),
		Backend:       Name,
		Rate:          rate.Round(4),
		Fee:           fee.Round(2),
		ReceiveAmount: receive.Round(2),
		Currency:      strings.ToUpper(req.Currency),
		Eta:           "5-30 min",
		ExpiresAt:     &expires,
	}, nil
}

func (o *Offramp) CreatePayout(_ context.Context, req models.CreatePayoutRequest) (*models.Payout, error) {
	if req.QuoteId == "" {
		return nil, provider.NewError(Name, "create_payout", provider.CategoryInvalidRequest, fmt.Errorf("missing quote id"))
	}
	if req.Beneficiary.AccountNumber == "" {
		return nil, provider.NewError(Name, "create_payout", provider.CategoryInvalidRequest, fmt.Errorf("missing beneficiary"))
	}

	id := uuid.New().String()
	return &models.Payout{
		PayoutId: fmt.Sprintf("po_%d_%s", o.now().Unix(), id[:8]),
		Backend:  Name,
		Status:   models.PayoutPending,
	}, nil
}

// PayoutStatus derives the status from the creation time encoded in the id.
func (o *Offramp) PayoutStatus(_ context.Context, payoutId string) (*models.PayoutState, error) {
	parts := strings.Split(payoutId, "_")
	if len(parts) != 3 || parts[0] != "po" {
		return nil, provider.NewError(Name, "payout_status", provider.CategoryInvalidRequest, fmt.Errorf("unknown payout %s", payoutId))
	}
	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, provider.NewError(Name, "payout_status", provider.CategoryInvalidRequest, fmt.Errorf("unknown payout %s", payoutId))
	}

	now := o.now().UTC()
	age := now.Sub(time.Unix(created, 0))
	status := models.PayoutPending
	switch {
	case age >= 2*time.Minute:
		status = models.PayoutSettled
	case age >= 30*time.Second:
		status = models.PayoutProcessing
	}

	return &models.PayoutState{PayoutId: payoutId, Status: status, UpdatedAt: now}, nil
}

// NotifyDeposit accepts any well-formed payout id and moves it to processing.
func (o *Offramp) NotifyDeposit(_ context.Context, payoutId, txRef string) (*models.PayoutState, error) {
	if !strings.HasPrefix(payoutId, "po_") || strings.TrimSpace(txRef) == "" {
		return nil, provider.NewError(Name, "notify_deposit", provider.CategoryInvalidRequest, fmt.Errorf("payout id and tx ref are required"))
	}
	return &models.PayoutState{PayoutId: payoutId, Status: models.PayoutProcessing, UpdatedAt: o.now().UTC()}, nil
}

func (o *Offramp) ListBanks(_ context.Context, country string) ([]models.Bank, error) {
	out := make([]models.Bank, 0, len(banks))
	for _, b := range banks {
		if country == "" || strings.EqualFold(b.Country, country) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (o *Offramp) ResolveRecipient(_ context.Context, details models.BankDetails) (*models.RecipientCheck, error) {
	number := strings.TrimSpace(details.AccountNumber)
	if len(number) < 6 || strings.Trim(number, "0123456789") != "" {
		return &models.RecipientCheck{Valid: false}, nil
	}
	name := details.AccountName
	if name == "" {
		name = "Account " + number[len(number)-4:]
	}
	return &models.RecipientCheck{Valid: true, AccountName: name}, nil
}
