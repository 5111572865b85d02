package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is the holding of one token in a wallet
type TokenBalance struct {
	Token    string          `json:"token"`
	Amount   decimal.Decimal `json:"amount"`
	UsdValue decimal.Decimal `json:"usd"`
}

// WalletBalance is a wallet address with its per-token holdings
type WalletBalance struct {
	Address  string         `json:"walletAddress"`
	Chain    string         `json:"chain"`
	Backend  string         `json:"backend"`
	Balances []TokenBalance `json:"balances"`
}

// SendQuote is the result of preparing an on-chain send
type SendQuote struct {
	QuoteId string          `json:"quoteId"`
	Backend string          `json:"backend"`
	Fee     decimal.Decimal `json:"networkFee"`
	Eta     string          `json:"estimatedArrival"`
}

// SwapQuote is the result of preparing a token swap
type SwapQuote struct {
	QuoteId      string          `json:"quoteId"`
	Backend      string          `json:"backend"`
	FromToken    string          `json:"fromToken"`
	ToToken      string          `json:"toToken"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	AmountOut    decimal.Decimal `json:"amountOut"`
	MinAmountOut decimal.Decimal `json:"minAmountOut"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxConfirmed TxStatus = "confirmed"
)

// TxResult is the reference returned by an executed send or swap
type TxResult struct {
	TxRef   string   `json:"txHash"`
	Status  TxStatus `json:"status"`
	Backend string   `json:"backend"`
}

// CashoutQuoteRequest asks an off-ramp to price a token to fiat conversion
type CashoutQuoteRequest struct {
	UserId    string          `json:"userId"`
	FromToken string          `json:"fromToken"`
	Amount    decimal.Decimal `json:"amount"`
	Country   string          `json:"country"`
	Currency  string          `json:"currency"`
}

// CashoutQuote is an off-ramp price for a cashout
type CashoutQuote struct {
	QuoteId       string          `json:"quoteId"`
	Backend       string          `json:"backend"`
	Rate          decimal.Decimal `json:"rate"`
	Fee           decimal.Decimal `json:"fee"`
	ReceiveAmount decimal.Decimal `json:"receiveAmount"`
	Currency      string          `json:"currency"`
	Eta           string          `json:"eta"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
}

// BankDetails identifies the bank account receiving a payout
type BankDetails struct {
	Country       string `json:"country"`
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
}

// CreatePayoutRequest asks an off-ramp to pay out a previously quoted amount
type CreatePayoutRequest struct {
	UserId      string      `json:"userId"`
	QuoteId     string      `json:"quoteId"`
	Beneficiary BankDetails `json:"beneficiary"`
	Otp         string      `json:"otp"`
}

// Payout is an off-ramp order
type Payout struct {
	PayoutId       string       `json:"payoutId"`
	Backend        string       `json:"backend"`
	Status         PayoutStatus `json:"status"`
	DepositAddress string       `json:"depositAddress,omitempty"`
}

// PayoutState is the latest known status of a payout
type PayoutState struct {
	PayoutId  string       `json:"payoutId"`
	Status    PayoutStatus `json:"status"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Bank is an institution an off-ramp can pay into
type Bank struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// RecipientCheck is the result of resolving a bank account holder name
type RecipientCheck struct {
	Valid       bool   `json:"valid"`
	AccountName string `json:"accountName,omitempty"`
}

// BackendHealth is the last observed state of a provider backend
type BackendHealth struct {
	Name          string    `json:"name"`
	Mode          string    `json:"mode"`
	Healthy       bool      `json:"healthy"`
	LastError     string    `json:"lastError,omitempty"`
	LastCheckedAt time.Time `json:"lastCheckedAt,omitempty"`
}

// Token describes a supported asset and how to price and move it
type Token struct {
	Symbol      string          `yaml:"symbol"`
	Name        string          `yaml:"name"`
	Decimals    int32           `yaml:"decimals"`
	Contract    string          `yaml:"contract"`
	UsdPrice    decimal.Decimal `yaml:"-"`
	PrimeSymbol string          `yaml:"prime_symbol"`
	Network     string          `yaml:"network"`
}

// TokenCatalog indexes supported tokens by symbol
type TokenCatalog map[string]Token

// Lookup finds a token by case-insensitive symbol
func (c TokenCatalog) Lookup(symbol string) (Token, bool) {
	if t, ok := c[symbol]; ok {
		return t, true
	}
	for key, t := range c {
		if strings.EqualFold(key, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// UsdValue prices an amount of a token in USD
func (c TokenCatalog) UsdValue(symbol string, amount decimal.Decimal) (decimal.Decimal, bool) {
	t, ok := c.Lookup(symbol)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(t.UsdPrice), true
}
