package mock

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Name = "mock"

	swapSlippageBps = 100
	swapQuoteTTL    = 60 * time.Second
)

var _ provider.Wallet = (*Wallet)(nil)

// Wallet simulates a custody wallet. Addresses are derived from the user id
// so they are stable across restarts; nothing moves on chain.
type Wallet struct {
	tokens models.TokenCatalog
	now    func() time.Time
}

func NewWallet(tokens models.TokenCatalog) *Wallet {
	return &Wallet{tokens: tokens, now: time.Now}
}

func (w *Wallet) Name() string        { return Name }
func (w *Wallet) Mode() provider.Mode { return provider.ModeMock }

// AddressFor derives the simulated address of a user.
func AddressFor(userId string) string {
	hash := crypto.Keccak256([]byte("clenja:" + userId))
	return common.BytesToAddress(hash[12:]).Hex()
}

func (w *Wallet) CreateOrLinkWallet(_ context.Context, userId string) (*models.WalletRecord, error) {
	now := w.now().UTC()
	return &models.WalletRecord{
		UserId:    userId,
		Backend:   Name,
		Address:   AddressFor(userId),
		Meta:      map[string]string{"chain": "celo"},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (w *Wallet) GetBalance(_ context.Context, userId string) (*models.WalletBalance, error) {
	balances := make([]models.TokenBalance, 0, 2)
	for _, symbol := range []string{"CELO", "cUSD"} {
		balances = append(balances, models.TokenBalance{Token: symbol, Amount: decimal.Zero, UsdValue: decimal.Zero})
	}
	return &models.WalletBalance{
		Address:  AddressFor(userId),
		Chain:    "celo",
		Backend:  Name,
		Balances: balances,
	}, nil
}

func (w *Wallet) PrepareSend(_ context.Context, req provider.SendRequest) (*models.SendQuote, error) {
	if _, ok := w.tokens.Lookup(req.Token); !ok {
		return nil, provider.NewError(Name, "prepare_send", provider.CategoryUnsupported, fmt.Errorf("token %s", req.Token))
	}
	return &models.SendQuote{
		QuoteId: "q_" + uuid.New().String(),
		Backend: Name,
		Fee:     decimal.RequireFromString("0.0004"),
		Eta:     "instant",
	}, nil
}

func (w *Wallet) ExecuteSend(_ context.Context, req provider.SendRequest) (*models.TxResult, error) {
	if req.QuoteId == "" {
		return nil, provider.NewError(Name, "execute_send", provider.CategoryInvalidRequest, fmt.Errorf("missing quote id"))
	}
	return &models.TxResult{TxRef: fakeTxHash(), Status: models.TxSubmitted, Backend: Name}, nil
}

func (w *Wallet) PrepareSwap(_ context.Context, req provider.SwapRequest) (*models.SwapQuote, error) {
	from, okFrom := w.tokens.Lookup(req.FromToken)
	to, okTo := w.tokens.Lookup(req.ToToken)
	if !okFrom || !okTo || from.Symbol == to.Symbol {
		return nil, provider.NewError(Name, "prepare_swap", provider.CategoryUnsupported,
			fmt.Errorf("pair %s/%s", req.FromToken, req.ToToken))
	}
	if to.UsdPrice.IsZero() {
		return nil, provider.NewError(Name, "prepare_swap", provider.CategoryUnsupported, fmt.Errorf("no price for %s", to.Symbol))
	}

	out := req.AmountIn.Mul(from.UsdPrice).Div(to.UsdPrice).Round(6)
	minOut := out.Mul(decimal.NewFromInt(10000 - swapSlippageBps)).Div(decimal.NewFromInt(10000)).Round(6)

	return &models.SwapQuote{
		QuoteId:      "sq_" + uuid.New().String(),
		Backend:      Name,
		FromToken:    from.Symbol,
		ToToken:      to.Symbol,
		AmountIn:     req.AmountIn,
		AmountOut:    out,
		MinAmountOut: minOut,
		ExpiresAt:    w.now().UTC().Add(swapQuoteTTL),
	}, nil
}

func (w *Wallet) ExecuteSwap(_ context.Context, req provider.SwapRequest) (*models.TxResult, error) {
	if req.QuoteId == "" {
		return nil, provider.NewError(Name, "execute_swap", provider.CategoryInvalidRequest, fmt.Errorf("missing quote id"))
	}
	return &models.TxResult{TxRef: fakeTxHash(), Status: models.TxSubmitted, Backend: Name}, nil
}

func fakeTxHash() string {
	id := uuid.New()
	return "0x" + strings.Repeat("0", 32) + hex.EncodeToString(id[:])
}
