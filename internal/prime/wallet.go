/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Name = "prime"

var _ provider.Wallet = (*Wallet)(nil)

// Custody is the part of the Prime API the wallet calls.
type Custody interface {
	CreateDepositAddress(ctx context.Context, portfolioId, walletId, asset, network string) (*DepositAddress, error)
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*Withdrawal, error)
}

// AddressBook looks up addresses linked earlier.
type AddressBook interface {
	GetWallet(ctx context.Context, userId, backend string) (*models.WalletRecord, error)
}

// BalanceReader reads balances for an address, normally from the chain.
type BalanceReader interface {
	Balances(ctx context.Context, address string) ([]models.TokenBalance, error)
}

type WalletConfig struct {
	PortfolioId string
	WalletId    string
	NetworkId   string
}

// Wallet is the live custody backend. Each user gets a deposit address on a
// shared Prime trading wallet; sends are Prime withdrawals keyed by the
// caller's idempotency key.
type Wallet struct {
	custody  Custody
	cfg      WalletConfig
	tokens   models.TokenCatalog
	book     AddressBook
	balances BalanceReader
}

func NewWallet(custody Custody, cfg WalletConfig, tokens models.TokenCatalog, book AddressBook, balances BalanceReader) (*Wallet, error) {
	if cfg.PortfolioId == "" || cfg.WalletId == "" {
		return nil, provider.NewError(Name, "init", provider.CategoryNotConfigured, errors.New("prime portfolio and wallet ids are required"))
	}
	if cfg.NetworkId == "" {
		cfg.NetworkId = "celo-mainnet"
	}
	return &Wallet{custody: custody, cfg: cfg, tokens: tokens, book: book, balances: balances}, nil
}

func (w *Wallet) Name() string        { return Name }
func (w *Wallet) Mode() provider.Mode { return provider.ModeLive }

func (w *Wallet) CreateOrLinkWallet(ctx context.Context, userId string) (*models.WalletRecord, error) {
	if existing, err := w.book.GetWallet(ctx, userId, Name); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	addr, err := w.custody.CreateDepositAddress(ctx, w.cfg.PortfolioId, w.cfg.WalletId, "CELO", w.cfg.NetworkId)
	if err != nil {
		return nil, provider.Classify(Name, "link", err)
	}

	zap.L().Info("Linked Prime deposit address",
		zap.String("user_id", userId),
		zap.String("address", addr.Address),
		zap.String("network", addr.Network))

	now := time.Now().UTC()
	return &models.WalletRecord{
		UserId:  userId,
		Backend: Name,
		Address: addr.Address,
		Meta: map[string]string{
			"account_identifier": addr.Id,
			"network":            addr.Network,
			"portfolio_id":       w.cfg.PortfolioId,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (w *Wallet) GetBalance(ctx context.Context, userId string) (*models.WalletBalance, error) {
	if w.balances == nil {
		return nil, provider.NewError(Name, "balance", provider.CategoryNotConfigured, errors.New("no chain rpc configured"))
	}

	rec, err := w.book.GetWallet(ctx, userId, Name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, provider.NewError(Name, "balance", provider.CategoryInvalidRequest, errors.New("wallet not linked"))
	}
	if err != nil {
		return nil, err
	}

	balances, err := w.balances.Balances(ctx, rec.Address)
	if err != nil {
		return nil, provider.Classify(Name, "balance", err)
	}
	return &models.WalletBalance{Address: rec.Address, Chain: "celo", Backend: Name, Balances: balances}, nil
}

// PrepareSend validates the transfer locally. Prime prices network fees at
// withdrawal time, so the quote carries no fee.
func (w *Wallet) PrepareSend(_ context.Context, req provider.SendRequest) (*models.SendQuote, error) {
	if _, ok := w.tokens.Lookup(req.Token); !ok {
		return nil, provider.NewError(Name, "prepare_send", provider.CategoryUnsupported, fmt.Errorf("token %s", req.Token))
	}
	if !req.Amount.IsPositive() {
		return nil, provider.NewError(Name, "prepare_send", provider.CategoryInvalidRequest, errors.New("amount must be positive"))
	}
	return &models.SendQuote{
		QuoteId: "pq_" + uuid.New().String(),
		Backend: Name,
		Fee:     decimal.Zero,
		Eta:     "1-5 min",
	}, nil
}

func (w *Wallet) ExecuteSend(ctx context.Context, req provider.SendRequest) (*models.TxResult, error) {
	token, ok := w.tokens.Lookup(req.Token)
	if !ok {
		return nil, provider.NewError(Name, "execute_send", provider.CategoryUnsupported, fmt.Errorf("token %s", req.Token))
	}

	key := req.IdempotencyKey
	if key == "" {
		key = req.QuoteId
	}

	withdrawal, err := w.custody.CreateWithdrawal(ctx, CreateWithdrawalParams{
		PortfolioId:        w.cfg.PortfolioId,
		WalletId:           w.cfg.WalletId,
		DestinationAddress: req.To,
		Amount:             req.Amount.String(),
		Asset:              w.asset(token),
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, provider.Classify(Name, "execute_send", classifyWithdrawal(err))
	}

	return &models.TxResult{TxRef: withdrawal.ActivityId, Status: models.TxSubmitted, Backend: Name}, nil
}

func (w *Wallet) PrepareSwap(context.Context, provider.SwapRequest) (*models.SwapQuote, error) {
	return nil, provider.NewError(Name, "prepare_swap", provider.CategoryUnsupported, errors.New("swaps are not available on prime custody"))
}

func (w *Wallet) ExecuteSwap(context.Context, provider.SwapRequest) (*models.TxResult, error) {
	return nil, provider.NewError(Name, "execute_swap", provider.CategoryUnsupported, errors.New("swaps are not available on prime custody"))
}

func (w *Wallet) asset(token models.Token) string {
	symbol := token.PrimeSymbol
	if symbol == "" {
		symbol = strings.ToUpper(token.Symbol)
	}
	network := token.Network
	if network == "" {
		network = w.cfg.NetworkId
	}
	return symbol + "-" + network
}

func classifyWithdrawal(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return provider.NewError(Name, "execute_send", provider.CategoryInsufficientFunds, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized"):
		return provider.NewError(Name, "execute_send", provider.CategoryUnauthorized, err)
	case strings.Contains(msg, "invalid"):
		return provider.NewError(Name, "execute_send", provider.CategoryInvalidRequest, err)
	}
	return err
}
