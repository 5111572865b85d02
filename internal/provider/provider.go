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

package provider

import (
	"context"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
)

// Mode tells whether a backend moves real funds.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

// Backend is the identity every provider implementation reports.
type Backend interface {
	Name() string
	Mode() Mode
}

// SendRequest carries an on-chain transfer through prepare and execute.
type SendRequest struct {
	UserId         string
	To             string
	Token          string
	Amount         decimal.Decimal
	QuoteId        string
	IdempotencyKey string
}

// SwapRequest carries a token swap through prepare and execute.
type SwapRequest struct {
	UserId         string
	FromToken      string
	ToToken        string
	AmountIn       decimal.Decimal
	MinAmountOut   decimal.Decimal
	QuoteId        string
	IdempotencyKey string
}

// Wallet is a custody backend able to hold and move tokens for a user.
type Wallet interface {
	Backend
	CreateOrLinkWallet(ctx context.Context, userId string) (*models.WalletRecord, error)
	GetBalance(ctx context.Context, userId string) (*models.WalletBalance, error)
	PrepareSend(ctx context.Context, req SendRequest) (*models.SendQuote, error)
	ExecuteSend(ctx context.Context, req SendRequest) (*models.TxResult, error)
	PrepareSwap(ctx context.Context, req SwapRequest) (*models.SwapQuote, error)
	ExecuteSwap(ctx context.Context, req SwapRequest) (*models.TxResult, error)
}

// Offramp converts tokens into fiat paid to a bank account.
type Offramp interface {
	Backend
	Quote(ctx context.Context, req models.CashoutQuoteRequest) (*models.CashoutQuote, error)
	CreatePayout(ctx context.Context, req models.CreatePayoutRequest) (*models.Payout, error)
	PayoutStatus(ctx context.Context, payoutId string) (*models.PayoutState, error)
	ListBanks(ctx context.Context, country string) ([]models.Bank, error)
	ResolveRecipient(ctx context.Context, details models.BankDetails) (*models.RecipientCheck, error)
	// NotifyDeposit tells the off-ramp the token deposit for a payout was broadcast.
	NotifyDeposit(ctx context.Context, payoutId, txRef string) (*models.PayoutState, error)
}
