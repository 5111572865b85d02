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

	"clenja-agent-go/internal/provider"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const walletTypeTrading = "TRADING"

type Portfolio struct {
	Id   string
	Name string
}

type WalletInfo struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

type DepositAddress struct {
	Id      string
	Address string
	Network string
	Asset   string
}

type Withdrawal struct {
	ActivityId     string
	Asset          string
	Amount         string
	Destination    string
	IdempotencyKey string
}

// Service wraps the Prime REST services the custody wallet needs.
type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

// LoadCredentials builds Prime credentials, failing when any part is missing.
func LoadCredentials(accessKey, passphrase, signingKey string) (*credentials.Credentials, error) {
	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, provider.NewError("prime", "init", provider.CategoryNotConfigured,
			errors.New("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY"))
	}
	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func NewService(creds *credentials.Credentials, timeout time.Duration) (*Service, error) {
	httpClient, err := provider.NewHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, *httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = Portfolio{Id: p.Id, Name: p.Name}
	}
	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}
	return nil, fmt.Errorf("default portfolio not found")
}

// ResolveWallet returns the trading wallet for symbol, creating it when the
// portfolio has none.
func (s *Service) ResolveWallet(ctx context.Context, portfolioId, symbol string) (*WalletInfo, error) {
	response, err := s.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletTypeTrading,
		Symbols:     []string{symbol},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}
	for _, w := range response.Wallets {
		if strings.EqualFold(w.Symbol, symbol) {
			return &WalletInfo{Id: w.Id, Name: w.Name, Symbol: w.Symbol, Type: w.Type}, nil
		}
	}

	zap.L().Info("No trading wallet found, creating one",
		zap.String("portfolio_id", portfolioId),
		zap.String("symbol", symbol))

	created, err := s.walletsSvc.CreateWallet(ctx, &wallets.CreateWalletRequest{
		PortfolioId:    portfolioId,
		Name:           "clenja-" + strings.ToLower(symbol),
		Symbol:         symbol,
		Type:           walletTypeTrading,
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet: %w", err)
	}
	return &WalletInfo{Id: created.ActivityId, Name: created.Name, Symbol: created.Symbol, Type: created.Type}, nil
}

func (s *Service) CreateDepositAddress(ctx context.Context, portfolioId, walletId, asset, network string) (*DepositAddress, error) {
	response, err := s.walletsSvc.CreateWalletAddress(ctx, &wallets.CreateWalletAddressRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		NetworkId:   network,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	return &DepositAddress{
		Id:      response.AccountIdentifier,
		Address: response.Address,
		Network: network,
		Asset:   asset,
	}, nil
}

// CreateWithdrawalParams contains parameters for creating a withdrawal
type CreateWithdrawalParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Asset              string
	IdempotencyKey     string
}

// CreateWithdrawal sends funds from a wallet to a blockchain address.
// Asset is either a bare symbol or SYMBOL-networkId-networkType.
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*Withdrawal, error) {
	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", params.PortfolioId),
		zap.String("wallet_id", params.WalletId),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress))

	parts := strings.Split(params.Asset, "-")
	blockchainAddr := &model.BlockchainAddress{Address: params.DestinationAddress}
	if len(parts) >= 3 {
		blockchainAddr.Network = &model.NetworkDetails{Id: parts[1], Type: parts[2]}
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       params.PortfolioId,
		SourceWalletId:    params.WalletId,
		Amount:            params.Amount,
		IdempotencyKey:    params.IdempotencyKey,
		Symbol:            parts[0],
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	})
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", params.WalletId),
			zap.String("amount", params.Amount),
			zap.String("asset", params.Asset),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", params.WalletId),
		zap.String("amount", params.Amount))

	return &Withdrawal{
		ActivityId:     response.ActivityId,
		Asset:          params.Asset,
		Amount:         params.Amount,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}
