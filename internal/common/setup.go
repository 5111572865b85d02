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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"clenja-agent-go/internal/api"
	"clenja-agent-go/internal/audit"
	"clenja-agent-go/internal/chain"
	"clenja-agent-go/internal/challenge"
	"clenja-agent-go/internal/database"
	"clenja-agent-go/internal/formance"
	"clenja-agent-go/internal/intent"
	"clenja-agent-go/internal/listener"
	"clenja-agent-go/internal/llm"
	"clenja-agent-go/internal/llm/gemini"
	"clenja-agent-go/internal/llm/openai"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/orchestrator"
	"clenja-agent-go/internal/pending"
	"clenja-agent-go/internal/policy"
	"clenja-agent-go/internal/prime"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/provider/mock"
	"clenja-agent-go/internal/provider/offramp"
	"clenja-agent-go/internal/ratelimit"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	Config    *models.Config
	DbService *database.Service
	Tokens    models.TokenCatalog
	Providers *provider.Dispatcher
	Policy    *policy.Engine
	Audit     *audit.Recorder
	Ledger    *formance.Service
	Chat      *orchestrator.Handler
	API       *api.Service
	Listener  *listener.PayoutListener

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices builds every component the server and CLI share.
// Optional integrations that fail to start are logged and left out; only the
// database and token catalog are fatal.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	tokens, err := LoadTokens(cfg.Server.TokensFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{Config: cfg, DbService: dbService, Tokens: tokens}
	s.closers = append(s.closers, dbService.Close)

	s.Providers = s.initProviders(ctx)

	var publisher audit.Publisher
	if cfg.Audit.AMQPURL != "" {
		amqpPublisher, err := audit.NewAMQPPublisher(audit.AMQPConfig{URL: cfg.Audit.AMQPURL, Queue: cfg.Audit.AMQPQueue})
		if err != nil {
			zap.L().Warn("Audit AMQP fan-out disabled", zap.Error(err))
		} else {
			publisher = amqpPublisher
			s.closers = append(s.closers, func() {
				if err := amqpPublisher.Close(); err != nil {
					zap.L().Warn("Failed to close audit publisher", zap.Error(err))
				}
			})
		}
	}
	s.Audit = audit.NewRecorder(dbService, publisher)

	var journal orchestrator.Journal
	if cfg.Ledger.Enabled() {
		ledger, err := formance.NewService(ctx, cfg.Ledger)
		if err != nil {
			zap.L().Warn("Formance ledger mirror disabled", zap.Error(err))
		} else {
			s.Ledger = ledger
			journal = ledger
		}
	}

	s.Policy = policy.NewEngine(dbService, cfg.Policy, tokens)

	s.Chat = orchestrator.NewHandler(orchestrator.Deps{
		Store:      dbService,
		Resolver:   intent.NewResolver(s.initOracle(ctx), cfg.Oracle.Timeout),
		Policy:     s.Policy,
		Challenges: challenge.NewMachine(dbService, cfg.Challenge.TTL),
		Pending:    pending.NewRegister(dbService),
		Providers:  s.Providers,
		Limiter:    s.initLimiter(ctx),
		Audit:      s.Audit,
		Journal:    journal,
		Tokens:     tokens,
	}, orchestrator.Config{
		CashoutOTP:  cfg.Challenge.CashoutOTP,
		Country:     cfg.Offramp.Country,
		Currency:    cfg.Offramp.Currency,
		TurnTimeout: cfg.Server.TurnTimeout,
	})

	s.API = api.NewService(api.Config{
		Country:  cfg.Offramp.Country,
		Currency: cfg.Offramp.Currency,
	}, s.Chat, s.Providers, dbService, s.Audit)

	s.Listener = listener.NewPayoutListener(listener.PayoutListenerConfig{
		Store:           dbService,
		Source:          s.Providers,
		Auditor:         s.Audit,
		PollingInterval: cfg.Listener.PollingInterval,
		BatchSize:       cfg.Listener.BatchSize,
	})

	zap.L().Info("Services initialized",
		zap.String("wallet_mode", string(s.Providers.WalletMode())),
		zap.Bool("ready", s.Providers.Ready()),
		zap.Bool("ledger_mirror", s.Ledger != nil),
		zap.Bool("audit_fanout", publisher != nil))
	return s, nil
}

func (s *Services) initProviders(ctx context.Context) *provider.Dispatcher {
	cfg := s.Config
	dispatcherCfg := provider.DispatcherConfig{
		MockWallet:      mock.NewWallet(s.Tokens),
		MockOfframp:     mock.NewOfframp(),
		WalletLive:      cfg.Wallet.Mode == "prime",
		WalletTimeout:   cfg.Wallet.Timeout,
		WalletFallback:  cfg.Wallet.FallbackToMock,
		OfframpLive:     cfg.Offramp.Mode == "live",
		OfframpTimeout:  cfg.Offramp.Timeout,
		OfframpFallback: cfg.Offramp.FallbackToMock,
		Strict:          cfg.Safety.StrictLiveMode,
	}

	if dispatcherCfg.WalletLive {
		wallet, err := s.initPrimeWallet(ctx)
		if err != nil {
			zap.L().Error("Prime wallet unavailable", zap.Error(err))
		} else {
			dispatcherCfg.Wallet = wallet
		}
	}

	if dispatcherCfg.OfframpLive {
		client, err := offramp.NewClient(offramp.Config{
			BaseURL: cfg.Offramp.BaseURL,
			APIKey:  cfg.Offramp.APIKey,
			Timeout: cfg.Offramp.Timeout,
		})
		if err != nil {
			zap.L().Error("Live offramp unavailable", zap.Error(err))
		} else {
			dispatcherCfg.Offramp = client
		}
	}

	return provider.NewDispatcher(dispatcherCfg)
}

func (s *Services) initPrimeWallet(ctx context.Context) (*prime.Wallet, error) {
	cfg := s.Config.Wallet

	zap.L().Info("Loading Prime API credentials")
	creds, err := prime.LoadCredentials(cfg.PrimeAccessKey, cfg.PrimePassphrase, cfg.PrimeSigningKey)
	if err != nil {
		return nil, err
	}

	primeService, err := prime.NewService(creds, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	portfolioId := cfg.PrimePortfolioId
	if portfolioId == "" {
		zap.L().Info("Finding default portfolio")
		portfolio, err := primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			return nil, err
		}
		zap.L().Info("Using default portfolio",
			zap.String("name", portfolio.Name),
			zap.String("id", portfolio.Id))
		portfolioId = portfolio.Id
	}

	walletId := cfg.PrimeWalletId
	if walletId == "" {
		info, err := primeService.ResolveWallet(ctx, portfolioId, "CELO")
		if err != nil {
			return nil, err
		}
		walletId = info.Id
	}

	var balances prime.BalanceReader
	if cfg.ChainRPCURL != "" {
		reader, err := chain.Dial(ctx, cfg.ChainRPCURL, s.Tokens)
		if err != nil {
			zap.L().Warn("Chain balance reader unavailable", zap.Error(err))
		} else {
			balances = reader
			s.closers = append(s.closers, reader.Close)
		}
	}

	return prime.NewWallet(primeService, prime.WalletConfig{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		NetworkId:   cfg.PrimeNetworkId,
	}, s.Tokens, s.DbService, balances)
}

func (s *Services) initOracle(ctx context.Context) llm.Client {
	cfg := s.Config.Oracle

	var (
		client llm.Client
		err    error
	)
	switch cfg.Provider {
	case "", "none":
		return nil
	case "openai":
		client, err = openai.NewClient(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "gemini":
		client, err = gemini.NewClient(ctx, cfg.APIKey, cfg.Model)
	default:
		err = fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		zap.L().Warn("Natural-language oracle disabled, rules only", zap.Error(err))
		return nil
	}

	zap.L().Info("Natural-language oracle enabled",
		zap.String("provider", client.Name()),
		zap.String("model", cfg.Model))
	return client
}

func (s *Services) initLimiter(ctx context.Context) ratelimit.Limiter {
	cfg := s.Config.RateLimit
	if cfg.Backend == "redis" {
		limiter, err := ratelimit.NewRedis(ctx, ratelimit.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Window:   cfg.Window,
			Max:      cfg.MaxPerWindow,
		})
		if err == nil {
			s.closers = append(s.closers, func() {
				if err := limiter.Close(); err != nil {
					zap.L().Warn("Failed to close redis limiter", zap.Error(err))
				}
			})
			return limiter
		}
		zap.L().Warn("Redis rate limiter unavailable, using in-memory limiter", zap.Error(err))
	}
	return ratelimit.NewMemory(cfg.Window, cfg.MaxPerWindow)
}

// Close releases resources in reverse order of acquisition
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
