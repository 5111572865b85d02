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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	durations := map[string]time.Duration{}
	defaults := []struct {
		key string
		def time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second},
		{"DB_PING_TIMEOUT", 5 * time.Second},
		{"DB_BUSY_TIMEOUT", 5 * time.Second},
		{"TURN_TIMEOUT", 20 * time.Second},
		{"SHUTDOWN_TIMEOUT", 30 * time.Second},
		{"CHALLENGE_TTL", 300 * time.Second},
		{"RATE_LIMIT_WINDOW", 60 * time.Second},
		{"LLM_TIMEOUT", 8 * time.Second},
		{"WALLET_TIMEOUT", 12 * time.Second},
		{"OFFRAMP_TIMEOUT", 12 * time.Second},
		{"LISTENER_POLLING_INTERVAL", 30 * time.Second},
	}
	for _, d := range defaults {
		value, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		durations[d.key] = value
	}

	dailyLimit, err := getEnvDecimal("POLICY_DAILY_LIMIT_USD", decimal.NewFromInt(200))
	if err != nil {
		return nil, err
	}

	perTxLimit, err := getEnvDecimal("POLICY_PER_TX_LIMIT_USD", decimal.NewFromInt(50))
	if err != nil {
		return nil, err
	}

	oracleProvider := strings.ToLower(getEnvString("LLM_PROVIDER", "none"))
	oracleModel := getEnvString("LLM_MODEL", "")
	if oracleModel == "" {
		switch oracleProvider {
		case "openai":
			oracleModel = "gpt-4o-mini"
		case "gemini":
			oracleModel = "gemini-2.0-flash"
		}
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "clenja.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  durations["DB_CONN_MAX_LIFETIME"],
			ConnMaxIdleTime:  durations["DB_CONN_MAX_IDLE_TIME"],
			PingTimeout:      durations["DB_PING_TIMEOUT"],
			BusyTimeout:      durations["DB_BUSY_TIMEOUT"],
			ReceiptRetention: getEnvInt("RECEIPT_RETENTION", 1000),
			AuditRetention:   getEnvInt("AUDIT_RETENTION", 5000),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			TurnTimeout:     durations["TURN_TIMEOUT"],
			ShutdownTimeout: durations["SHUTDOWN_TIMEOUT"],
			TokensFile:      getEnvString("TOKENS_FILE", "tokens.yaml"),
		},
		Policy: models.PolicyConfig{
			DefaultDailyLimitUsd: dailyLimit,
			DefaultPerTxLimitUsd: perTxLimit,
		},
		Challenge: models.ChallengeConfig{
			TTL:        durations["CHALLENGE_TTL"],
			CashoutOTP: getEnvString("CASHOUT_OTP", "123456"),
		},
		RateLimit: models.RateLimitConfig{
			Backend:       strings.ToLower(getEnvString("RATE_LIMIT_BACKEND", "memory")),
			Window:        durations["RATE_LIMIT_WINDOW"],
			MaxPerWindow:  getEnvInt("RATE_LIMIT_MAX", 20),
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Oracle: models.OracleConfig{
			Provider: oracleProvider,
			APIKey:   getEnvString("LLM_API_KEY", ""),
			BaseURL:  getEnvString("LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:    oracleModel,
			Timeout:  durations["LLM_TIMEOUT"],
		},
		Safety: models.SafetyConfig{
			StrictLiveMode: getEnvBool("STRICT_LIVE_MODE", false),
		},
		Wallet: models.WalletConfig{
			Mode:             strings.ToLower(getEnvString("WALLET_MODE", "mock")),
			Timeout:          durations["WALLET_TIMEOUT"],
			FallbackToMock:   getEnvBool("WALLET_FALLBACK_TO_MOCK_ON_ERROR", true),
			PrimeAccessKey:   getEnvString("PRIME_ACCESS_KEY", ""),
			PrimePassphrase:  getEnvString("PRIME_PASSPHRASE", ""),
			PrimeSigningKey:  getEnvString("PRIME_SIGNING_KEY", ""),
			PrimePortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
			PrimeWalletId:    getEnvString("PRIME_WALLET_ID", ""),
			PrimeNetworkId:   getEnvString("PRIME_NETWORK_ID", "celo-mainnet"),
			ChainRPCURL:      getEnvString("CELO_RPC_URL", ""),
		},
		Offramp: models.OfframpConfig{
			Mode:           strings.ToLower(getEnvString("OFFRAMP_MODE", "mock")),
			BaseURL:        getEnvString("OFFRAMP_API_BASE", ""),
			APIKey:         getEnvString("OFFRAMP_API_KEY", ""),
			Timeout:        durations["OFFRAMP_TIMEOUT"],
			FallbackToMock: getEnvBool("OFFRAMP_FALLBACK_TO_MOCK_ON_ERROR", true),
			Country:        getEnvString("OFFRAMP_DEFAULT_COUNTRY", "NG"),
			Currency:       getEnvString("OFFRAMP_DEFAULT_CURRENCY", "NGN"),
		},
		Ledger: models.LedgerConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "clenja"),
		},
		Audit: models.AuditConfig{
			AMQPURL:   getEnvString("AUDIT_AMQP_URL", ""),
			AMQPQueue: getEnvString("AUDIT_AMQP_QUEUE", "clenja.audit"),
		},
		Listener: models.ListenerConfig{
			PollingInterval: durations["LISTENER_POLLING_INTERVAL"],
			BatchSize:       getEnvInt("LISTENER_BATCH_SIZE", 100),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return amount, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
