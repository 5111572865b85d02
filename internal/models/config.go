package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Policy    PolicyConfig
	Challenge ChallengeConfig
	RateLimit RateLimitConfig
	Oracle    OracleConfig
	Wallet    WalletConfig
	Offramp   OfframpConfig
	Ledger    LedgerConfig
	Audit     AuditConfig
	Listener  ListenerConfig
	Safety    SafetyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	ReceiptRetention int
	AuditRetention   int
}

// ServerConfig holds HTTP API and per-turn settings
type ServerConfig struct {
	Addr            string
	TurnTimeout     time.Duration
	ShutdownTimeout time.Duration
	TokensFile      string
}

// PolicyConfig holds the defaults applied to a user's policy on first use
type PolicyConfig struct {
	DefaultDailyLimitUsd decimal.Decimal
	DefaultPerTxLimitUsd decimal.Decimal
}

// ChallengeConfig holds challenge lifetimes and the cashout OTP source
type ChallengeConfig struct {
	TTL        time.Duration
	CashoutOTP string // empty means a random numeric code per challenge
}

// RateLimitConfig holds the per-user sliding window settings
type RateLimitConfig struct {
	Backend       string // memory | redis
	Window        time.Duration
	MaxPerWindow  int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// OracleConfig holds the natural-language fallback settings
type OracleConfig struct {
	Provider string // none | openai | gemini
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// SafetyConfig holds the live-mode guard rails shared by every provider
type SafetyConfig struct {
	StrictLiveMode bool
}

// WalletConfig holds wallet custody backend settings
type WalletConfig struct {
	Mode           string // mock | prime
	Timeout        time.Duration
	FallbackToMock bool

	PrimeAccessKey   string
	PrimePassphrase  string
	PrimeSigningKey  string
	PrimePortfolioId string
	PrimeWalletId    string
	PrimeNetworkId   string

	ChainRPCURL string
}

// OfframpConfig holds fiat off-ramp backend settings
type OfframpConfig struct {
	Mode           string // mock | live
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	FallbackToMock bool
	Country        string
	Currency       string
}

// LedgerConfig holds the optional Formance ledger mirror settings
type LedgerConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether a Formance stack is configured
func (c LedgerConfig) Enabled() bool {
	return c.StackURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// AuditConfig holds the optional AMQP fan-out for audit events
type AuditConfig struct {
	AMQPURL   string
	AMQPQueue string
}

// ListenerConfig holds payout status listener settings
type ListenerConfig struct {
	PollingInterval time.Duration
	BatchSize       int
}
