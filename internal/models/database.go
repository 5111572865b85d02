package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ChallengeType string

const (
	ChallengeNewRecipientLast4 ChallengeType = "new_recipient_last4"
	ChallengeCashoutOTP        ChallengeType = "cashout_otp"
)

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeExpired  ChallengeStatus = "expired"
)

// Challenge is a short-lived proof-of-intent check gating an irreversible action
type Challenge struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	Type           ChallengeType   `db:"type"`
	ExpectedAnswer string          `db:"expected_answer"`
	Status         ChallengeStatus `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
	Context        json.RawMessage `db:"context"`
}

// PendingAction holds non-security multi-turn context awaiting the next message
type PendingAction struct {
	UserId    string          `db:"user_id"`
	Kind      string          `db:"kind"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

// UserPolicy represents a user's spend limits and pause flag
type UserPolicy struct {
	UserId         string          `db:"user_id"`
	DailyLimitUsd  decimal.Decimal `db:"daily_limit_usd"`
	PerTxLimitUsd  decimal.Decimal `db:"per_tx_limit_usd"`
	Paused         bool            `db:"paused"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type ReceiptKind string

const (
	ReceiptSend    ReceiptKind = "send"
	ReceiptSwap    ReceiptKind = "swap"
	ReceiptCashout ReceiptKind = "cashout"
)

// Receipt is the immutable record of a completed action
type Receipt struct {
	Id        string          `db:"id" json:"id"`
	UserId    string          `db:"user_id" json:"userId"`
	Kind      ReceiptKind     `db:"kind" json:"kind"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Token     string          `db:"token" json:"token"`
	Ref       string          `db:"ref" json:"ref"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// Recipient is a saved on-chain address, unique per user by case-insensitive name
type Recipient struct {
	Id        string    `db:"id" json:"id"`
	UserId    string    `db:"user_id" json:"userId"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Beneficiary is a saved bank account used for cashouts
type Beneficiary struct {
	Id                  string    `db:"id" json:"id"`
	UserId              string    `db:"user_id" json:"userId"`
	Country             string    `db:"country" json:"country"`
	BankName            string    `db:"bank_name" json:"bankName"`
	AccountName         string    `db:"account_name" json:"accountName"`
	AccountNumber       string    `db:"account_number" json:"-"`
	AccountNumberMasked string    `db:"account_number_masked" json:"accountNumberMasked"`
	AccountNumberLast4  string    `db:"account_number_last4" json:"accountNumberLast4"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutSettled    PayoutStatus = "settled"
	PayoutFailed     PayoutStatus = "failed"
)

// Rank orders statuses along the payout lifecycle. Settled and failed share
// the final rank so one can never replace the other.
func (s PayoutStatus) Rank() int {
	switch s {
	case PayoutPending:
		return 0
	case PayoutProcessing:
		return 1
	case PayoutSettled, PayoutFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the payout can no longer change state
func (s PayoutStatus) Terminal() bool {
	return s == PayoutSettled || s == PayoutFailed
}

// CashoutOrder tracks a payout created against an off-ramp backend
type CashoutOrder struct {
	PayoutId      string          `db:"payout_id" json:"payoutId"`
	UserId        string          `db:"user_id" json:"userId"`
	Backend       string          `db:"backend" json:"backend"`
	Status        PayoutStatus    `db:"status" json:"status"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Token         string          `db:"token" json:"token"`
	BeneficiaryId string          `db:"beneficiary_id" json:"beneficiaryId,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

type AuditStatus string

const (
	AuditOk    AuditStatus = "ok"
	AuditError AuditStatus = "error"
)

// AuditEvent is an append-only postmortem record, never read by business logic
type AuditEvent struct {
	Id     string            `db:"id" json:"id"`
	Ts     time.Time         `db:"ts" json:"ts"`
	UserId string            `db:"user_id" json:"userId,omitempty"`
	Action string            `db:"action" json:"action"`
	Status AuditStatus       `db:"status" json:"status"`
	Detail map[string]string `db:"detail" json:"detail,omitempty"`
}

// IdempotencyRecord lets a retried request receive the original response
type IdempotencyRecord struct {
	Key         string          `db:"key"`
	Action      string          `db:"action"`
	RequestHash string          `db:"request_hash"`
	Status      string          `db:"status"` // in_progress | completed
	Response    json.RawMessage `db:"response"`
	CreatedAt   time.Time       `db:"created_at"`
}

// WalletRecord is the address linked to a user on a given custody backend
type WalletRecord struct {
	UserId    string            `db:"user_id"`
	Backend   string            `db:"backend"`
	Address   string            `db:"address"`
	Meta      map[string]string `db:"meta"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`
}
