package store

import (
	"context"
	"errors"
	"time"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrChallengeNotPending    = errors.New("challenge is not pending")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrIdempotencyInProgress  = errors.New("idempotent request already in progress")
	ErrIdempotencyMismatch    = errors.New("idempotency key reused with a different payload")
)

// IdempotencyReservation is the outcome of claiming an idempotency key.
// When Replay is set the caller must return Response without re-executing.
type IdempotencyReservation struct {
	Replay   bool
	Response []byte
}

// StateStore is the single source of truth for conversational and financial state.
// Every mutation is atomic per call.
type StateStore interface {
	// --- Challenges ---
	// CreateChallenge persists a pending challenge and expires any other pending
	// challenge of the same user in the same transaction.
	CreateChallenge(ctx context.Context, ch *models.Challenge) (superseded int64, err error)
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	// GetLiveChallenge returns the newest pending, unexpired challenge of a user.
	GetLiveChallenge(ctx context.Context, userId string, now time.Time) (*models.Challenge, error)
	// TransitionChallenge moves a challenge out of pending exactly once.
	TransitionChallenge(ctx context.Context, id string, to models.ChallengeStatus) error
	ExpireUserChallenges(ctx context.Context, userId string) (int64, error)

	// --- Pending actions ---
	SetPendingAction(ctx context.Context, action *models.PendingAction) error
	GetPendingAction(ctx context.Context, userId string) (*models.PendingAction, error)
	// TakePendingAction returns and deletes the pending action in one step.
	TakePendingAction(ctx context.Context, userId string) (*models.PendingAction, error)
	ClearPendingAction(ctx context.Context, userId string) error

	// --- Policy ---
	GetOrCreatePolicy(ctx context.Context, defaults models.UserPolicy) (*models.UserPolicy, error)
	UpdatePolicy(ctx context.Context, policy *models.UserPolicy) error
	GetSpend(ctx context.Context, userId, day string) (decimal.Decimal, error)
	AddSpend(ctx context.Context, userId, day string, amountUsd decimal.Decimal) (decimal.Decimal, error)

	// --- Receipts and audit ---
	AddReceipt(ctx context.Context, receipt *models.Receipt) error
	ListReceipts(ctx context.Context, userId string, limit int) ([]models.Receipt, error)
	AddAuditEvent(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, userId string, limit int) ([]models.AuditEvent, error)

	// --- Idempotency ---
	ReserveIdempotency(ctx context.Context, action, key, requestHash string) (*IdempotencyReservation, error)
	CompleteIdempotency(ctx context.Context, action, key string, response []byte) error
	ReleaseIdempotency(ctx context.Context, action, key string) error

	// --- Recipients ---
	UpsertRecipient(ctx context.Context, userId, name, address string) (*models.Recipient, bool, error)
	GetRecipient(ctx context.Context, userId, name string) (*models.Recipient, error)
	ListRecipients(ctx context.Context, userId string) ([]models.Recipient, error)
	DeleteRecipient(ctx context.Context, userId, name string) error

	// --- Beneficiaries ---
	AddBeneficiary(ctx context.Context, beneficiary *models.Beneficiary) error
	GetBeneficiary(ctx context.Context, userId, id string) (*models.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, userId string) ([]models.Beneficiary, error)

	// --- Cashouts ---
	AddCashoutOrder(ctx context.Context, order *models.CashoutOrder) error
	GetCashoutOrder(ctx context.Context, payoutId string) (*models.CashoutOrder, error)
	UpdateCashoutStatus(ctx context.Context, payoutId string, status models.PayoutStatus) (*models.CashoutOrder, error)
	ListOpenCashoutOrders(ctx context.Context, limit int) ([]models.CashoutOrder, error)

	// --- Wallets ---
	UpsertWallet(ctx context.Context, record *models.WalletRecord) error
	GetWallet(ctx context.Context, userId, backend string) (*models.WalletRecord, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
