package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:             filepath.Join(t.TempDir(), "state.db"),
		MaxOpenConns:     8,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Minute,
		ConnMaxIdleTime:  time.Minute,
		PingTimeout:      time.Second,
		BusyTimeout:      5 * time.Second,
		ReceiptRetention: 5,
		AuditRetention:   5,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func newChallenge(id, userId string, expiresIn time.Duration) *models.Challenge {
	now := time.Now().UTC()
	return &models.Challenge{
		Id:             id,
		UserId:         userId,
		Type:           models.ChallengeNewRecipientLast4,
		ExpectedAnswer: "1234",
		Status:         models.ChallengePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(expiresIn),
		Context:        []byte(`{"kind":"send"}`),
	}
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"no connections", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestChallenge_CreateAndGet(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	ch := newChallenge("ch_1", "user1", 5*time.Minute)
	if _, err := service.CreateChallenge(ctx, ch); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	got, err := service.GetChallenge(ctx, "ch_1")
	if err != nil {
		t.Fatalf("GetChallenge failed: %v", err)
	}
	if got.UserId != "user1" || got.Status != models.ChallengePending || got.ExpectedAnswer != "1234" {
		t.Errorf("Unexpected challenge: %+v", got)
	}
	if string(got.Context) != `{"kind":"send"}` {
		t.Errorf("Expected context to round trip, got %s", got.Context)
	}
	if got.ExpiresAt.UnixMilli() != ch.ExpiresAt.UnixMilli() {
		t.Errorf("Expected expiresAt %v, got %v", ch.ExpiresAt, got.ExpiresAt)
	}

	if _, err := service.GetChallenge(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestChallenge_NewChallengeSupersedesPending(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.CreateChallenge(ctx, newChallenge("ch_old", "user1", 5*time.Minute)); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}
	if _, err := service.CreateChallenge(ctx, newChallenge("ch_other_user", "user2", 5*time.Minute)); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	superseded, err := service.CreateChallenge(ctx, newChallenge("ch_new", "user1", 5*time.Minute))
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}
	if superseded != 1 {
		t.Errorf("Expected 1 superseded challenge, got %d", superseded)
	}

	old, _ := service.GetChallenge(ctx, "ch_old")
	if old.Status != models.ChallengeExpired {
		t.Errorf("Expected old challenge expired, got %s", old.Status)
	}
	other, _ := service.GetChallenge(ctx, "ch_other_user")
	if other.Status != models.ChallengePending {
		t.Errorf("Expected other user's challenge untouched, got %s", other.Status)
	}

	live, err := service.GetLiveChallenge(ctx, "user1", time.Now())
	if err != nil {
		t.Fatalf("GetLiveChallenge failed: %v", err)
	}
	if live.Id != "ch_new" {
		t.Errorf("Expected live challenge ch_new, got %s", live.Id)
	}
}

func TestChallenge_LiveIgnoresExpired(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.CreateChallenge(ctx, newChallenge("ch_1", "user1", -time.Second)); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	if _, err := service.GetLiveChallenge(ctx, "user1", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for expired challenge, got %v", err)
	}
}

func TestChallenge_TransitionIsOneShot(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.CreateChallenge(ctx, newChallenge("ch_1", "user1", 5*time.Minute)); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	if err := service.TransitionChallenge(ctx, "ch_1", models.ChallengeVerified); err != nil {
		t.Fatalf("First transition failed: %v", err)
	}
	if err := service.TransitionChallenge(ctx, "ch_1", models.ChallengeVerified); !errors.Is(err, store.ErrChallengeNotPending) {
		t.Errorf("Expected ErrChallengeNotPending, got %v", err)
	}
	if err := service.TransitionChallenge(ctx, "nope", models.ChallengeVerified); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := service.TransitionChallenge(ctx, "ch_1", models.ChallengePending); err == nil {
		t.Errorf("Expected error transitioning back to pending")
	}
}

func TestChallenge_ConcurrentTransitionSingleWinner(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.CreateChallenge(ctx, newChallenge("ch_1", "user1", 5*time.Minute)); err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := service.TransitionChallenge(ctx, "ch_1", models.ChallengeVerified)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrChallengeNotPending) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful transition, got %d", wins)
	}
}

func TestPendingAction_SetOverwritesAndTakeConsumes(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if err := service.SetPendingAction(ctx, &models.PendingAction{UserId: "user1", Kind: "confirm_delete_recipient", Payload: []byte(`{"name":"gabriel"}`)}); err != nil {
		t.Fatalf("SetPendingAction failed: %v", err)
	}
	if err := service.SetPendingAction(ctx, &models.PendingAction{UserId: "user1", Kind: "cashout_bank_details", Payload: []byte(`{"amount":"50"}`)}); err != nil {
		t.Fatalf("SetPendingAction failed: %v", err)
	}

	got, err := service.GetPendingAction(ctx, "user1")
	if err != nil {
		t.Fatalf("GetPendingAction failed: %v", err)
	}
	if got.Kind != "cashout_bank_details" {
		t.Errorf("Expected latest pending action, got %s", got.Kind)
	}

	taken, err := service.TakePendingAction(ctx, "user1")
	if err != nil {
		t.Fatalf("TakePendingAction failed: %v", err)
	}
	if string(taken.Payload) != `{"amount":"50"}` {
		t.Errorf("Unexpected payload %s", taken.Payload)
	}

	if _, err := service.TakePendingAction(ctx, "user1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second take, got %v", err)
	}
}

func TestPolicy_DefaultsAndUpdate(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	defaults := models.UserPolicy{
		UserId:        "user1",
		DailyLimitUsd: decimal.NewFromInt(200),
		PerTxLimitUsd: decimal.NewFromInt(50),
	}

	policy, err := service.GetOrCreatePolicy(ctx, defaults)
	if err != nil {
		t.Fatalf("GetOrCreatePolicy failed: %v", err)
	}
	if !policy.DailyLimitUsd.Equal(decimal.NewFromInt(200)) || policy.Paused {
		t.Errorf("Unexpected default policy: %+v", policy)
	}

	policy.Paused = true
	policy.PerTxLimitUsd = decimal.RequireFromString("75.5")
	if err := service.UpdatePolicy(ctx, policy); err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}

	// Defaults must not overwrite an existing policy
	again, err := service.GetOrCreatePolicy(ctx, defaults)
	if err != nil {
		t.Fatalf("GetOrCreatePolicy failed: %v", err)
	}
	if !again.Paused || again.PerTxLimitUsd.String() != "75.5" {
		t.Errorf("Expected updated policy, got %+v", again)
	}
}

func TestSpend_ConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.AddSpend(ctx, "user1", "2026-10-18", decimal.RequireFromString("2.5")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("AddSpend failed: %v", err)
	}

	total, err := service.GetSpend(ctx, "user1", "2026-10-18")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected total spend 50, got %s", total.String())
	}

	other, _ := service.GetSpend(ctx, "user1", "2026-10-19")
	if !other.IsZero() {
		t.Errorf("Expected next day bucket to be empty, got %s", other.String())
	}
}

func TestSpend_RejectsNegative(t *testing.T) {
	service := setupTestDb(t)
	if _, err := service.AddSpend(context.Background(), "user1", "2026-10-18", decimal.NewFromInt(-1)); err == nil {
		t.Errorf("Expected error for negative spend")
	}
}

func TestReceipts_NewestFirstAndCapped(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 7; i++ {
		err := service.AddReceipt(ctx, &models.Receipt{
			Id:        fmt.Sprintf("rcpt_%d", i),
			UserId:    "user1",
			Kind:      models.ReceiptSend,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Token:     "cUSD",
			Ref:       fmt.Sprintf("0x%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AddReceipt failed: %v", err)
		}
	}

	receipts, err := service.ListReceipts(ctx, "user1", 0)
	if err != nil {
		t.Fatalf("ListReceipts failed: %v", err)
	}
	if len(receipts) != 5 {
		t.Fatalf("Expected retention of 5 receipts, got %d", len(receipts))
	}
	if receipts[0].Id != "rcpt_6" || receipts[4].Id != "rcpt_2" {
		t.Errorf("Expected newest first, got %s .. %s", receipts[0].Id, receipts[4].Id)
	}
	if !receipts[0].Amount.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Expected amount 7, got %s", receipts[0].Amount)
	}
}

func TestAuditEvents_FilterByUser(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	events := []models.AuditEvent{
		{Id: "aud_1", UserId: "user1", Action: "chat.message", Status: models.AuditOk, Detail: map[string]string{"intent": "balance"}},
		{Id: "aud_2", UserId: "user2", Action: "chat.send.blocked", Status: models.AuditError},
		{Id: "aud_3", Action: "listener.poll", Status: models.AuditOk},
	}
	for i := range events {
		if err := service.AddAuditEvent(ctx, &events[i]); err != nil {
			t.Fatalf("AddAuditEvent failed: %v", err)
		}
	}

	all, err := service.ListAuditEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 events, got %d", len(all))
	}

	mine, err := service.ListAuditEvents(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents failed: %v", err)
	}
	if len(mine) != 1 || mine[0].Detail["intent"] != "balance" {
		t.Errorf("Unexpected user events: %+v", mine)
	}
}

func TestIdempotency_ReserveCompleteReplay(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	res, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-a")
	if err != nil {
		t.Fatalf("ReserveIdempotency failed: %v", err)
	}
	if res.Replay {
		t.Fatalf("First reservation must not replay")
	}

	if _, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-a"); !errors.Is(err, store.ErrIdempotencyInProgress) {
		t.Errorf("Expected ErrIdempotencyInProgress, got %v", err)
	}

	if err := service.CompleteIdempotency(ctx, "offramp.create", "key-1", []byte(`{"payoutId":"po_1"}`)); err != nil {
		t.Fatalf("CompleteIdempotency failed: %v", err)
	}

	replay, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-a")
	if err != nil {
		t.Fatalf("ReserveIdempotency failed: %v", err)
	}
	if !replay.Replay || string(replay.Response) != `{"payoutId":"po_1"}` {
		t.Errorf("Expected replay of stored response, got %+v", replay)
	}

	if _, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-b"); !errors.Is(err, store.ErrIdempotencyMismatch) {
		t.Errorf("Expected ErrIdempotencyMismatch, got %v", err)
	}

	// Same key under another action is independent
	other, err := service.ReserveIdempotency(ctx, "chat.confirm", "key-1", "hash-b")
	if err != nil || other.Replay {
		t.Errorf("Expected fresh reservation for other action, got %+v, %v", other, err)
	}
}

func TestIdempotency_ReleaseAllowsRetry(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-a"); err != nil {
		t.Fatalf("ReserveIdempotency failed: %v", err)
	}
	if err := service.ReleaseIdempotency(ctx, "offramp.create", "key-1"); err != nil {
		t.Fatalf("ReleaseIdempotency failed: %v", err)
	}
	res, err := service.ReserveIdempotency(ctx, "offramp.create", "key-1", "hash-a")
	if err != nil || res.Replay {
		t.Errorf("Expected a fresh reservation after release, got %+v, %v", res, err)
	}
}

func TestRecipients_CaseInsensitiveUpsert(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	first, created, err := service.UpsertRecipient(ctx, "user1", "Gabriel", "0x1111111111111111111111111111111111111111")
	if err != nil || !created {
		t.Fatalf("Expected created recipient, got %v, %v", created, err)
	}

	second, created, err := service.UpsertRecipient(ctx, "user1", "gabriel", "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("UpsertRecipient failed: %v", err)
	}
	if created {
		t.Errorf("Expected update, not create")
	}
	if second.Id != first.Id {
		t.Errorf("Expected same record id %s, got %s", first.Id, second.Id)
	}

	recipients, err := service.ListRecipients(ctx, "user1")
	if err != nil {
		t.Fatalf("ListRecipients failed: %v", err)
	}
	if len(recipients) != 1 || recipients[0].Address != "0x2222222222222222222222222222222222222222" {
		t.Errorf("Expected one updated recipient, got %+v", recipients)
	}

	if err := service.DeleteRecipient(ctx, "user1", "GABRIEL"); err != nil {
		t.Fatalf("DeleteRecipient failed: %v", err)
	}
	if err := service.DeleteRecipient(ctx, "user1", "gabriel"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCashoutOrders_OpenListing(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	for _, id := range []string{"po_1", "po_2"} {
		err := service.AddCashoutOrder(ctx, &models.CashoutOrder{
			PayoutId: id, UserId: "user1", Backend: "mock", Status: models.PayoutPending,
			Amount: decimal.NewFromInt(50), Token: "cUSD",
		})
		if err != nil {
			t.Fatalf("AddCashoutOrder failed: %v", err)
		}
	}

	updated, err := service.UpdateCashoutStatus(ctx, "po_1", models.PayoutSettled)
	if err != nil {
		t.Fatalf("UpdateCashoutStatus failed: %v", err)
	}
	if updated.Status != models.PayoutSettled {
		t.Errorf("Expected settled, got %s", updated.Status)
	}

	open, err := service.ListOpenCashoutOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpenCashoutOrders failed: %v", err)
	}
	if len(open) != 1 || open[0].PayoutId != "po_2" {
		t.Errorf("Expected only po_2 open, got %+v", open)
	}

	if _, err := service.UpdateCashoutStatus(ctx, "po_missing", models.PayoutFailed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCashoutOrders_StatusOnlyMovesForward(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	err := service.AddCashoutOrder(ctx, &models.CashoutOrder{
		PayoutId: "po_1", UserId: "user1", Backend: "mock", Status: models.PayoutPending,
		Amount: decimal.NewFromInt(50), Token: "cUSD",
	})
	if err != nil {
		t.Fatalf("AddCashoutOrder failed: %v", err)
	}

	steps := []struct {
		to   models.PayoutStatus
		want models.PayoutStatus
	}{
		{models.PayoutProcessing, models.PayoutProcessing},
		{models.PayoutPending, models.PayoutProcessing},
		{models.PayoutProcessing, models.PayoutProcessing},
		{models.PayoutSettled, models.PayoutSettled},
		{models.PayoutFailed, models.PayoutSettled},
		{models.PayoutPending, models.PayoutSettled},
	}
	for _, step := range steps {
		order, err := service.UpdateCashoutStatus(ctx, "po_1", step.to)
		if err != nil {
			t.Fatalf("UpdateCashoutStatus(%s) failed: %v", step.to, err)
		}
		if order.Status != step.want {
			t.Errorf("after %s: status = %s, want %s", step.to, order.Status, step.want)
		}
	}
}

func TestWallets_UpsertKeepsCreatedAt(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	record := &models.WalletRecord{UserId: "user1", Backend: "prime", Address: "0xaaa", Meta: map[string]string{"wallet_id": "w1"}}
	if err := service.UpsertWallet(ctx, record); err != nil {
		t.Fatalf("UpsertWallet failed: %v", err)
	}
	if err := service.UpsertWallet(ctx, &models.WalletRecord{UserId: "user1", Backend: "prime", Address: "0xbbb"}); err != nil {
		t.Fatalf("UpsertWallet failed: %v", err)
	}

	got, err := service.GetWallet(ctx, "user1", "prime")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if got.Address != "0xbbb" {
		t.Errorf("Expected updated address, got %s", got.Address)
	}
	if got.CreatedAt.UnixMilli() != record.CreatedAt.UnixMilli() {
		t.Errorf("Expected created_at preserved")
	}

	if _, err := service.GetWallet(ctx, "user1", "mock"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
