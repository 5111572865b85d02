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

package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.CashoutOrder
}

func newMemOrders(orders ...models.CashoutOrder) *memOrders {
	m := &memOrders{orders: make(map[string]*models.CashoutOrder)}
	for i := range orders {
		o := orders[i]
		m.orders[o.PayoutId] = &o
	}
	return m
}

func (m *memOrders) ListOpenCashoutOrders(_ context.Context, limit int) ([]models.CashoutOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CashoutOrder
	for _, o := range m.orders {
		if !o.Status.Terminal() && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateCashoutStatus(_ context.Context, payoutId string, status models.PayoutStatus) (*models.CashoutOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[payoutId]
	if !ok {
		return nil, errors.New("not found")
	}
	if status.Rank() > o.Status.Rank() {
		o.Status = status
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) status(id string) models.PayoutStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type fixedSource struct {
	statuses map[string]models.PayoutStatus
	backends sync.Map
}

func (f *fixedSource) PayoutStatus(_ context.Context, backend, payoutId string) (*models.PayoutState, error) {
	f.backends.Store(payoutId, backend)
	status, ok := f.statuses[payoutId]
	if !ok {
		return nil, errors.New("upstream unavailable")
	}
	return &models.PayoutState{PayoutId: payoutId, Status: status, UpdatedAt: time.Now()}, nil
}

type countingAuditor struct {
	mu    sync.Mutex
	count int
}

func (c *countingAuditor) Ok(context.Context, string, string, map[string]string) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func order(id, backend string, status models.PayoutStatus) models.CashoutOrder {
	return models.CashoutOrder{
		PayoutId: id,
		UserId:   "u1",
		Backend:  backend,
		Status:   status,
		Amount:   decimal.NewFromInt(10),
		Token:    "cUSD",
	}
}

func TestPoll_UpdatesChangedOrders(t *testing.T) {
	orders := newMemOrders(
		order("po_1", "mock", models.PayoutPending),
		order("po_2", "live", models.PayoutProcessing),
		order("po_3", "mock", models.PayoutPending),
		order("po_4", "mock", models.PayoutSettled),
	)
	source := &fixedSource{statuses: map[string]models.PayoutStatus{
		"po_1": models.PayoutSettled,
		"po_2": models.PayoutProcessing,
		// po_3 fails upstream and stays pending
	}}
	auditor := &countingAuditor{}

	l := NewPayoutListener(PayoutListenerConfig{Store: orders, Source: source, Auditor: auditor})

	changed := l.Poll(context.Background())
	if changed != 1 {
		t.Fatalf("expected 1 change, got %d", changed)
	}
	if got := orders.status("po_1"); got != models.PayoutSettled {
		t.Errorf("po_1 status = %s, want settled", got)
	}
	if got := orders.status("po_3"); got != models.PayoutPending {
		t.Errorf("po_3 status = %s, want pending", got)
	}
	if auditor.count != 1 {
		t.Errorf("expected 1 audit event, got %d", auditor.count)
	}
	if backend, _ := source.backends.Load("po_2"); backend != "live" {
		t.Errorf("po_2 polled on %v, want live", backend)
	}
	if _, polled := source.backends.Load("po_4"); polled {
		t.Error("terminal order should not be polled")
	}
}

func TestStartStop_NoLeak(t *testing.T) {
	orders := newMemOrders(order("po_1", "mock", models.PayoutPending))
	source := &fixedSource{statuses: map[string]models.PayoutStatus{"po_1": models.PayoutProcessing}}

	l := NewPayoutListener(PayoutListenerConfig{
		Store:           orders,
		Source:          source,
		PollingInterval: 5 * time.Millisecond,
	})
	l.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for orders.status("po_1") != models.PayoutProcessing && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	l.Stop()
	l.Stop()

	if got := orders.status("po_1"); got != models.PayoutProcessing {
		t.Errorf("status = %s, want processing", got)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	l := NewPayoutListener(PayoutListenerConfig{
		Store:           newMemOrders(),
		Source:          &fixedSource{},
		PollingInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	l.Stop()
}

// staleOrders lists a snapshot taken before another writer advanced the orders.
type staleOrders struct {
	*memOrders
	snapshot []models.CashoutOrder
}

func (s *staleOrders) ListOpenCashoutOrders(context.Context, int) ([]models.CashoutOrder, error) {
	return s.snapshot, nil
}

func TestPoll_NeverMovesStatusBackwards(t *testing.T) {
	orders := newMemOrders(
		order("po_1", "mock", models.PayoutProcessing),
		order("po_2", "mock", models.PayoutProcessing),
	)
	source := &fixedSource{statuses: map[string]models.PayoutStatus{
		"po_1": models.PayoutPending,
		"po_2": models.PayoutProcessing,
	}}
	auditor := &countingAuditor{}

	l := NewPayoutListener(PayoutListenerConfig{Store: orders, Source: source, Auditor: auditor})

	if changed := l.Poll(context.Background()); changed != 0 {
		t.Fatalf("expected no changes, got %d", changed)
	}
	if got := orders.status("po_1"); got != models.PayoutProcessing {
		t.Errorf("po_1 status = %s, want processing", got)
	}
	if auditor.count != 0 {
		t.Errorf("expected no audit events, got %d", auditor.count)
	}
}

func TestPoll_KeepsConcurrentTerminalStatus(t *testing.T) {
	orders := newMemOrders(order("po_1", "mock", models.PayoutFailed))
	stale := &staleOrders{
		memOrders: orders,
		snapshot:  []models.CashoutOrder{order("po_1", "mock", models.PayoutPending)},
	}
	source := &fixedSource{statuses: map[string]models.PayoutStatus{"po_1": models.PayoutSettled}}
	auditor := &countingAuditor{}

	l := NewPayoutListener(PayoutListenerConfig{Store: stale, Source: source, Auditor: auditor})

	if changed := l.Poll(context.Background()); changed != 0 {
		t.Fatalf("expected no changes, got %d", changed)
	}
	if got := orders.status("po_1"); got != models.PayoutFailed {
		t.Errorf("po_1 status = %s, want failed", got)
	}
	if auditor.count != 0 {
		t.Errorf("expected no audit events, got %d", auditor.count)
	}
}
