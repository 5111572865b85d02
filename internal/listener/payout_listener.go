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
	"fmt"
	"sync"
	"time"

	"clenja-agent-go/internal/models"

	"go.uber.org/zap"
)

// OrderStore is the slice of the state store the listener reads and updates.
type OrderStore interface {
	ListOpenCashoutOrders(ctx context.Context, limit int) ([]models.CashoutOrder, error)
	UpdateCashoutStatus(ctx context.Context, payoutId string, status models.PayoutStatus) (*models.CashoutOrder, error)
}

// StatusSource reports the latest status of a payout on the backend that created it.
type StatusSource interface {
	PayoutStatus(ctx context.Context, backend, payoutId string) (*models.PayoutState, error)
}

// Auditor records status transitions.
type Auditor interface {
	Ok(ctx context.Context, userId, action string, detail map[string]string) error
}

// PayoutListenerConfig contains configuration for PayoutListener
type PayoutListenerConfig struct {
	Store           OrderStore
	Source          StatusSource
	Auditor         Auditor
	PollingInterval time.Duration
	BatchSize       int
	Concurrency     int
}

// PayoutListener polls the off-ramp for cashout orders that have not reached
// a terminal status and persists any change.
type PayoutListener struct {
	store   OrderStore
	source  StatusSource
	auditor Auditor

	pollingInterval time.Duration
	batchSize       int
	concurrency     int

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPayoutListener(cfg PayoutListenerConfig) *PayoutListener {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &PayoutListener{
		store:           cfg.Store,
		source:          cfg.Source,
		auditor:         cfg.Auditor,
		pollingInterval: interval,
		batchSize:       batch,
		concurrency:     concurrency,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins polling in the background
func (l *PayoutListener) Start(ctx context.Context) {
	zap.L().Info("Starting payout listener",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Int("batch_size", l.batchSize))

	go l.pollLoop(ctx)
}

// Stop gracefully stops the listener and waits for the current poll to finish
func (l *PayoutListener) Stop() {
	zap.L().Info("Stopping payout listener")
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.doneChan
	zap.L().Info("Payout listener stopped")
}

func (l *PayoutListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	l.Poll(ctx)

	for {
		select {
		case <-ticker.C:
			l.Poll(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll refreshes one batch of open orders and returns how many changed status.
func (l *PayoutListener) Poll(ctx context.Context) int {
	orders, err := l.store.ListOpenCashoutOrders(ctx, l.batchSize)
	if err != nil {
		zap.L().Error("Failed to list open cashout orders", zap.Error(err))
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	zap.L().Debug("Polling open payouts", zap.Int("count", len(orders)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	sem := make(chan struct{}, l.concurrency)

	for _, order := range orders {
		wg.Add(1)
		sem <- struct{}{}

		go func(o models.CashoutOrder) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, err := l.refresh(ctx, o)
			if err != nil {
				zap.L().Warn("Failed to refresh payout status",
					zap.String("payout_id", o.PayoutId),
					zap.String("backend", o.Backend),
					zap.Error(err))
				return
			}
			if updated {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}(order)
	}

	wg.Wait()
	return changed
}

func (l *PayoutListener) refresh(ctx context.Context, order models.CashoutOrder) (bool, error) {
	state, err := l.source.PayoutStatus(ctx, order.Backend, order.PayoutId)
	if err != nil {
		return false, fmt.Errorf("failed to fetch payout status: %w", err)
	}
	if state.Status.Rank() <= order.Status.Rank() {
		return false, nil
	}

	updated, err := l.store.UpdateCashoutStatus(ctx, order.PayoutId, state.Status)
	if err != nil {
		return false, fmt.Errorf("failed to update cashout status: %w", err)
	}
	// Another writer moved the order on since it was listed.
	if updated.Status != state.Status {
		zap.L().Debug("Payout status already advanced",
			zap.String("payout_id", order.PayoutId),
			zap.String("stored", string(updated.Status)),
			zap.String("reported", string(state.Status)))
		return false, nil
	}

	zap.L().Info("Payout status changed",
		zap.String("payout_id", order.PayoutId),
		zap.String("user_id", order.UserId),
		zap.String("from", string(order.Status)),
		zap.String("to", string(state.Status)))

	if l.auditor != nil {
		err := l.auditor.Ok(ctx, order.UserId, "cashout.status", map[string]string{
			"payoutId": order.PayoutId,
			"from":     string(order.Status),
			"to":       string(state.Status),
		})
		if err != nil {
			zap.L().Warn("Failed to audit payout status change",
				zap.String("payout_id", order.PayoutId),
				zap.Error(err))
		}
	}
	return true, nil
}
