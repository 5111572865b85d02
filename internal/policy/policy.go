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

package policy

import (
	"context"
	"fmt"
	"time"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reason is a closed set of denial causes callers can branch on.
type Reason string

const (
	ReasonInvalidAmount  Reason = "invalid_amount"
	ReasonSendingPaused  Reason = "sending_paused"
	ReasonOverPerTxLimit Reason = "over_per_tx_limit"
	ReasonOverDailyLimit Reason = "over_daily_limit"
)

type Action string

const (
	ActionSend    Action = "send"
	ActionCashout Action = "cashout"
	ActionSwap    Action = "swap"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed   bool
	Reason    Reason
	AmountUsd decimal.Decimal
}

// Store is the slice of the state store the engine needs.
type Store interface {
	GetOrCreatePolicy(ctx context.Context, defaults models.UserPolicy) (*models.UserPolicy, error)
	UpdatePolicy(ctx context.Context, policy *models.UserPolicy) error
	GetSpend(ctx context.Context, userId, day string) (decimal.Decimal, error)
	AddSpend(ctx context.Context, userId, day string, amountUsd decimal.Decimal) (decimal.Decimal, error)
}

// Engine enforces per-transaction limits, daily limits and the pause flag.
type Engine struct {
	store    Store
	defaults models.PolicyConfig
	tokens   models.TokenCatalog
	now      func() time.Time
}

func NewEngine(store Store, defaults models.PolicyConfig, tokens models.TokenCatalog) *Engine {
	return &Engine{store: store, defaults: defaults, tokens: tokens, now: time.Now}
}

// DayKey is the UTC date bucket spend is accumulated under.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Policy returns the user's policy, creating it with defaults on first use.
func (e *Engine) Policy(ctx context.Context, userId string) (*models.UserPolicy, error) {
	return e.store.GetOrCreatePolicy(ctx, models.UserPolicy{
		UserId:        userId,
		DailyLimitUsd: e.defaults.DefaultDailyLimitUsd,
		PerTxLimitUsd: e.defaults.DefaultPerTxLimitUsd,
	})
}

// SpentToday returns the USD spend recorded for the current UTC day.
func (e *Engine) SpentToday(ctx context.Context, userId string) (decimal.Decimal, error) {
	return e.store.GetSpend(ctx, userId, DayKey(e.now()))
}

// Check evaluates a requested action. Denials are values; the error is only
// for store failures.
func (e *Engine) Check(ctx context.Context, userId string, action Action, amount decimal.Decimal, token string) (Decision, error) {
	if !amount.IsPositive() {
		return Decision{Reason: ReasonInvalidAmount}, nil
	}

	amountUsd, ok := e.tokens.UsdValue(token, amount)
	if !ok {
		return Decision{Reason: ReasonInvalidAmount}, nil
	}

	policy, err := e.Policy(ctx, userId)
	if err != nil {
		return Decision{}, fmt.Errorf("load policy: %w", err)
	}

	if policy.Paused {
		return Decision{Reason: ReasonSendingPaused, AmountUsd: amountUsd}, nil
	}

	// Swaps stay inside the user's wallet and do not count against limits.
	if action == ActionSwap {
		return Decision{Allowed: true, AmountUsd: amountUsd}, nil
	}

	if amountUsd.GreaterThan(policy.PerTxLimitUsd) {
		return Decision{Reason: ReasonOverPerTxLimit, AmountUsd: amountUsd}, nil
	}

	spent, err := e.SpentToday(ctx, userId)
	if err != nil {
		return Decision{}, fmt.Errorf("load spend: %w", err)
	}
	if spent.Add(amountUsd).GreaterThan(policy.DailyLimitUsd) {
		return Decision{Reason: ReasonOverDailyLimit, AmountUsd: amountUsd}, nil
	}

	return Decision{Allowed: true, AmountUsd: amountUsd}, nil
}

// RecordSpend adds an executed action to today's bucket. Call it only after
// the provider confirmed execution.
func (e *Engine) RecordSpend(ctx context.Context, userId string, amount decimal.Decimal, token string) error {
	amountUsd, ok := e.tokens.UsdValue(token, amount)
	if !ok {
		return fmt.Errorf("no usd price for token %s", token)
	}

	total, err := e.store.AddSpend(ctx, userId, DayKey(e.now()), amountUsd)
	if err != nil {
		return fmt.Errorf("record spend: %w", err)
	}

	zap.L().Info("Policy spend recorded",
		zap.String("user_id", userId),
		zap.String("amount_usd", amountUsd.String()),
		zap.String("spent_today_usd", total.String()))
	return nil
}

func (e *Engine) SetDailyLimit(ctx context.Context, userId string, limitUsd decimal.Decimal) (*models.UserPolicy, error) {
	return e.update(ctx, userId, func(p *models.UserPolicy) error {
		if !limitUsd.IsPositive() {
			return fmt.Errorf("daily limit must be positive")
		}
		p.DailyLimitUsd = limitUsd
		return nil
	})
}

func (e *Engine) SetPerTxLimit(ctx context.Context, userId string, limitUsd decimal.Decimal) (*models.UserPolicy, error) {
	return e.update(ctx, userId, func(p *models.UserPolicy) error {
		if !limitUsd.IsPositive() {
			return fmt.Errorf("per-transaction limit must be positive")
		}
		p.PerTxLimitUsd = limitUsd
		return nil
	})
}

func (e *Engine) SetPaused(ctx context.Context, userId string, paused bool) (*models.UserPolicy, error) {
	return e.update(ctx, userId, func(p *models.UserPolicy) error {
		p.Paused = paused
		return nil
	})
}

func (e *Engine) update(ctx context.Context, userId string, mutate func(*models.UserPolicy) error) (*models.UserPolicy, error) {
	policy, err := e.Policy(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if err := mutate(policy); err != nil {
		return nil, err
	}
	if err := e.store.UpdatePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}

	zap.L().Info("User policy updated",
		zap.String("user_id", userId),
		zap.String("daily_limit_usd", policy.DailyLimitUsd.String()),
		zap.String("per_tx_limit_usd", policy.PerTxLimitUsd.String()),
		zap.Bool("paused", policy.Paused))
	return policy, nil
}
