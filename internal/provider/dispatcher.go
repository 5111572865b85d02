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

package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"clenja-agent-go/internal/models"

	"go.uber.org/zap"
)

const defaultTimeout = 12 * time.Second

// DispatcherConfig selects backends. A nil live backend means its
// credentials were not configured.
type DispatcherConfig struct {
	Wallet      Wallet
	MockWallet  Wallet
	Offramp     Offramp
	MockOfframp Offramp

	WalletLive      bool
	WalletTimeout   time.Duration
	WalletFallback  bool
	OfframpLive     bool
	OfframpTimeout  time.Duration
	OfframpFallback bool

	// Strict fails closed when a live backend is selected but unavailable,
	// and disables every mock fallback.
	Strict bool
}

// Dispatcher routes wallet and off-ramp calls to the selected backend,
// applies timeouts, classifies errors and tracks backend health.
//
// Reads and prepares may fall back to the mock backend when configured.
// Executions always go to the backend that produced the quote.
type Dispatcher struct {
	cfg DispatcherConfig

	mu     sync.RWMutex
	health map[string]*models.BackendHealth
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.WalletTimeout <= 0 {
		cfg.WalletTimeout = defaultTimeout
	}
	if cfg.OfframpTimeout <= 0 {
		cfg.OfframpTimeout = defaultTimeout
	}

	d := &Dispatcher{cfg: cfg, health: make(map[string]*models.BackendHealth)}
	d.register("wallet", cfg.MockWallet)
	d.register("wallet", cfg.Wallet)
	d.register("offramp", cfg.MockOfframp)
	d.register("offramp", cfg.Offramp)

	if cfg.WalletLive && cfg.Wallet == nil {
		d.missing("wallet")
	}
	if cfg.OfframpLive && cfg.Offramp == nil {
		d.missing("offramp")
	}
	return d
}

func healthKey(kind, name string) string {
	return kind + "/" + name
}

func (d *Dispatcher) register(kind string, b Backend) {
	if isNil(b) {
		return
	}
	key := healthKey(kind, b.Name())
	d.health[key] = &models.BackendHealth{Name: key, Mode: string(b.Mode()), Healthy: true}
}

func (d *Dispatcher) missing(kind string) {
	key := healthKey(kind, "live")
	msg := "live credentials not configured"
	if !d.cfg.Strict {
		msg += ", serving mock"
	}
	d.health[key] = &models.BackendHealth{Name: key, Mode: string(ModeLive), Healthy: false, LastError: msg}
}

func isNil(b Backend) bool {
	return b == nil
}

func (d *Dispatcher) observe(kind string, b Backend, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := healthKey(kind, b.Name())
	h, ok := d.health[key]
	if !ok {
		h = &models.BackendHealth{Name: key, Mode: string(b.Mode())}
		d.health[key] = h
	}
	h.LastCheckedAt = time.Now().UTC()
	h.Healthy = err == nil
	h.LastError = ""
	if err != nil {
		h.LastError = err.Error()
	}
}

// Health returns a snapshot of every known backend, sorted by name.
func (d *Dispatcher) Health() []models.BackendHealth {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.BackendHealth, 0, len(d.health))
	for _, h := range d.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether the selected wallet and off-ramp are usable.
func (d *Dispatcher) Ready() bool {
	if _, err := d.wallet("readiness"); err != nil {
		return false
	}
	if _, err := d.offramp("readiness"); err != nil {
		return false
	}
	for _, h := range d.Health() {
		if h.Mode == string(ModeLive) && !h.Healthy {
			return false
		}
	}
	return true
}

// WalletMode is the mode of the backend new wallet actions will use.
func (d *Dispatcher) WalletMode() Mode {
	w, err := d.wallet("mode")
	if err != nil {
		return ModeLive
	}
	return w.Mode()
}

func (d *Dispatcher) wallet(op string) (Wallet, error) {
	if !d.cfg.WalletLive {
		return d.cfg.MockWallet, nil
	}
	if d.cfg.Wallet != nil {
		return d.cfg.Wallet, nil
	}
	if d.cfg.Strict {
		return nil, NewError("wallet", op, CategoryNotConfigured, errors.New("strict live mode: wallet credentials missing"))
	}
	zap.L().Warn("Live wallet not configured, serving mock", zap.String("op", op))
	return d.cfg.MockWallet, nil
}

func (d *Dispatcher) offramp(op string) (Offramp, error) {
	if !d.cfg.OfframpLive {
		return d.cfg.MockOfframp, nil
	}
	if d.cfg.Offramp != nil {
		return d.cfg.Offramp, nil
	}
	if d.cfg.Strict {
		return nil, NewError("offramp", op, CategoryNotConfigured, errors.New("strict live mode: offramp credentials missing"))
	}
	zap.L().Warn("Live offramp not configured, serving mock", zap.String("op", op))
	return d.cfg.MockOfframp, nil
}

// walletByName resolves the backend that produced a quote.
func (d *Dispatcher) walletByName(op, name string) (Wallet, error) {
	if d.cfg.Wallet != nil && d.cfg.Wallet.Name() == name {
		return d.cfg.Wallet, nil
	}
	if d.cfg.MockWallet != nil && d.cfg.MockWallet.Name() == name && !(d.cfg.Strict && d.cfg.WalletLive) {
		return d.cfg.MockWallet, nil
	}
	return nil, NewError(name, op, CategoryNotConfigured, errors.New("wallet backend unavailable"))
}

func (d *Dispatcher) offrampByName(op, name string) (Offramp, error) {
	if d.cfg.Offramp != nil && d.cfg.Offramp.Name() == name {
		return d.cfg.Offramp, nil
	}
	if d.cfg.MockOfframp != nil && d.cfg.MockOfframp.Name() == name && !(d.cfg.Strict && d.cfg.OfframpLive) {
		return d.cfg.MockOfframp, nil
	}
	return nil, NewError(name, op, CategoryNotConfigured, errors.New("offramp backend unavailable"))
}

func invoke[B Backend, T any](ctx context.Context, d *Dispatcher, kind string, b B, timeout time.Duration, op string, fn func(context.Context, B) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(callCtx, b)
	if err != nil {
		perr := Classify(b.Name(), op, err)
		d.observe(kind, b, perr)
		zap.L().Error("Provider call failed",
			zap.String("backend", b.Name()),
			zap.String("op", op),
			zap.String("category", string(perr.Category)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		var zero T
		return zero, perr
	}
	d.observe(kind, b, nil)
	return out, nil
}

// withFallback runs fn on primary and, when allowed, retries once on mock.
func withFallback[B Backend, T any](ctx context.Context, d *Dispatcher, kind string, primary, mock B, allowed bool, timeout time.Duration, op string, fn func(context.Context, B) (T, error)) (T, error) {
	out, err := invoke(ctx, d, kind, primary, timeout, op, fn)
	if err == nil || !allowed || d.cfg.Strict || primary.Mode() == ModeMock || isNil(mock) {
		return out, err
	}
	if CategoryOf(err) == CategoryInvalidRequest {
		return out, err
	}

	zap.L().Warn("Live provider failed, falling back to mock",
		zap.String("backend", primary.Name()),
		zap.String("op", op),
		zap.Error(err))
	return invoke(ctx, d, kind, mock, timeout, op, fn)
}

func (d *Dispatcher) LinkWallet(ctx context.Context, userId string) (*models.WalletRecord, error) {
	w, err := d.wallet("link")
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "wallet", w, d.cfg.WalletTimeout, "link", func(ctx context.Context, w Wallet) (*models.WalletRecord, error) {
		return w.CreateOrLinkWallet(ctx, userId)
	})
}

func (d *Dispatcher) Balance(ctx context.Context, userId string) (*models.WalletBalance, error) {
	w, err := d.wallet("balance")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "wallet", w, d.cfg.MockWallet, d.cfg.WalletFallback, d.cfg.WalletTimeout, "balance",
		func(ctx context.Context, w Wallet) (*models.WalletBalance, error) {
			return w.GetBalance(ctx, userId)
		})
}

func (d *Dispatcher) PrepareSend(ctx context.Context, req SendRequest) (*models.SendQuote, error) {
	w, err := d.wallet("prepare_send")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "wallet", w, d.cfg.MockWallet, d.cfg.WalletFallback, d.cfg.WalletTimeout, "prepare_send",
		func(ctx context.Context, w Wallet) (*models.SendQuote, error) {
			return w.PrepareSend(ctx, req)
		})
}

// ExecuteSend runs on the backend that prepared the quote, never a fallback.
func (d *Dispatcher) ExecuteSend(ctx context.Context, backend string, req SendRequest) (*models.TxResult, error) {
	w, err := d.walletByName("execute_send", backend)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "wallet", w, d.cfg.WalletTimeout, "execute_send", func(ctx context.Context, w Wallet) (*models.TxResult, error) {
		return w.ExecuteSend(ctx, req)
	})
}

func (d *Dispatcher) PrepareSwap(ctx context.Context, req SwapRequest) (*models.SwapQuote, error) {
	w, err := d.wallet("prepare_swap")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "wallet", w, d.cfg.MockWallet, d.cfg.WalletFallback, d.cfg.WalletTimeout, "prepare_swap",
		func(ctx context.Context, w Wallet) (*models.SwapQuote, error) {
			return w.PrepareSwap(ctx, req)
		})
}

func (d *Dispatcher) ExecuteSwap(ctx context.Context, backend string, req SwapRequest) (*models.TxResult, error) {
	w, err := d.walletByName("execute_swap", backend)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "wallet", w, d.cfg.WalletTimeout, "execute_swap", func(ctx context.Context, w Wallet) (*models.TxResult, error) {
		return w.ExecuteSwap(ctx, req)
	})
}

func (d *Dispatcher) CashoutQuote(ctx context.Context, req models.CashoutQuoteRequest) (*models.CashoutQuote, error) {
	o, err := d.offramp("quote")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "offramp", o, d.cfg.MockOfframp, d.cfg.OfframpFallback, d.cfg.OfframpTimeout, "quote",
		func(ctx context.Context, o Offramp) (*models.CashoutQuote, error) {
			return o.Quote(ctx, req)
		})
}

// CreatePayout runs on the backend that produced the quote, never a fallback.
func (d *Dispatcher) CreatePayout(ctx context.Context, backend string, req models.CreatePayoutRequest) (*models.Payout, error) {
	o, err := d.offrampByName("create_payout", backend)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "offramp", o, d.cfg.OfframpTimeout, "create_payout", func(ctx context.Context, o Offramp) (*models.Payout, error) {
		return o.CreatePayout(ctx, req)
	})
}

func (d *Dispatcher) PayoutStatus(ctx context.Context, backend, payoutId string) (*models.PayoutState, error) {
	o, err := d.offrampByName("payout_status", backend)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "offramp", o, d.cfg.OfframpTimeout, "payout_status", func(ctx context.Context, o Offramp) (*models.PayoutState, error) {
		return o.PayoutStatus(ctx, payoutId)
	})
}

// NotifyDeposit reports a broadcast deposit to the backend that owns the payout.
func (d *Dispatcher) NotifyDeposit(ctx context.Context, backend, payoutId, txRef string) (*models.PayoutState, error) {
	o, err := d.offrampByName("notify_deposit", backend)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, d, "offramp", o, d.cfg.OfframpTimeout, "notify_deposit", func(ctx context.Context, o Offramp) (*models.PayoutState, error) {
		return o.NotifyDeposit(ctx, payoutId, txRef)
	})
}

func (d *Dispatcher) ListBanks(ctx context.Context, country string) ([]models.Bank, error) {
	o, err := d.offramp("list_banks")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "offramp", o, d.cfg.MockOfframp, d.cfg.OfframpFallback, d.cfg.OfframpTimeout, "list_banks",
		func(ctx context.Context, o Offramp) ([]models.Bank, error) {
			return o.ListBanks(ctx, country)
		})
}

func (d *Dispatcher) ResolveRecipient(ctx context.Context, details models.BankDetails) (*models.RecipientCheck, error) {
	o, err := d.offramp("resolve_recipient")
	if err != nil {
		return nil, err
	}
	return withFallback(ctx, d, "offramp", o, d.cfg.MockOfframp, d.cfg.OfframpFallback, d.cfg.OfframpTimeout, "resolve_recipient",
		func(ctx context.Context, o Offramp) (*models.RecipientCheck, error) {
			return o.ResolveRecipient(ctx, details)
		})
}
