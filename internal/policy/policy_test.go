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
	"path/filepath"
	"testing"
	"time"

	"clenja-agent-go/internal/database"
	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = models.TokenCatalog{
	"cUSD": {Symbol: "cUSD", Decimals: 18, UsdPrice: decimal.NewFromInt(1)},
	"CELO": {Symbol: "CELO", Decimals: 18, UsdPrice: decimal.RequireFromString("0.5")},
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "policy.db"),
		MaxOpenConns: 4,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewEngine(db, models.PolicyConfig{
		DefaultDailyLimitUsd: decimal.NewFromInt(200),
		DefaultPerTxLimitUsd: decimal.NewFromInt(50),
	}, testTokens)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheck_PerTxBoundaryIsInclusive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	d, err := e.Check(ctx, "u1", ActionSend, dec("50"), "cUSD")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.Check(ctx, "u1", ActionSend, dec("50.01"), "cUSD")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOverPerTxLimit, d.Reason)
}

func TestCheck_DailyLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.RecordSpend(ctx, "u1", dec("50"), "cUSD"))
	}

	d, err := e.Check(ctx, "u1", ActionSend, dec("50"), "cUSD")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "150 spent + 50 reaches the limit exactly")

	require.NoError(t, e.RecordSpend(ctx, "u1", dec("49"), "cUSD"))
	d, err = e.Check(ctx, "u1", ActionCashout, dec("2"), "cUSD")
	require.NoError(t, err)
	assert.Equal(t, ReasonOverDailyLimit, d.Reason)
}

func TestCheck_DailyLimitOver(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RecordSpend(ctx, "u1", dec("150"), "cUSD"))
	_, err := e.SetPerTxLimit(ctx, "u1", dec("100"))
	require.NoError(t, err)

	d, err := e.Check(ctx, "u1", ActionSend, dec("51"), "cUSD")
	require.NoError(t, err)
	assert.Equal(t, ReasonOverDailyLimit, d.Reason)
}

func TestCheck_PricesInUsd(t *testing.T) {
	e := newTestEngine(t)

	// 90 CELO at 0.5 USD is 45 USD, under the 50 per-tx limit
	d, err := e.Check(context.Background(), "u1", ActionSend, dec("90"), "CELO")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.AmountUsd.Equal(dec("45")))
}

func TestCheck_Order(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SetPaused(ctx, "u1", true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		action Action
		amount string
		token  string
		want   Reason
	}{
		{"zero amount before pause", ActionSend, "0", "cUSD", ReasonInvalidAmount},
		{"negative amount", ActionCashout, "-3", "cUSD", ReasonInvalidAmount},
		{"unpriced token", ActionSend, "1", "DOGE", ReasonInvalidAmount},
		{"pause before limits", ActionSend, "5000", "cUSD", ReasonSendingPaused},
		{"swap respects pause", ActionSwap, "1", "CELO", ReasonSendingPaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Check(ctx, "u1", tt.action, dec(tt.amount), tt.token)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestCheck_SwapIgnoresLimits(t *testing.T) {
	e := newTestEngine(t)

	d, err := e.Check(context.Background(), "u1", ActionSwap, dec("1000"), "cUSD")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestResumeAndLimits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SetPaused(ctx, "u1", true)
	require.NoError(t, err)
	p, err := e.SetPaused(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, p.Paused)

	p, err = e.SetDailyLimit(ctx, "u1", dec("300"))
	require.NoError(t, err)
	assert.True(t, p.DailyLimitUsd.Equal(dec("300")))
	assert.True(t, p.PerTxLimitUsd.Equal(dec("50")))

	_, err = e.SetDailyLimit(ctx, "u1", dec("0"))
	assert.Error(t, err)
}

func TestDayKeyIsUtc(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	ts := time.Date(2026, 3, 1, 0, 30, 0, 0, lagos)
	assert.Equal(t, "2026-02-28", DayKey(ts))
}
