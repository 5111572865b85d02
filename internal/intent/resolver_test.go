package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"clenja-agent-go/internal/llm"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeOracle struct {
	out   *llm.Extraction
	err   error
	delay time.Duration
	calls int
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) Extract(ctx context.Context, _ string) (*llm.Extraction, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func TestResolve_RulesWinWithoutCallingOracle(t *testing.T) {
	oracle := &fakeOracle{out: &llm.Extraction{Kind: "cashout", Amount: "999", Token: "cUSD"}}
	r := NewResolver(oracle, time.Second)

	res := r.Resolve(context.Background(), "send 5 cUSD to "+testAddr)

	assert.Equal(t, KindSend, res.Intent.Kind)
	assert.Equal(t, SourceRules, res.Source)
	assert.Equal(t, 0, oracle.calls)
}

func TestResolve_SameIntentRegardlessOfOracle(t *testing.T) {
	texts := []string{"balance", "cashout 50 cUSD to Gabriel", "pause sending", "swap 1 celo to cusd"}
	withOracle := NewResolver(&fakeOracle{err: errors.New("down")}, time.Second)
	without := NewResolver(nil, time.Second)

	for _, text := range texts {
		a := withOracle.Resolve(context.Background(), text)
		b := without.Resolve(context.Background(), text)
		assert.Equal(t, b.Intent.Kind, a.Intent.Kind, text)
		assert.True(t, a.Intent.Amount.Equal(b.Intent.Amount), text)
	}
}

func TestResolve_OracleFallback(t *testing.T) {
	tests := []struct {
		name      string
		out       *llm.Extraction
		wantKind  Kind
		wantReply bool
	}{
		{
			name:     "valid send",
			out:      &llm.Extraction{Kind: "send", Amount: "2.5", Token: "cusd", To: testAddr},
			wantKind: KindSend,
		},
		{
			name:      "send with short address",
			out:       &llm.Extraction{Kind: "send", Amount: "2.5", Token: "cUSD", To: "0xabc"},
			wantKind:  KindUnknown,
			wantReply: true,
		},
		{
			name:      "send with unsupported token",
			out:       &llm.Extraction{Kind: "send", Amount: "2.5", Token: "USDC", To: testAddr},
			wantKind:  KindUnknown,
			wantReply: true,
		},
		{
			name:      "cashout with negative amount",
			out:       &llm.Extraction{Kind: "cashout", Amount: "-5", Token: "cUSD"},
			wantKind:  KindUnknown,
			wantReply: true,
		},
		{
			name:     "read only kind",
			out:      &llm.Extraction{Kind: "balance"},
			wantKind: KindBalance,
		},
		{
			name:     "kind outside the allowed set",
			out:      &llm.Extraction{Kind: "set_daily_limit", Amount: "100000"},
			wantKind: KindUnknown,
		},
		{
			name:      "unknown with reply",
			out:       &llm.Extraction{Kind: "unknown", AssistantReply: "Try 'balance'."},
			wantKind:  KindUnknown,
			wantReply: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeOracle{out: tt.out}, time.Second)
			res := r.Resolve(context.Background(), "please do the thing")

			assert.Equal(t, tt.wantKind, res.Intent.Kind)
			assert.Equal(t, SourceOracle, res.Source)
			assert.Equal(t, tt.wantReply, res.AssistantReply != "")
			if tt.wantKind == KindUnknown {
				assert.Equal(t, "please do the thing", res.Intent.Raw)
			}
		})
	}
}

func TestResolve_ValidSendFields(t *testing.T) {
	r := NewResolver(&fakeOracle{out: &llm.Extraction{Kind: "send", Amount: "2.5", Token: "celo", To: testAddr}}, time.Second)
	res := r.Resolve(context.Background(), "give my friend two and a half celo")

	assert.True(t, res.Intent.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, TokenCELO, res.Intent.Token)
	assert.Equal(t, testAddr, res.Intent.To)
}

func TestResolve_OracleErrorsDegradeToUnknown(t *testing.T) {
	tests := []struct {
		name   string
		oracle *fakeOracle
	}{
		{"network error", &fakeOracle{err: errors.New("connection refused")}},
		{"timeout", &fakeOracle{delay: time.Second, out: &llm.Extraction{Kind: "balance"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.oracle, 20*time.Millisecond)
			res := r.Resolve(context.Background(), "mystery words")

			assert.Equal(t, KindUnknown, res.Intent.Kind)
			assert.Equal(t, SourceRules, res.Source)
			assert.Empty(t, res.AssistantReply)
		})
	}
}

func TestClipLongAssistantReply(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}
	got := clip(string(long))
	assert.LessOrEqual(t, len(got), maxAssistantReply+3)
}
