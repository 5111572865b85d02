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

package intent

import (
	"context"
	"strings"
	"time"

	"clenja-agent-go/internal/llm"

	"go.uber.org/zap"
)

type Source string

const (
	SourceRules  Source = "rules"
	SourceOracle Source = "oracle"
)

const maxAssistantReply = 280

// Resolution is an intent plus where it came from.
type Resolution struct {
	Intent         Intent
	Source         Source
	AssistantReply string
}

// Resolver runs the deterministic rules and, only when they miss, asks the oracle.
type Resolver struct {
	oracle  llm.Client
	timeout time.Duration
}

// NewResolver builds a resolver; a nil oracle disables the fallback.
func NewResolver(oracle llm.Client, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Resolver{oracle: oracle, timeout: timeout}
}

// Resolve always returns a Resolution. Oracle failures degrade to unknown.
func (r *Resolver) Resolve(ctx context.Context, text string) Resolution {
	in := Parse(text)
	if in.Kind != KindUnknown || r.oracle == nil || strings.TrimSpace(text) == "" {
		return Resolution{Intent: in, Source: SourceRules}
	}

	oracleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	extraction, err := r.oracle.Extract(oracleCtx, strings.TrimSpace(text))
	if err != nil {
		zap.L().Warn("Intent oracle unavailable, falling back to unknown",
			zap.String("oracle", r.oracle.Name()),
			zap.Error(err))
		return Resolution{Intent: in, Source: SourceRules}
	}

	res := Validate(extraction, in.Raw)
	zap.L().Debug("Intent resolved by oracle",
		zap.String("oracle", r.oracle.Name()),
		zap.String("kind", string(res.Intent.Kind)))
	return res
}

// Validate re-checks every oracle field against the same constraints the rules
// enforce. Nothing is accepted on the oracle's word alone.
func Validate(x *llm.Extraction, raw string) Resolution {
	unknown := func(reply string) Resolution {
		return Resolution{Intent: Unknown(raw), Source: SourceOracle, AssistantReply: clip(reply)}
	}

	switch Kind(x.Kind) {
	case KindSend:
		amount, okAmount := ParseAmount(string(x.Amount))
		token, okToken := NormalizeToken(x.Token)
		to := strings.TrimSpace(x.To)
		if !okAmount || !okToken || !IsAddress(to) {
			return unknown("I can send this. Please include amount, token (CELO/cUSD), and recipient address.")
		}
		return Resolution{
			Intent: Intent{Kind: KindSend, Amount: amount, Token: token, To: to},
			Source: SourceOracle,
		}

	case KindCashout:
		amount, okAmount := ParseAmount(string(x.Amount))
		token, okToken := NormalizeToken(x.Token)
		if !okAmount || !okToken {
			return unknown("I can do that. Tell me the cashout amount and token (CELO or cUSD).")
		}
		name := strings.TrimSpace(x.BeneficiaryName)
		if len(name) > 60 {
			name = ""
		}
		return Resolution{
			Intent: Intent{Kind: KindCashout, Amount: amount, Token: token, Name: name},
			Source: SourceOracle,
		}

	case KindHelp, KindBalance, KindHistory, KindStatus, KindAddress, KindGreeting, KindSendabilityCheck:
		return Resolution{Intent: Intent{Kind: Kind(x.Kind)}, Source: SourceOracle}
	}

	return unknown(x.AssistantReply)
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxAssistantReply {
		return s
	}
	return strings.TrimSpace(s[:maxAssistantReply]) + "..."
}
