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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clenja-agent-go/internal/audit"
	"clenja-agent-go/internal/challenge"
	"clenja-agent-go/internal/intent"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/pending"
	"clenja-agent-go/internal/policy"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/ratelimit"
	"clenja-agent-go/internal/store"

	"go.uber.org/zap"
)

const (
	ActionAwaitingConfirmation = "awaiting_confirmation"
	ActionAwaitingBankDetails  = "awaiting_bank_details"
	ActionAwaitingYes          = "awaiting_yes"
	ActionPolicyDenied         = "policy_denied"
	ActionConfirmationFailed   = "confirmation_failed"
	ActionExecuted             = "executed"
	ActionExecutionFailed      = "execution_failed"
	ActionRateLimited          = "rate_limited"
)

const (
	replyHelp = "I can do: balance, history, status, address, limits, recipients, send, swap and cashout. " +
		"Examples: 'send 5 cUSD to 0xabc...1234', 'swap 10 CELO to cUSD', 'cashout 50 cUSD', 'cashout 50 cUSD to Gabriel'."
	replyFallback  = "I can help with balance, send, swap and cashout. Try: 'send 5 cUSD to 0xabc...1234' or 'cashout 50 cUSD'."
	replyTryAgain  = "Something went wrong on our side. Please try again."
	replyGreeting  = "Hi! I can check your balance, send CELO or cUSD, swap between them and cash out to a bank account."
	historyLimit   = 10
	maxMessageSize = 1000
)

var ErrInvalidRequest = errors.New("invalid request")

// RateLimitError rejects a turn before it is interpreted.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ExecutedError is a failure to record an action the provider already
// executed. Retrying must not execute it again.
type ExecutedError struct {
	Ref string
	Err error
}

func (e *ExecutedError) Error() string {
	return fmt.Sprintf("executed %s but not recorded: %v", e.Ref, e.Err)
}

func (e *ExecutedError) Unwrap() error { return e.Err }

// failureReply is the text shown for an unexpected turn error.
func failureReply(err error, quota *models.RateLimit) *models.Reply {
	var executed *ExecutedError
	if errors.As(err, &executed) {
		return &models.Reply{
			Reply:     fmt.Sprintf("Your request went through (ref %s) but I could not record it. Please do not retry; check its status later.", executed.Ref),
			Data:      map[string]string{"ref": executed.Ref},
			Action:    ActionExecuted,
			RateLimit: quota,
		}
	}
	return &models.Reply{Reply: replyTryAgain, RateLimit: quota}
}

// Journal mirrors executed receipts into an external ledger.
type Journal interface {
	RecordReceipt(ctx context.Context, receipt *models.Receipt) error
}

type Config struct {
	CashoutOTP  string // empty issues a random code per challenge
	Country     string
	Currency    string
	TurnTimeout time.Duration
}

type Deps struct {
	Store      store.StateStore
	Resolver   *intent.Resolver
	Policy     *policy.Engine
	Challenges *challenge.Machine
	Pending    *pending.Register
	Providers  *provider.Dispatcher
	Limiter    ratelimit.Limiter
	Audit      *audit.Recorder
	Journal    Journal // optional
	Tokens     models.TokenCatalog
}

// Handler sequences one chat turn: rate limit, continuation of pending
// conversation state, intent resolution, policy, challenge and execution.
type Handler struct {
	store      store.StateStore
	resolver   *intent.Resolver
	policy     *policy.Engine
	challenges *challenge.Machine
	pending    *pending.Register
	providers  *provider.Dispatcher
	limiter    ratelimit.Limiter
	audit      *audit.Recorder
	journal    Journal
	tokens     models.TokenCatalog
	cfg        Config
	now        func() time.Time
}

func NewHandler(deps Deps, cfg Config) *Handler {
	if cfg.Country == "" {
		cfg.Country = "NG"
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	return &Handler{
		store:      deps.Store,
		resolver:   deps.Resolver,
		policy:     deps.Policy,
		challenges: deps.Challenges,
		pending:    deps.Pending,
		providers:  deps.Providers,
		limiter:    deps.Limiter,
		audit:      deps.Audit,
		journal:    deps.Journal,
		tokens:     deps.Tokens,
		cfg:        cfg,
		now:        time.Now,
	}
}

// HandleMessage processes one free-text turn. Policy denials, challenge
// failures and provider errors come back as replies; the error is reserved
// for invalid requests, rate limiting and persistence failures.
func (h *Handler) HandleMessage(ctx context.Context, req models.MessageRequest) (*models.Reply, error) {
	userId := strings.TrimSpace(req.UserId)
	text := strings.TrimSpace(req.Text)
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if len(text) > maxMessageSize {
		return nil, fmt.Errorf("%w: message too long", ErrInvalidRequest)
	}

	quota, limited, err := h.admit(ctx, userId)
	if err != nil {
		return limited, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.TurnTimeout)
	defer cancel()

	reply, err := h.handle(ctx, userId, text)
	if err != nil {
		zap.L().Error("Chat turn failed",
			zap.String("user_id", userId),
			zap.Error(err))
		return failureReply(err, quota), err
	}
	if reply != nil {
		reply.RateLimit = quota
	}
	return reply, nil
}

// Confirm answers a challenge by id. The challenge must belong to the caller.
func (h *Handler) Confirm(ctx context.Context, req models.ConfirmRequest) (*models.Reply, error) {
	userId := strings.TrimSpace(req.UserId)
	if userId == "" || strings.TrimSpace(req.ChallengeId) == "" {
		return nil, fmt.Errorf("%w: userId and challengeId are required", ErrInvalidRequest)
	}

	quota, limited, err := h.admit(ctx, userId)
	if err != nil {
		return limited, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.TurnTimeout)
	defer cancel()

	ch, err := h.store.GetChallenge(ctx, req.ChallengeId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return &models.Reply{Reply: replyTryAgain, RateLimit: quota}, fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil || ch.UserId != userId {
		reply := h.confirmationFailed(ctx, userId, challenge.ReasonNotFound)
		reply.RateLimit = quota
		return reply, nil
	}

	reply, err := h.answer(ctx, userId, req.ChallengeId, req.Answer)
	if err != nil {
		zap.L().Error("Confirmation failed",
			zap.String("user_id", userId),
			zap.String("challenge_id", req.ChallengeId),
			zap.Error(err))
		return failureReply(err, quota), err
	}
	if reply != nil {
		reply.RateLimit = quota
	}
	return reply, nil
}

// admit applies the per-user rate limit and returns the remaining quota.
// A limiter outage admits the turn with no quota.
func (h *Handler) admit(ctx context.Context, userId string) (*models.RateLimit, *models.Reply, error) {
	if h.limiter == nil {
		return nil, nil, nil
	}
	decision, err := h.limiter.Allow(ctx, "chat:"+userId)
	if err != nil {
		zap.L().Warn("Rate limiter unavailable, admitting turn",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, nil, nil
	}
	if decision.Allowed {
		return &models.RateLimit{Limit: decision.Limit, Remaining: decision.Remaining}, nil, nil
	}

	seconds := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return nil, &models.Reply{
		Reply:  fmt.Sprintf("Too many requests. Try again in %ds.", seconds),
		Action: ActionRateLimited,
	}, &RateLimitError{Limit: decision.Limit, RetryAfter: decision.RetryAfter}
}

func (h *Handler) handle(ctx context.Context, userId, text string) (*models.Reply, error) {
	parsed := intent.Parse(text)

	// A pending bank-details step reads the next message as bank details
	// unless the user cancels.
	if parsed.Kind != intent.KindCancel {
		action, err := h.pending.Get(ctx, userId)
		if err != nil {
			return nil, fmt.Errorf("load pending action: %w", err)
		}
		if action != nil && pending.Kind(action.Kind) == pending.KindCashoutBankDetails {
			return h.continueCashout(ctx, userId, action, text)
		}
	}

	// A bare token with a live challenge is an answer to it.
	if parsed.Kind == intent.KindUnknown && text != "" && !strings.ContainsAny(text, " \t") {
		live, err := h.challenges.Live(ctx, userId)
		if err != nil {
			return nil, fmt.Errorf("load live challenge: %w", err)
		}
		if live != nil {
			return h.answer(ctx, userId, live.Id, text)
		}
	}

	res := intent.Resolution{Intent: parsed, Source: intent.SourceRules}
	if parsed.Kind == intent.KindUnknown && h.resolver != nil {
		res = h.resolver.Resolve(ctx, text)
	}

	h.record(ctx, userId, "chat.message", nil, map[string]string{
		"intent": string(res.Intent.Kind),
		"source": string(res.Source),
	})

	return h.dispatch(ctx, userId, res)
}

func (h *Handler) dispatch(ctx context.Context, userId string, res intent.Resolution) (*models.Reply, error) {
	in := res.Intent

	switch in.Kind {
	case intent.KindHelp:
		return &models.Reply{Reply: replyHelp}, nil
	case intent.KindGreeting:
		return &models.Reply{Reply: replyGreeting}, nil
	case intent.KindBalance:
		return h.balance(ctx, userId)
	case intent.KindHistory:
		return h.history(ctx, userId)
	case intent.KindStatus:
		return h.status(), nil
	case intent.KindAddress:
		return h.address(ctx, userId)
	case intent.KindSendabilityCheck:
		return h.sendability(ctx, userId)
	case intent.KindShowLimits:
		return h.showLimits(ctx, userId)
	case intent.KindSetDailyLimit, intent.KindSetPerTxLimit:
		return h.setLimit(ctx, userId, in)
	case intent.KindPauseSending:
		return h.setPaused(ctx, userId, true)
	case intent.KindResumeSending:
		return h.setPaused(ctx, userId, false)
	case intent.KindListRecipients:
		return h.listRecipients(ctx, userId)
	case intent.KindSaveRecipient:
		return h.saveRecipient(ctx, userId, in.Name, in.To)
	case intent.KindUpdateRecipient:
		return h.updateRecipient(ctx, userId, in.Name, in.To)
	case intent.KindDeleteRecipient:
		return h.deleteRecipient(ctx, userId, in.Name)
	case intent.KindConfirmYes:
		return h.confirmYes(ctx, userId)
	case intent.KindCancel:
		return h.cancel(ctx, userId)
	case intent.KindSend:
		return h.startSend(ctx, userId, in.Amount, in.Token, in.To, "")
	case intent.KindSendToRecipient:
		return h.sendToRecipient(ctx, userId, in)
	case intent.KindSwap:
		return h.startSwap(ctx, userId, in)
	case intent.KindCashout:
		return h.startCashout(ctx, userId, in)
	case intent.KindCashoutStatus:
		return h.cashoutStatus(ctx, userId, in.OrderId)
	}

	if res.AssistantReply != "" {
		return &models.Reply{Reply: res.AssistantReply}, nil
	}
	return &models.Reply{Reply: replyFallback}, nil
}

// record writes an audit event. Audit failures never fail the turn.
func (h *Handler) record(ctx context.Context, userId, action string, cause error, detail map[string]string) {
	if h.audit == nil {
		return
	}
	var err error
	if cause != nil {
		err = h.audit.Error(ctx, userId, action, cause, detail)
	} else {
		err = h.audit.Ok(ctx, userId, action, detail)
	}
	if err != nil {
		zap.L().Warn("Failed to write audit event",
			zap.String("user_id", userId),
			zap.String("action", action),
			zap.Error(err))
	}
}
