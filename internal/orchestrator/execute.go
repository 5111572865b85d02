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

	"clenja-agent-go/internal/challenge"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/policy"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeniedError is a policy denial surfaced to API callers.
type DeniedError struct {
	Reason policy.Reason
}

func (e *DeniedError) Error() string {
	return "blocked by policy: " + string(e.Reason)
}

// answer verifies a challenge and, on success, executes the action bound to
// it. The challenge is consumed whatever the execution outcome.
func (h *Handler) answer(ctx context.Context, userId, challengeId, answer string) (*models.Reply, error) {
	res, err := h.challenges.Verify(ctx, challengeId, answer)
	if err != nil {
		return nil, err
	}
	if !res.Ok {
		return h.confirmationFailed(ctx, userId, res.Reason), nil
	}

	var actx actionContext
	if err := challenge.DecodeContext(res.Challenge, &actx); err != nil {
		return nil, err
	}

	zap.L().Info("Challenge verified, executing",
		zap.String("user_id", userId),
		zap.String("challenge_id", challengeId),
		zap.String("kind", actx.Kind),
		zap.String("backend", actx.Backend))

	switch models.ReceiptKind(actx.Kind) {
	case models.ReceiptSend:
		return h.executeSend(ctx, userId, challengeId, actx)
	case models.ReceiptCashout:
		return h.executeCashout(ctx, userId, challengeId, actx, strings.TrimSpace(answer))
	}

	h.record(ctx, userId, "chat.confirm", fmt.Errorf("unknown action kind %q", actx.Kind), nil)
	return &models.Reply{Reply: "Unknown confirmation context."}, nil
}

func (h *Handler) confirmationFailed(ctx context.Context, userId string, reason challenge.Reason) *models.Reply {
	h.record(ctx, userId, "chat.confirm", errors.New(string(reason)), map[string]string{"reason": string(reason)})

	var msg string
	switch reason {
	case challenge.ReasonInvalidAnswer:
		msg = "That code does not match. Please try again."
	case challenge.ReasonExpired:
		msg = "This confirmation has expired. Please start again."
	case challenge.ReasonNotPending:
		msg = "This confirmation was already used."
	default:
		msg = "No matching confirmation found."
	}
	return &models.Reply{
		Reply:  fmt.Sprintf("Confirmation failed: %s. %s", reason, msg),
		Action: ActionConfirmationFailed,
		Data:   map[string]string{"reason": string(reason)},
	}
}

// recheck repeats the policy check at execution time so a pause or a limit
// reached since the prompt still applies.
func (h *Handler) recheck(ctx context.Context, userId string, action policy.Action, amount decimal.Decimal, token string) (*models.Reply, error) {
	return h.checkPolicy(ctx, userId, action, amount, token)
}

func (h *Handler) executeSend(ctx context.Context, userId, challengeId string, actx actionContext) (*models.Reply, error) {
	if denied, err := h.recheck(ctx, userId, policy.ActionSend, actx.Amount, actx.Token); err != nil || denied != nil {
		return denied, err
	}

	tx, err := h.providers.ExecuteSend(ctx, actx.Backend, provider.SendRequest{
		UserId:         userId,
		To:             actx.To,
		Token:          actx.Token,
		Amount:         actx.Amount,
		QuoteId:        actx.QuoteId,
		IdempotencyKey: challengeId,
	})
	if err != nil {
		return h.executionFailed(ctx, userId, "send", "Send", err, map[string]string{
			"quoteId": actx.QuoteId,
			"backend": actx.Backend,
		}), nil
	}

	h.record(ctx, userId, "chat.send.execute", nil, map[string]string{
		"txHash":  tx.TxRef,
		"backend": tx.Backend,
	})
	receipt, err := h.complete(ctx, userId, models.ReceiptSend, actx.Amount, actx.Token, tx.TxRef, true)
	if err != nil {
		return nil, err
	}

	return &models.Reply{
		Reply:  fmt.Sprintf("Send submitted. Tx: %s", tx.TxRef),
		Data:   map[string]any{"txHash": tx.TxRef, "status": tx.Status, "receipt": receipt},
		Action: ActionExecuted,
	}, nil
}

func (h *Handler) executeCashout(ctx context.Context, userId, challengeId string, actx actionContext, otp string) (*models.Reply, error) {
	if denied, err := h.recheck(ctx, userId, policy.ActionCashout, actx.Amount, actx.Token); err != nil || denied != nil {
		return denied, err
	}

	details, err := h.beneficiaryDetails(ctx, userId, actx)
	if err != nil {
		return nil, err
	}
	if details == nil {
		h.record(ctx, userId, "chat.cashout.execute", errors.New("beneficiary missing"), nil)
		return &models.Reply{Reply: "The saved beneficiary for this cashout no longer exists. Please start again."}, nil
	}

	payout, err := h.providers.CreatePayout(ctx, actx.Backend, models.CreatePayoutRequest{
		UserId:      userId,
		QuoteId:     actx.QuoteId,
		Beneficiary: *details,
		Otp:         otp,
	})
	if err != nil {
		return h.executionFailed(ctx, userId, "cashout", "Cashout", err, map[string]string{
			"quoteId": actx.QuoteId,
			"backend": actx.Backend,
		}), nil
	}

	receipt, err := h.completePayout(ctx, userId, payout, actx.Amount, actx.Token, actx.BeneficiaryId)
	if err != nil {
		return nil, err
	}

	return &models.Reply{
		Reply:  fmt.Sprintf("Cashout created. Payout: %s (%s)", payout.PayoutId, payout.Status),
		Data:   map[string]any{"payoutId": payout.PayoutId, "status": payout.Status, "receipt": receipt},
		Action: ActionExecuted,
	}, nil
}

func (h *Handler) beneficiaryDetails(ctx context.Context, userId string, actx actionContext) (*models.BankDetails, error) {
	if actx.Beneficiary != nil {
		return actx.Beneficiary, nil
	}
	if actx.BeneficiaryId == "" {
		return nil, nil
	}
	b, err := h.store.GetBeneficiary(ctx, userId, actx.BeneficiaryId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load beneficiary: %w", err)
	}
	return &models.BankDetails{
		Country:       b.Country,
		BankName:      b.BankName,
		AccountName:   b.AccountName,
		AccountNumber: b.AccountNumber,
	}, nil
}

// completePayout persists the order and its receipt once the off-ramp
// accepted the payout.
func (h *Handler) completePayout(ctx context.Context, userId string, payout *models.Payout, amount decimal.Decimal, token, beneficiaryId string) (*models.Receipt, error) {
	h.record(ctx, userId, "chat.cashout.execute", nil, map[string]string{
		"payoutId": payout.PayoutId,
		"backend":  payout.Backend,
	})

	now := h.now().UTC()
	err := h.store.AddCashoutOrder(ctx, &models.CashoutOrder{
		PayoutId:      payout.PayoutId,
		UserId:        userId,
		Backend:       payout.Backend,
		Status:        payout.Status,
		Amount:        amount,
		Token:         token,
		BeneficiaryId: beneficiaryId,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, &ExecutedError{Ref: payout.PayoutId, Err: fmt.Errorf("record cashout order: %w", err)}
	}
	return h.complete(ctx, userId, models.ReceiptCashout, amount, token, payout.PayoutId, true)
}

// complete writes the receipt, records spend and mirrors the receipt to the
// ledger. Only called after the provider confirmed execution, so failures
// come back as *ExecutedError.
func (h *Handler) complete(ctx context.Context, userId string, kind models.ReceiptKind, amount decimal.Decimal, token, ref string, spend bool) (*models.Receipt, error) {
	receipt := &models.Receipt{
		Id:        "rcpt_" + uuid.New().String(),
		UserId:    userId,
		Kind:      kind,
		Amount:    amount,
		Token:     token,
		Ref:       ref,
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.AddReceipt(ctx, receipt); err != nil {
		return nil, &ExecutedError{Ref: ref, Err: fmt.Errorf("record %s receipt: %w", kind, err)}
	}

	if spend {
		if err := h.policy.RecordSpend(ctx, userId, amount, token); err != nil {
			return nil, &ExecutedError{Ref: ref, Err: err}
		}
	}

	if h.journal != nil {
		if err := h.journal.RecordReceipt(ctx, receipt); err != nil {
			zap.L().Warn("Failed to mirror receipt to ledger",
				zap.String("receipt_id", receipt.Id),
				zap.Error(err))
			h.record(ctx, userId, "ledger.mirror", err, map[string]string{"receiptId": receipt.Id})
		}
	}
	return receipt, nil
}

// executionFailed reports a provider failure. A timeout leaves the outcome
// unknown, so nothing is recorded as spent and the user is told to check
// before retrying.
func (h *Handler) executionFailed(ctx context.Context, userId, kind, label string, cause error, detail map[string]string) *models.Reply {
	category := provider.CategoryOf(cause)
	if detail == nil {
		detail = make(map[string]string, 1)
	}
	detail["category"] = string(category)
	h.record(ctx, userId, "chat."+kind+".execute", cause, detail)

	msg := provider.UserMessage(cause, label)
	if category == provider.CategoryTimeout {
		msg = fmt.Sprintf("%s request timed out and its outcome is unknown. Check your history before trying again.", label)
	}
	return &models.Reply{
		Reply:  msg,
		Action: ActionExecutionFailed,
		Data:   map[string]string{"category": string(category)},
	}
}

// PayoutInput is a direct payout request against a previously issued quote.
type PayoutInput struct {
	UserId        string              `json:"userId"`
	QuoteId       string              `json:"quoteId"`
	Backend       string              `json:"backend"`
	Amount        decimal.Decimal     `json:"amount"`
	Token         string              `json:"token"`
	BeneficiaryId string              `json:"beneficiaryId,omitempty"`
	Beneficiary   *models.BankDetails `json:"beneficiary,omitempty"`
	Otp           string              `json:"otp"`
}

// CreatePayout executes a quoted cashout without the chat flow. It applies
// the same policy and bookkeeping as a confirmed chat cashout.
func (h *Handler) CreatePayout(ctx context.Context, in PayoutInput) (*models.Payout, error) {
	switch {
	case in.UserId == "" || in.QuoteId == "" || in.Backend == "":
		return nil, fmt.Errorf("%w: userId, quoteId and backend are required", ErrInvalidRequest)
	case len(strings.TrimSpace(in.Otp)) < 4:
		return nil, fmt.Errorf("%w: otp must be at least 4 characters", ErrInvalidRequest)
	case in.Token == "":
		return nil, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}

	decision, err := h.policy.Check(ctx, in.UserId, policy.ActionCashout, in.Amount, in.Token)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		h.record(ctx, in.UserId, "offramp.create.blocked", errors.New(string(decision.Reason)), nil)
		return nil, &DeniedError{Reason: decision.Reason}
	}

	details, err := h.beneficiaryDetails(ctx, in.UserId, actionContext{
		BeneficiaryId: in.BeneficiaryId,
		Beneficiary:   in.Beneficiary,
	})
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, fmt.Errorf("%w: beneficiary required", ErrInvalidRequest)
	}

	payout, err := h.providers.CreatePayout(ctx, in.Backend, models.CreatePayoutRequest{
		UserId:      in.UserId,
		QuoteId:     in.QuoteId,
		Beneficiary: *details,
		Otp:         strings.TrimSpace(in.Otp),
	})
	if err != nil {
		h.record(ctx, in.UserId, "offramp.create", err, map[string]string{"category": string(provider.CategoryOf(err))})
		return nil, err
	}

	if _, err := h.completePayout(ctx, in.UserId, payout, in.Amount, in.Token, in.BeneficiaryId); err != nil {
		return nil, err
	}
	return payout, nil
}
