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
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"clenja-agent-go/internal/intent"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/pending"
	"clenja-agent-go/internal/policy"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// actionContext is bound to a challenge at creation and is the only source
// of action parameters at execution time.
type actionContext struct {
	Kind          string              `json:"kind"`
	Backend       string              `json:"backend"`
	QuoteId       string              `json:"quoteId"`
	To            string              `json:"to,omitempty"`
	Token         string              `json:"token"`
	Amount        decimal.Decimal     `json:"amount"`
	BeneficiaryId string              `json:"beneficiaryId,omitempty"`
	Beneficiary   *models.BankDetails `json:"beneficiary,omitempty"`
}

// cashoutDraft waits in the pending register for bank details.
type cashoutDraft struct {
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}

// swapDraft waits in the pending register for a "yes".
type swapDraft struct {
	Backend      string          `json:"backend"`
	QuoteId      string          `json:"quoteId"`
	FromToken    string          `json:"fromToken"`
	ToToken      string          `json:"toToken"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	AmountOut    decimal.Decimal `json:"amountOut"`
	MinAmountOut decimal.Decimal `json:"minAmountOut"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

var currencies = map[string]string{
	"NG": "NGN",
	"KE": "KES",
	"GH": "GHS",
	"ZA": "ZAR",
}

// checkPolicy returns a reply when the action is denied.
func (h *Handler) checkPolicy(ctx context.Context, userId string, action policy.Action, amount decimal.Decimal, token string) (*models.Reply, error) {
	decision, err := h.policy.Check(ctx, userId, action, amount, token)
	if err != nil {
		return nil, err
	}
	if decision.Allowed {
		return nil, nil
	}

	h.record(ctx, userId, "chat."+string(action)+".blocked", errors.New(string(decision.Reason)), map[string]string{
		"reason": string(decision.Reason),
		"amount": amount.String(),
		"token":  token,
	})
	return &models.Reply{
		Reply:  fmt.Sprintf("Blocked by policy: %s", decision.Reason),
		Action: ActionPolicyDenied,
		Data:   map[string]string{"reason": string(decision.Reason)},
	}, nil
}

func (h *Handler) startSend(ctx context.Context, userId string, amount decimal.Decimal, token, to, label string) (*models.Reply, error) {
	if denied, err := h.checkPolicy(ctx, userId, policy.ActionSend, amount, token); err != nil || denied != nil {
		return denied, err
	}

	quote, err := h.providers.PrepareSend(ctx, provider.SendRequest{
		UserId: userId,
		To:     to,
		Token:  token,
		Amount: amount,
	})
	if err != nil {
		h.record(ctx, userId, "chat.send.prepare", err, map[string]string{"to": to})
		return &models.Reply{Reply: provider.UserMessage(err, "Send")}, nil
	}

	last4 := to[len(to)-4:]
	ch, err := h.challenges.Create(ctx, userId, models.ChallengeNewRecipientLast4, last4, actionContext{
		Kind:    string(models.ReceiptSend),
		Backend: quote.Backend,
		QuoteId: quote.QuoteId,
		To:      to,
		Token:   token,
		Amount:  amount,
	})
	if err != nil {
		return nil, err
	}

	target := to
	if label != "" {
		target = fmt.Sprintf("%s (%s)", label, to)
	}
	return &models.Reply{
		Reply: fmt.Sprintf("Sending %s %s to %s. Network fee %s, arrival %s. Confirm send by typing last 4 chars of recipient (%s)",
			amount, token, target, quote.Fee, quote.Eta, last4),
		Data:        quote,
		ChallengeId: ch.Id,
		Action:      ActionAwaitingConfirmation,
	}, nil
}

func (h *Handler) sendToRecipient(ctx context.Context, userId string, in intent.Intent) (*models.Reply, error) {
	recipient, err := h.store.GetRecipient(ctx, userId, in.Name)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Reply{
			Reply: fmt.Sprintf("No saved recipient named '%s'. Save one with 'save recipient %s 0x...'.", in.Name, in.Name),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	return h.startSend(ctx, userId, in.Amount, in.Token, recipient.Address, recipient.Name)
}

func (h *Handler) startSwap(ctx context.Context, userId string, in intent.Intent) (*models.Reply, error) {
	if denied, err := h.checkPolicy(ctx, userId, policy.ActionSwap, in.Amount, in.Token); err != nil || denied != nil {
		return denied, err
	}

	quote, err := h.providers.PrepareSwap(ctx, provider.SwapRequest{
		UserId:    userId,
		FromToken: in.Token,
		ToToken:   in.ToToken,
		AmountIn:  in.Amount,
	})
	if err != nil {
		h.record(ctx, userId, "chat.swap.prepare", err, nil)
		return &models.Reply{Reply: provider.UserMessage(err, "Swap")}, nil
	}

	err = h.pending.Set(ctx, userId, pending.KindConfirmSwap, swapDraft{
		Backend:      quote.Backend,
		QuoteId:      quote.QuoteId,
		FromToken:    quote.FromToken,
		ToToken:      quote.ToToken,
		AmountIn:     quote.AmountIn,
		AmountOut:    quote.AmountOut,
		MinAmountOut: quote.MinAmountOut,
		ExpiresAt:    quote.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &models.Reply{
		Reply: fmt.Sprintf("Swap quote: %s %s for about %s %s (minimum %s). Reply yes to confirm or cancel to stop.",
			quote.AmountIn, quote.FromToken, quote.AmountOut, quote.ToToken, quote.MinAmountOut),
		Data:   quote,
		Action: ActionAwaitingYes,
	}, nil
}

func (h *Handler) startCashout(ctx context.Context, userId string, in intent.Intent) (*models.Reply, error) {
	if denied, err := h.checkPolicy(ctx, userId, policy.ActionCashout, in.Amount, in.Token); err != nil || denied != nil {
		return denied, err
	}

	saved, err := h.store.ListBeneficiaries(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}

	if in.Name != "" {
		matches := matchBeneficiaries(saved, in.Name)
		switch len(matches) {
		case 0:
			return &models.Reply{
				Reply: fmt.Sprintf("No beneficiary found for '%s'. Save one first or say 'cashout %s %s' to enter bank details.", in.Name, in.Amount, in.Token),
			}, nil
		case 1:
			return h.quoteCashout(ctx, userId, in.Amount, in.Token, &matches[0])
		default:
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.AccountName
			}
			return &models.Reply{
				Reply: fmt.Sprintf("I found multiple beneficiaries for '%s': %s. Please be more specific.", in.Name, strings.Join(names, ", ")),
			}, nil
		}
	}

	if len(saved) == 1 {
		return h.quoteCashout(ctx, userId, in.Amount, in.Token, &saved[0])
	}

	if err := h.pending.Set(ctx, userId, pending.KindCashoutBankDetails, cashoutDraft{Amount: in.Amount, Token: in.Token}); err != nil {
		return nil, err
	}
	return &models.Reply{
		Reply:  "Where should I send the money? Reply with '<account number> <bank name>', for example '0123456789 Access Bank'.",
		Action: ActionAwaitingBankDetails,
	}, nil
}

// continueCashout reads the message as bank details for a pending cashout.
func (h *Handler) continueCashout(ctx context.Context, userId string, action *models.PendingAction, text string) (*models.Reply, error) {
	var draft cashoutDraft
	if err := pending.Decode(action, &draft); err != nil {
		if clearErr := h.pending.Clear(ctx, userId); clearErr != nil {
			zap.L().Warn("Failed to clear undecodable cashout draft",
				zap.String("user_id", userId),
				zap.Error(clearErr))
		}
		return nil, err
	}

	details, ok := ParseBankDetails(text, h.cfg.Country)
	if !ok {
		return &models.Reply{
			Reply:  "I need bank details as '<account number> <bank name>', for example '0123456789 Access Bank'. Say cancel to stop.",
			Action: ActionAwaitingBankDetails,
		}, nil
	}

	details.BankName = h.canonicalBank(ctx, details)

	check, err := h.providers.ResolveRecipient(ctx, details)
	if err != nil {
		h.record(ctx, userId, "chat.cashout.resolve_recipient", err, nil)
		return &models.Reply{Reply: provider.UserMessage(err, "Cashout"), Action: ActionAwaitingBankDetails}, nil
	}
	if !check.Valid {
		return &models.Reply{
			Reply:  "I could not verify that account. Check the number and bank, or say cancel to stop.",
			Action: ActionAwaitingBankDetails,
		}, nil
	}
	if details.AccountName == "" {
		details.AccountName = check.AccountName
	}

	// Take consumes the step; a concurrent message that already took it wins.
	taken, err := h.pending.Take(ctx, userId)
	if err != nil {
		return nil, err
	}
	if taken == nil || taken.Kind != action.Kind {
		return &models.Reply{Reply: "That cashout is no longer waiting for bank details."}, nil
	}

	beneficiary, err := h.SaveBeneficiary(ctx, userId, details)
	if err != nil {
		return nil, err
	}
	return h.quoteCashout(ctx, userId, draft.Amount, draft.Token, beneficiary)
}

// canonicalBank maps a typed bank name onto the provider's spelling.
func (h *Handler) canonicalBank(ctx context.Context, details models.BankDetails) string {
	banks, err := h.providers.ListBanks(ctx, details.Country)
	if err != nil {
		zap.L().Debug("Bank list unavailable", zap.Error(err))
		return details.BankName
	}
	for _, b := range banks {
		if strings.EqualFold(b.Name, details.BankName) || strings.EqualFold(b.Code, details.BankName) {
			return b.Name
		}
	}
	return details.BankName
}

func (h *Handler) quoteCashout(ctx context.Context, userId string, amount decimal.Decimal, token string, beneficiary *models.Beneficiary) (*models.Reply, error) {
	country := beneficiary.Country
	if country == "" {
		country = h.cfg.Country
	}
	currency, ok := currencies[strings.ToUpper(country)]
	if !ok {
		currency = h.cfg.Currency
	}

	quote, err := h.providers.CashoutQuote(ctx, models.CashoutQuoteRequest{
		UserId:    userId,
		FromToken: token,
		Amount:    amount,
		Country:   country,
		Currency:  currency,
	})
	if err != nil {
		h.record(ctx, userId, "chat.cashout.quote", err, nil)
		return &models.Reply{Reply: provider.UserMessage(err, "Cashout")}, nil
	}

	otp, err := h.otp()
	if err != nil {
		return nil, err
	}

	ch, err := h.challenges.Create(ctx, userId, models.ChallengeCashoutOTP, otp, actionContext{
		Kind:          string(models.ReceiptCashout),
		Backend:       quote.Backend,
		QuoteId:       quote.QuoteId,
		Token:         token,
		Amount:        amount,
		BeneficiaryId: beneficiary.Id,
	})
	if err != nil {
		return nil, err
	}

	return &models.Reply{
		Reply: fmt.Sprintf("Cashout quote ready: receive %s %s in %s account %s. Reply with OTP %s to confirm.",
			quote.ReceiveAmount, quote.Currency, beneficiary.BankName, beneficiary.AccountNumberMasked, otp),
		Data:        quote,
		ChallengeId: ch.Id,
		Action:      ActionAwaitingConfirmation,
	}, nil
}

func (h *Handler) otp() (string, error) {
	if h.cfg.CashoutOTP != "" {
		return h.cfg.CashoutOTP, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
