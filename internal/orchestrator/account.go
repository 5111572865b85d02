package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clenja-agent-go/internal/intent"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/pending"
	"clenja-agent-go/internal/policy"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"
)

type recipientChange struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

func (h *Handler) balance(ctx context.Context, userId string) (*models.Reply, error) {
	b, err := h.providers.Balance(ctx, userId)
	if err != nil {
		return &models.Reply{Reply: provider.UserMessage(err, "Balance")}, nil
	}

	parts := make([]string, len(b.Balances))
	for i, t := range b.Balances {
		parts[i] = fmt.Sprintf("%s %s", t.Amount, t.Token)
	}
	return &models.Reply{Reply: "Balance: " + strings.Join(parts, ", "), Data: b}, nil
}

func (h *Handler) history(ctx context.Context, userId string) (*models.Reply, error) {
	receipts, err := h.store.ListReceipts(ctx, userId, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return &models.Reply{Reply: fmt.Sprintf("Found %d recent records.", len(receipts)), Data: receipts}, nil
}

func (h *Handler) status() *models.Reply {
	health := h.providers.Health()
	state := "online"
	if !h.providers.Ready() {
		state = "degraded"
	}
	return &models.Reply{
		Reply: fmt.Sprintf("CLENJA is %s. Wallet mode: %s. Use /v1/readiness for full provider status.", state, h.providers.WalletMode()),
		Data:  health,
	}
}

func (h *Handler) address(ctx context.Context, userId string) (*models.Reply, error) {
	record, err := h.providers.LinkWallet(ctx, userId)
	if err != nil {
		return &models.Reply{Reply: provider.UserMessage(err, "Wallet")}, nil
	}
	if err := h.store.UpsertWallet(ctx, record); err != nil {
		return nil, fmt.Errorf("save wallet record: %w", err)
	}
	return &models.Reply{Reply: "Your wallet address: " + record.Address, Data: record}, nil
}

func (h *Handler) sendability(ctx context.Context, userId string) (*models.Reply, error) {
	b, err := h.providers.Balance(ctx, userId)
	if err != nil {
		return &models.Reply{Reply: provider.UserMessage(err, "Balance")}, nil
	}
	for _, t := range b.Balances {
		if t.Token == intent.TokenCELO && t.Amount.IsPositive() {
			return &models.Reply{Reply: fmt.Sprintf("Yes, you have %s CELO available to send.", t.Amount), Data: b}, nil
		}
	}
	return &models.Reply{
		Reply: fmt.Sprintf("You have no CELO to send yet. Fund your wallet at %s first.", b.Address),
		Data:  b,
	}, nil
}

func (h *Handler) showLimits(ctx context.Context, userId string) (*models.Reply, error) {
	p, err := h.policy.Policy(ctx, userId)
	if err != nil {
		return nil, err
	}
	spent, err := h.policy.SpentToday(ctx, userId)
	if err != nil {
		return nil, err
	}

	state := "active"
	if p.Paused {
		state = "paused"
	}
	return &models.Reply{
		Reply: fmt.Sprintf("Daily limit: $%s (spent today $%s). Per-transaction limit: $%s. Sending is %s.",
			p.DailyLimitUsd, spent, p.PerTxLimitUsd, state),
		Data: map[string]any{"policy": p, "spentTodayUsd": spent},
	}, nil
}

func (h *Handler) setLimit(ctx context.Context, userId string, in intent.Intent) (*models.Reply, error) {
	if !in.Amount.IsPositive() {
		return &models.Reply{Reply: "Limits must be greater than zero."}, nil
	}

	var (
		p   *models.UserPolicy
		err error
	)
	label := "Daily"
	if in.Kind == intent.KindSetDailyLimit {
		p, err = h.policy.SetDailyLimit(ctx, userId, in.Amount)
	} else {
		label = "Per-transaction"
		p, err = h.policy.SetPerTxLimit(ctx, userId, in.Amount)
	}
	if err != nil {
		return nil, err
	}

	h.record(ctx, userId, "policy."+string(in.Kind), nil, map[string]string{"limitUsd": in.Amount.String()})
	return &models.Reply{Reply: fmt.Sprintf("%s limit set to $%s.", label, in.Amount), Data: p}, nil
}

func (h *Handler) setPaused(ctx context.Context, userId string, paused bool) (*models.Reply, error) {
	p, err := h.policy.SetPaused(ctx, userId, paused)
	if err != nil {
		return nil, err
	}

	if paused {
		h.record(ctx, userId, "policy.pause", nil, nil)
		return &models.Reply{Reply: "Sending is paused. Say 'resume sending' to turn it back on.", Data: p}, nil
	}
	h.record(ctx, userId, "policy.resume", nil, nil)
	return &models.Reply{Reply: "Sending is resumed.", Data: p}, nil
}

func (h *Handler) listRecipients(ctx context.Context, userId string) (*models.Reply, error) {
	recipients, err := h.store.ListRecipients(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	if len(recipients) == 0 {
		return &models.Reply{Reply: "No saved recipients yet. Save one with 'save recipient <name> 0x...'."}, nil
	}

	parts := make([]string, len(recipients))
	for i, r := range recipients {
		parts[i] = fmt.Sprintf("%s (%s)", r.Name, shortAddress(r.Address))
	}
	return &models.Reply{Reply: "Saved recipients: " + strings.Join(parts, ", "), Data: recipients}, nil
}

func (h *Handler) saveRecipient(ctx context.Context, userId, name, address string) (*models.Reply, error) {
	existing, err := h.store.GetRecipient(ctx, userId, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if existing != nil && !strings.EqualFold(existing.Address, address) {
		return h.updateRecipient(ctx, userId, name, address)
	}

	r, _, err := h.store.UpsertRecipient(ctx, userId, name, address)
	if err != nil {
		return nil, fmt.Errorf("save recipient: %w", err)
	}
	h.record(ctx, userId, "recipient.save", nil, map[string]string{"name": r.Name})
	return &models.Reply{Reply: fmt.Sprintf("Saved recipient %s (%s).", r.Name, shortAddress(r.Address)), Data: r}, nil
}

func (h *Handler) updateRecipient(ctx context.Context, userId, name, address string) (*models.Reply, error) {
	existing, err := h.store.GetRecipient(ctx, userId, name)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Reply{Reply: fmt.Sprintf("No recipient named '%s'. Use 'save recipient %s 0x...'.", name, name)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	if err := h.pending.Set(ctx, userId, pending.KindConfirmUpdateRecipient, recipientChange{Name: existing.Name, Address: address}); err != nil {
		return nil, err
	}
	return &models.Reply{
		Reply: fmt.Sprintf("Update %s from %s to %s? Reply yes to confirm.",
			existing.Name, shortAddress(existing.Address), shortAddress(address)),
		Action: ActionAwaitingYes,
	}, nil
}

func (h *Handler) deleteRecipient(ctx context.Context, userId, name string) (*models.Reply, error) {
	existing, err := h.store.GetRecipient(ctx, userId, name)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Reply{Reply: fmt.Sprintf("No recipient named '%s'.", name)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	if err := h.pending.Set(ctx, userId, pending.KindConfirmDeleteRecipient, recipientChange{Name: existing.Name}); err != nil {
		return nil, err
	}
	return &models.Reply{
		Reply:  fmt.Sprintf("Delete recipient %s (%s)? Reply yes to confirm.", existing.Name, shortAddress(existing.Address)),
		Action: ActionAwaitingYes,
	}, nil
}

// confirmYes consumes the pending action and applies it.
func (h *Handler) confirmYes(ctx context.Context, userId string) (*models.Reply, error) {
	action, err := h.pending.Take(ctx, userId)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return &models.Reply{Reply: "There is nothing waiting for confirmation."}, nil
	}

	switch pending.Kind(action.Kind) {
	case pending.KindConfirmUpdateRecipient:
		var change recipientChange
		if err := pending.Decode(action, &change); err != nil {
			return nil, err
		}
		r, _, err := h.store.UpsertRecipient(ctx, userId, change.Name, change.Address)
		if err != nil {
			return nil, fmt.Errorf("update recipient: %w", err)
		}
		h.record(ctx, userId, "recipient.update", nil, map[string]string{"name": r.Name})
		return &models.Reply{Reply: fmt.Sprintf("Updated %s to %s.", r.Name, shortAddress(r.Address)), Data: r}, nil

	case pending.KindConfirmDeleteRecipient:
		var change recipientChange
		if err := pending.Decode(action, &change); err != nil {
			return nil, err
		}
		err := h.store.DeleteRecipient(ctx, userId, change.Name)
		if errors.Is(err, store.ErrNotFound) {
			return &models.Reply{Reply: fmt.Sprintf("Recipient %s was already removed.", change.Name)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("delete recipient: %w", err)
		}
		h.record(ctx, userId, "recipient.delete", nil, map[string]string{"name": change.Name})
		return &models.Reply{Reply: fmt.Sprintf("Deleted recipient %s.", change.Name)}, nil

	case pending.KindConfirmSwap:
		var draft swapDraft
		if err := pending.Decode(action, &draft); err != nil {
			return nil, err
		}
		return h.executeSwap(ctx, userId, draft)
	}

	return &models.Reply{Reply: "There is nothing waiting for confirmation."}, nil
}

func (h *Handler) executeSwap(ctx context.Context, userId string, draft swapDraft) (*models.Reply, error) {
	if !draft.ExpiresAt.IsZero() && h.now().After(draft.ExpiresAt) {
		return &models.Reply{Reply: "That swap quote has expired. Please request a new swap."}, nil
	}
	if denied, err := h.recheck(ctx, userId, policy.ActionSwap, draft.AmountIn, draft.FromToken); err != nil || denied != nil {
		return denied, err
	}

	tx, err := h.providers.ExecuteSwap(ctx, draft.Backend, provider.SwapRequest{
		UserId:         userId,
		FromToken:      draft.FromToken,
		ToToken:        draft.ToToken,
		AmountIn:       draft.AmountIn,
		MinAmountOut:   draft.MinAmountOut,
		QuoteId:        draft.QuoteId,
		IdempotencyKey: draft.QuoteId,
	})
	if err != nil {
		return h.executionFailed(ctx, userId, "swap", "Swap", err, map[string]string{
			"quoteId": draft.QuoteId,
			"backend": draft.Backend,
		}), nil
	}

	h.record(ctx, userId, "chat.swap.execute", nil, map[string]string{"txHash": tx.TxRef, "backend": tx.Backend})
	receipt, err := h.complete(ctx, userId, models.ReceiptSwap, draft.AmountIn, draft.FromToken, tx.TxRef, false)
	if err != nil {
		return nil, err
	}
	return &models.Reply{
		Reply:  fmt.Sprintf("Swap submitted. Tx: %s", tx.TxRef),
		Data:   map[string]any{"txHash": tx.TxRef, "status": tx.Status, "receipt": receipt},
		Action: ActionExecuted,
	}, nil
}

// cancel drops the pending action and expires any live challenge.
func (h *Handler) cancel(ctx context.Context, userId string) (*models.Reply, error) {
	action, err := h.pending.Take(ctx, userId)
	if err != nil {
		return nil, err
	}
	expired, err := h.challenges.Cancel(ctx, userId)
	if err != nil {
		return nil, err
	}

	if action == nil && expired == 0 {
		return &models.Reply{Reply: "There is nothing to cancel."}, nil
	}
	h.record(ctx, userId, "chat.cancel", nil, nil)
	return &models.Reply{Reply: "Cancelled. Nothing was sent."}, nil
}

func (h *Handler) cashoutStatus(ctx context.Context, userId, payoutId string) (*models.Reply, error) {
	order, err := h.store.GetCashoutOrder(ctx, payoutId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load cashout order: %w", err)
	}
	if order == nil || order.UserId != userId {
		return &models.Reply{Reply: fmt.Sprintf("No cashout found with id %s.", payoutId)}, nil
	}
	return &models.Reply{
		Reply: fmt.Sprintf("Cashout %s is %s (%s %s).", order.PayoutId, order.Status, order.Amount, order.Token),
		Data:  order,
	}, nil
}

// NotifyDeposit forwards a deposit transaction for a user's cashout to the
// off-ramp that created it and stores the status it reports.
func (h *Handler) NotifyDeposit(ctx context.Context, userId, payoutId, txRef string) (*models.CashoutOrder, error) {
	if userId == "" || payoutId == "" || strings.TrimSpace(txRef) == "" {
		return nil, fmt.Errorf("%w: userId, payoutId and txRef are required", ErrInvalidRequest)
	}

	order, err := h.store.GetCashoutOrder(ctx, payoutId)
	if err != nil {
		return nil, err
	}
	if order.UserId != userId {
		return nil, fmt.Errorf("cashout %s: %w", payoutId, store.ErrNotFound)
	}
	if order.Status.Terminal() {
		return order, nil
	}

	state, err := h.providers.NotifyDeposit(ctx, order.Backend, payoutId, strings.TrimSpace(txRef))
	if err != nil {
		h.record(ctx, userId, "cashout.deposit", err, map[string]string{"payoutId": payoutId})
		return nil, err
	}
	h.record(ctx, userId, "cashout.deposit", nil, map[string]string{"payoutId": payoutId, "txRef": txRef, "status": string(state.Status)})

	if state.Status == order.Status {
		return order, nil
	}
	return h.store.UpdateCashoutStatus(ctx, payoutId, state.Status)
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
