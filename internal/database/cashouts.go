package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) AddCashoutOrder(ctx context.Context, order *models.CashoutOrder) error {
	now := nowUTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, queryInsertCashout,
		order.PayoutId, order.UserId, order.Backend, string(order.Status), order.Amount.String(),
		order.Token, order.BeneficiaryId, toMillis(order.CreatedAt), toMillis(order.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert cashout order: %w", err)
	}

	zap.L().Info("Cashout order recorded",
		zap.String("payout_id", order.PayoutId),
		zap.String("user_id", order.UserId),
		zap.String("backend", order.Backend),
		zap.String("status", string(order.Status)))
	return nil
}

func (s *Service) GetCashoutOrder(ctx context.Context, payoutId string) (*models.CashoutOrder, error) {
	order, err := scanCashout(s.db.QueryRowContext(ctx, queryGetCashout, payoutId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cashout %s: %w", payoutId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cashout order: %w", err)
	}
	return order, nil
}

// UpdateCashoutStatus advances an order's status. A stale or backwards status
// leaves the row untouched and returns the order as stored.
func (s *Service) UpdateCashoutStatus(ctx context.Context, payoutId string, status models.PayoutStatus) (*models.CashoutOrder, error) {
	result, err := s.db.ExecContext(ctx, queryUpdateCashoutStatus,
		string(status), toMillis(nowUTC()), payoutId, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to update cashout status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Debug("Cashout status not advanced",
			zap.String("payout_id", payoutId),
			zap.String("status", string(status)))
	}
	return s.GetCashoutOrder(ctx, payoutId)
}

// ListOpenCashoutOrders returns non-terminal orders, least recently refreshed first.
func (s *Service) ListOpenCashoutOrders(ctx context.Context, limit int) ([]models.CashoutOrder, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryListOpenCashouts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open cashouts: %w", err)
	}
	defer closeRows(rows)

	var orders []models.CashoutOrder
	for rows.Next() {
		order, err := scanCashout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cashout order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanCashout(row rowScanner) (*models.CashoutOrder, error) {
	var o models.CashoutOrder
	var status, amountStr string
	var createdAt, updatedAt int64
	err := row.Scan(&o.PayoutId, &o.UserId, &o.Backend, &status, &amountStr, &o.Token,
		&o.BeneficiaryId, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.PayoutStatus(status)
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)
	o.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cashout amount '%s': %w", amountStr, err)
	}
	return &o, nil
}

func (s *Service) UpsertWallet(ctx context.Context, record *models.WalletRecord) error {
	now := nowUTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	meta := []byte("{}")
	if len(record.Meta) > 0 {
		var err error
		meta, err = json.Marshal(record.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal wallet meta: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, queryUpsertWallet,
		record.UserId, record.Backend, record.Address, string(meta), toMillis(record.CreatedAt), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return nil
}

func (s *Service) GetWallet(ctx context.Context, userId, backend string) (*models.WalletRecord, error) {
	var w models.WalletRecord
	var meta string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, queryGetWallet, userId, backend).
		Scan(&w.UserId, &w.Backend, &w.Address, &meta, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s/%s: %w", userId, backend, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &w.Meta); err != nil {
			return nil, fmt.Errorf("failed to parse wallet meta: %w", err)
		}
	}
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return &w, nil
}
