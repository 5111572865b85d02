package database

import (
	"context"
	"encoding/json"
	"fmt"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddReceipt appends a receipt and trims the table to the retention count.
func (s *Service) AddReceipt(ctx context.Context, receipt *models.Receipt) error {
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = nowUTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, queryInsertReceipt,
		receipt.Id, receipt.UserId, string(receipt.Kind), receipt.Amount.String(),
		receipt.Token, receipt.Ref, toMillis(receipt.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryTrimReceipts, s.receiptRetention); err != nil {
		return fmt.Errorf("failed to trim receipts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Receipt recorded",
		zap.String("receipt_id", receipt.Id),
		zap.String("user_id", receipt.UserId),
		zap.String("kind", string(receipt.Kind)),
		zap.String("amount", receipt.Amount.String()),
		zap.String("token", receipt.Token),
		zap.String("ref", receipt.Ref))
	return nil
}

// ListReceipts returns a user's receipts newest first.
func (s *Service) ListReceipts(ctx context.Context, userId string, limit int) ([]models.Receipt, error) {
	if limit <= 0 {
		limit = s.receiptRetention
	}

	rows, err := s.db.QueryContext(ctx, queryListReceipts, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer closeRows(rows)

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		var kind, amountStr string
		var createdAt int64
		if err := rows.Scan(&r.Id, &r.UserId, &kind, &amountStr, &r.Token, &r.Ref, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		r.Kind = models.ReceiptKind(kind)
		r.CreatedAt = fromMillis(createdAt)
		r.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse receipt amount '%s': %w", amountStr, err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (s *Service) AddAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event.Ts.IsZero() {
		event.Ts = nowUTC()
	}

	detail := []byte("{}")
	if len(event.Detail) > 0 {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, queryInsertAuditEvent,
		event.Id, toMillis(event.Ts), event.UserId, event.Action, string(event.Status), string(detail))
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryTrimAuditEvents, s.auditRetention); err != nil {
		return fmt.Errorf("failed to trim audit events: %w", err)
	}

	return tx.Commit()
}

// ListAuditEvents returns events newest first; an empty userId lists every user.
func (s *Service) ListAuditEvents(ctx context.Context, userId string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryListAuditEvents, userId, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer closeRows(rows)

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var status, detail string
		var ts int64
		if err := rows.Scan(&e.Id, &ts, &e.UserId, &e.Action, &status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Ts = fromMillis(ts)
		e.Status = models.AuditStatus(status)
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
				zap.L().Warn("Unreadable audit detail", zap.String("audit_id", e.Id), zap.Error(err))
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
