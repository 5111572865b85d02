package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func recipientKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UpsertRecipient saves a recipient by case-insensitive name. The returned bool
// reports whether a new record was created.
func (s *Service) UpsertRecipient(ctx context.Context, userId, name, address string) (*models.Recipient, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("recipient name cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	now := nowUTC()
	existing, err := scanRecipient(tx.QueryRowContext(ctx, queryGetRecipientByKey, userId, recipientKey(name)))

	created := false
	var recipient *models.Recipient
	if errors.Is(err, sql.ErrNoRows) {
		recipient = &models.Recipient{
			Id:        "rcp_" + uuid.New().String(),
			UserId:    userId,
			Name:      name,
			Address:   address,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.ExecContext(ctx, queryInsertRecipient,
			recipient.Id, userId, name, recipientKey(name), address, toMillis(now), toMillis(now))
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert recipient: %w", err)
		}
		created = true
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to get recipient: %w", err)
	} else {
		recipient = existing
		recipient.Name = name
		recipient.Address = address
		recipient.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, queryUpdateRecipient, name, address, toMillis(now), recipient.Id); err != nil {
			return nil, false, fmt.Errorf("failed to update recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Recipient saved",
		zap.String("user_id", userId),
		zap.String("recipient_id", recipient.Id),
		zap.Bool("created", created))
	return recipient, created, nil
}

func (s *Service) GetRecipient(ctx context.Context, userId, name string) (*models.Recipient, error) {
	recipient, err := scanRecipient(s.db.QueryRowContext(ctx, queryGetRecipientByKey, userId, recipientKey(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipient %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return recipient, nil
}

func (s *Service) ListRecipients(ctx context.Context, userId string) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, queryListRecipients, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer closeRows(rows)

	var recipients []models.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, *recipient)
	}
	return recipients, rows.Err()
}

func (s *Service) DeleteRecipient(ctx context.Context, userId, name string) error {
	result, err := s.db.ExecContext(ctx, queryDeleteRecipient, userId, recipientKey(name))
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("recipient %q: %w", name, store.ErrNotFound)
	}
	return nil
}

func scanRecipient(row rowScanner) (*models.Recipient, error) {
	var r models.Recipient
	var createdAt, updatedAt int64
	if err := row.Scan(&r.Id, &r.UserId, &r.Name, &r.Address, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func (s *Service) AddBeneficiary(ctx context.Context, b *models.Beneficiary) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = nowUTC()
	}

	_, err := s.db.ExecContext(ctx, queryInsertBeneficiary,
		b.Id, b.UserId, b.Country, b.BankName, b.AccountName, b.AccountNumber,
		b.AccountNumberMasked, b.AccountNumberLast4, toMillis(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert beneficiary: %w", err)
	}

	zap.L().Info("Beneficiary saved",
		zap.String("user_id", b.UserId),
		zap.String("beneficiary_id", b.Id),
		zap.String("bank_name", b.BankName),
		zap.String("account", b.AccountNumberMasked))
	return nil
}

func (s *Service) GetBeneficiary(ctx context.Context, userId, id string) (*models.Beneficiary, error) {
	b, err := scanBeneficiary(s.db.QueryRowContext(ctx, queryGetBeneficiary, userId, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("beneficiary %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get beneficiary: %w", err)
	}
	return b, nil
}

func (s *Service) ListBeneficiaries(ctx context.Context, userId string) ([]models.Beneficiary, error) {
	rows, err := s.db.QueryContext(ctx, queryListBeneficiaries, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries: %w", err)
	}
	defer closeRows(rows)

	var beneficiaries []models.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		beneficiaries = append(beneficiaries, *b)
	}
	return beneficiaries, rows.Err()
}

func scanBeneficiary(row rowScanner) (*models.Beneficiary, error) {
	var b models.Beneficiary
	var createdAt int64
	err := row.Scan(&b.Id, &b.UserId, &b.Country, &b.BankName, &b.AccountName, &b.AccountNumber,
		&b.AccountNumberMasked, &b.AccountNumberLast4, &createdAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	return &b, nil
}
