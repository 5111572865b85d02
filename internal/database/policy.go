package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetOrCreatePolicy returns the user's policy, inserting defaults on first use.
func (s *Service) GetOrCreatePolicy(ctx context.Context, defaults models.UserPolicy) (*models.UserPolicy, error) {
	if defaults.UserId == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, queryInsertPolicyIfMissing,
		defaults.UserId, defaults.DailyLimitUsd.String(), defaults.PerTxLimitUsd.String(), toMillis(nowUTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to create default policy: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		zap.L().Info("Created default user policy",
			zap.String("user_id", defaults.UserId),
			zap.String("daily_limit_usd", defaults.DailyLimitUsd.String()),
			zap.String("per_tx_limit_usd", defaults.PerTxLimitUsd.String()))
	}

	var policy models.UserPolicy
	var dailyStr, perTxStr string
	var paused int
	var updatedAt int64
	err = s.db.QueryRowContext(ctx, queryGetPolicy, defaults.UserId).
		Scan(&policy.UserId, &dailyStr, &perTxStr, &paused, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy for %s: %w", defaults.UserId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	policy.DailyLimitUsd, err = decimal.NewFromString(dailyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily limit '%s': %w", dailyStr, err)
	}
	policy.PerTxLimitUsd, err = decimal.NewFromString(perTxStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse per-tx limit '%s': %w", perTxStr, err)
	}
	policy.Paused = paused != 0
	policy.UpdatedAt = fromMillis(updatedAt)
	return &policy, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, policy *models.UserPolicy) error {
	paused := 0
	if policy.Paused {
		paused = 1
	}
	policy.UpdatedAt = nowUTC()

	result, err := s.db.ExecContext(ctx, queryUpdatePolicy,
		policy.DailyLimitUsd.String(), policy.PerTxLimitUsd.String(), paused, toMillis(policy.UpdatedAt), policy.UserId)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("policy for %s: %w", policy.UserId, store.ErrNotFound)
	}
	return nil
}

func (s *Service) GetSpend(ctx context.Context, userId, day string) (decimal.Decimal, error) {
	var amountStr string
	var version int64
	err := s.db.QueryRowContext(ctx, queryGetSpend, userId, day).Scan(&amountStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get spend: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse spend '%s': %w", amountStr, err)
	}
	return amount, nil
}

// AddSpend atomically increases the day's bucket and returns the new total.
func (s *Service) AddSpend(ctx context.Context, userId, day string, amountUsd decimal.Decimal) (decimal.Decimal, error) {
	if amountUsd.IsNegative() {
		return decimal.Zero, fmt.Errorf("spend cannot be decremented, got %s", amountUsd.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var currentStr string
	var version int64
	now := toMillis(nowUTC())

	err = tx.QueryRowContext(ctx, queryGetSpend, userId, day).Scan(&currentStr, &version)

	var total decimal.Decimal
	if errors.Is(err, sql.ErrNoRows) {
		total = amountUsd
		if _, err := tx.ExecContext(ctx, queryInsertSpend, userId, day, total.String(), now); err != nil {
			return decimal.Zero, fmt.Errorf("failed to insert spend: %w", err)
		}
	} else if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get spend: %w", err)
	} else {
		current, err := decimal.NewFromString(currentStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse spend '%s': %w", currentStr, err)
		}
		total = current.Add(amountUsd)

		// Update spend (with optimistic locking)
		result, err := tx.ExecContext(ctx, queryUpdateSpend, total.String(), now, userId, day, version)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to update spend: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return decimal.Zero, fmt.Errorf("spend update failed - %w", store.ErrConcurrentModification)
		}
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("Recorded policy spend",
		zap.String("user_id", userId),
		zap.String("day", day),
		zap.String("amount_usd", amountUsd.String()),
		zap.String("total_usd", total.String()))

	return total, nil
}
