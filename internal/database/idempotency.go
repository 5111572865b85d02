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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clenja-agent-go/internal/store"

	"go.uber.org/zap"
)

// ReserveIdempotency claims (action, key) for the caller. A completed record with
// the same request hash is replayed; a different hash or a claim still in flight
// is rejected.
func (s *Service) ReserveIdempotency(ctx context.Context, action, key, requestHash string) (*store.IdempotencyReservation, error) {
	if key == "" {
		return nil, fmt.Errorf("idempotency key cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var existingHash, status string
	var response []byte
	err = tx.QueryRowContext(ctx, queryGetIdempotency, action, key).Scan(&existingHash, &status, &response)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, queryInsertIdempotency, action, key, requestHash, toMillis(nowUTC())); err != nil {
			return nil, fmt.Errorf("failed to insert idempotency record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryTrimIdempotency, s.idempotencyRetention); err != nil {
			return nil, fmt.Errorf("failed to trim idempotency records: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &store.IdempotencyReservation{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	if existingHash != requestHash {
		zap.L().Warn("Idempotency key reused with a different payload",
			zap.String("action", action),
			zap.String("key", key))
		return nil, fmt.Errorf("%s/%s: %w", action, key, store.ErrIdempotencyMismatch)
	}
	if status != "completed" {
		return nil, fmt.Errorf("%s/%s: %w", action, key, store.ErrIdempotencyInProgress)
	}

	zap.L().Info("Replaying idempotent response", zap.String("action", action), zap.String("key", key))
	return &store.IdempotencyReservation{Replay: true, Response: response}, nil
}

func (s *Service) CompleteIdempotency(ctx context.Context, action, key string, response []byte) error {
	result, err := s.db.ExecContext(ctx, queryCompleteIdempotency, response, action, key)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", action, key, store.ErrNotFound)
	}
	return nil
}

// ReleaseIdempotency drops an in-flight claim so the client may retry.
func (s *Service) ReleaseIdempotency(ctx context.Context, action, key string) error {
	if _, err := s.db.ExecContext(ctx, queryReleaseIdempotency, action, key); err != nil {
		return fmt.Errorf("failed to release idempotency record: %w", err)
	}
	return nil
}
