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
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"go.uber.org/zap"
)

// CreateChallenge stores a new pending challenge. Any challenge the user still
// has pending is expired first, inside the same transaction, so at most one
// challenge per user can be verified at a time.
func (s *Service) CreateChallenge(ctx context.Context, ch *models.Challenge) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, queryExpireUserChallenges, ch.UserId)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede pending challenges: %w", err)
	}
	superseded, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	payload := string(ch.Context)
	if payload == "" {
		payload = "{}"
	}

	_, err = tx.ExecContext(ctx, queryInsertChallenge,
		ch.Id, ch.UserId, string(ch.Type), ch.ExpectedAnswer, string(ch.Status),
		toMillis(ch.CreatedAt), toMillis(ch.ExpiresAt), payload)
	if err != nil {
		return 0, fmt.Errorf("failed to insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if superseded > 0 {
		zap.L().Info("Superseded pending challenges",
			zap.String("user_id", ch.UserId),
			zap.Int64("count", superseded),
			zap.String("new_challenge_id", ch.Id))
	}

	return superseded, nil
}

func (s *Service) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	ch, err := scanChallenge(s.db.QueryRowContext(ctx, queryGetChallenge, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("challenge %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return ch, nil
}

func (s *Service) GetLiveChallenge(ctx context.Context, userId string, now time.Time) (*models.Challenge, error) {
	ch, err := scanChallenge(s.db.QueryRowContext(ctx, queryGetLiveChallenge, userId, toMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("live challenge for %s: %w", userId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live challenge: %w", err)
	}
	return ch, nil
}

// TransitionChallenge is a compare-and-set on status = 'pending'. Of any number
// of concurrent callers exactly one succeeds; the rest see ErrChallengeNotPending.
func (s *Service) TransitionChallenge(ctx context.Context, id string, to models.ChallengeStatus) error {
	if to == models.ChallengePending {
		return fmt.Errorf("cannot transition challenge back to pending")
	}

	result, err := s.db.ExecContext(ctx, queryTransitionChallenge, string(to), id)
	if err != nil {
		return fmt.Errorf("failed to transition challenge: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, queryChallengeExists, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("challenge %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check challenge: %w", err)
	}
	return fmt.Errorf("challenge %s: %w", id, store.ErrChallengeNotPending)
}

func (s *Service) ExpireUserChallenges(ctx context.Context, userId string) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpireUserChallenges, userId)
	if err != nil {
		return 0, fmt.Errorf("failed to expire challenges: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*models.Challenge, error) {
	var ch models.Challenge
	var chType, status, payload string
	var createdAt, expiresAt int64

	if err := row.Scan(&ch.Id, &ch.UserId, &chType, &ch.ExpectedAnswer, &status, &createdAt, &expiresAt, &payload); err != nil {
		return nil, err
	}

	ch.Type = models.ChallengeType(chType)
	ch.Status = models.ChallengeStatus(status)
	ch.CreatedAt = fromMillis(createdAt)
	ch.ExpiresAt = fromMillis(expiresAt)
	ch.Context = []byte(payload)
	return &ch, nil
}
