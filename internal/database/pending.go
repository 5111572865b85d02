package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"
)

func (s *Service) SetPendingAction(ctx context.Context, action *models.PendingAction) error {
	payload := string(action.Payload)
	if payload == "" {
		payload = "{}"
	}
	createdAt := action.CreatedAt
	if createdAt.IsZero() {
		createdAt = nowUTC()
	}

	_, err := s.db.ExecContext(ctx, queryUpsertPendingAction, action.UserId, action.Kind, payload, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("failed to set pending action: %w", err)
	}
	return nil
}

func (s *Service) GetPendingAction(ctx context.Context, userId string) (*models.PendingAction, error) {
	action, err := scanPendingAction(s.db.QueryRowContext(ctx, queryGetPendingAction, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending action for %s: %w", userId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}
	return action, nil
}

// TakePendingAction deletes and returns in one statement so two concurrent
// turns cannot both consume the same pending action.
func (s *Service) TakePendingAction(ctx context.Context, userId string) (*models.PendingAction, error) {
	action, err := scanPendingAction(s.db.QueryRowContext(ctx, queryTakePendingAction, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending action for %s: %w", userId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending action: %w", err)
	}
	return action, nil
}

func (s *Service) ClearPendingAction(ctx context.Context, userId string) error {
	if _, err := s.db.ExecContext(ctx, queryDeletePendingAction, userId); err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}
	return nil
}

func scanPendingAction(row rowScanner) (*models.PendingAction, error) {
	var action models.PendingAction
	var payload string
	var createdAt int64

	if err := row.Scan(&action.UserId, &action.Kind, &payload, &createdAt); err != nil {
		return nil, err
	}

	action.Payload = []byte(payload)
	action.CreatedAt = fromMillis(createdAt)
	return &action, nil
}
