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

package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"go.uber.org/zap"
)

// Kind names the conversational step a pending action is waiting on.
type Kind string

const (
	KindConfirmUpdateRecipient Kind = "confirm_update_recipient"
	KindConfirmDeleteRecipient Kind = "confirm_delete_recipient"
	KindConfirmSwap            Kind = "confirm_swap"
	KindCashoutBankDetails     Kind = "cashout_bank_details"
)

type Store interface {
	SetPendingAction(ctx context.Context, action *models.PendingAction) error
	GetPendingAction(ctx context.Context, userId string) (*models.PendingAction, error)
	TakePendingAction(ctx context.Context, userId string) (*models.PendingAction, error)
	ClearPendingAction(ctx context.Context, userId string) error
}

// Register keeps at most one pending action per user. Setting a new one
// discards the previous.
type Register struct {
	store Store
}

func NewRegister(store Store) *Register {
	return &Register{store: store}
}

func (r *Register) Set(ctx context.Context, userId string, kind Kind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode pending payload: %w", err)
	}

	action := &models.PendingAction{
		UserId:    userId,
		Kind:      string(kind),
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.SetPendingAction(ctx, action); err != nil {
		return fmt.Errorf("set pending action: %w", err)
	}

	zap.L().Debug("Pending action set", zap.String("user_id", userId), zap.String("kind", string(kind)))
	return nil
}

// Get returns the user's pending action, or nil when there is none.
func (r *Register) Get(ctx context.Context, userId string) (*models.PendingAction, error) {
	action, err := r.store.GetPendingAction(ctx, userId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending action: %w", err)
	}
	return action, nil
}

// Take consumes the pending action. Only one of two concurrent callers gets it.
func (r *Register) Take(ctx context.Context, userId string) (*models.PendingAction, error) {
	action, err := r.store.TakePendingAction(ctx, userId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take pending action: %w", err)
	}
	return action, nil
}

func (r *Register) Clear(ctx context.Context, userId string) error {
	if err := r.store.ClearPendingAction(ctx, userId); err != nil {
		return fmt.Errorf("clear pending action: %w", err)
	}
	return nil
}

// Decode unmarshals the payload of a pending action.
func Decode(action *models.PendingAction, into any) error {
	if err := json.Unmarshal(action.Payload, into); err != nil {
		return fmt.Errorf("decode pending %s payload: %w", action.Kind, err)
	}
	return nil
}
