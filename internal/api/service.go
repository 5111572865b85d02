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

package api

import (
	"context"
	"fmt"

	"clenja-agent-go/internal/audit"
	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/orchestrator"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Config holds request defaults for the HTTP surface
type Config struct {
	Country  string
	Currency string
}

// Service exposes the chat orchestrator and its records over HTTP
type Service struct {
	cfg       Config
	chat      *orchestrator.Handler
	providers *provider.Dispatcher
	store     store.StateStore
	audit     *audit.Recorder
}

func NewService(cfg Config, chat *orchestrator.Handler, providers *provider.Dispatcher, st store.StateStore, recorder *audit.Recorder) *Service {
	if cfg.Country == "" {
		cfg.Country = "NG"
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &Service{
		cfg:       cfg,
		chat:      chat,
		providers: providers,
		store:     st,
		audit:     recorder,
	}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Readiness reports whether the selected providers can serve requests
func (s *Service) Readiness() models.Readiness {
	return models.Readiness{
		Ready:      s.providers.Ready(),
		WalletMode: string(s.providers.WalletMode()),
		Backends:   s.providers.Health(),
	}
}

// GetReceipts returns the newest receipts of a user
func (s *Service) GetReceipts(ctx context.Context, userId string, limit int) ([]models.Receipt, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", orchestrator.ErrInvalidRequest)
	}

	receipts, err := s.store.ListReceipts(ctx, userId, clampLimit(limit))
	if err != nil {
		zap.L().Error("Failed to list receipts", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve receipts")
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	return receipts, nil
}

func (s *Service) GetBeneficiaries(ctx context.Context, userId string) ([]models.Beneficiary, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", orchestrator.ErrInvalidRequest)
	}

	beneficiaries, err := s.store.ListBeneficiaries(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to list beneficiaries", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve beneficiaries")
	}
	if beneficiaries == nil {
		beneficiaries = []models.Beneficiary{}
	}
	return beneficiaries, nil
}

// GetAuditEvents lists audit events; an empty userId lists every user
func (s *Service) GetAuditEvents(ctx context.Context, userId string, limit int) ([]models.AuditEvent, error) {
	events, err := s.audit.List(ctx, userId, clampLimit(limit))
	if err != nil {
		zap.L().Error("Failed to list audit events", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve audit events")
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, nil
}

// GetPayoutStatus returns the stored state of a cashout order
func (s *Service) GetPayoutStatus(ctx context.Context, payoutId string) (*models.PayoutState, error) {
	order, err := s.store.GetCashoutOrder(ctx, payoutId)
	if err != nil {
		return nil, err
	}
	return &models.PayoutState{
		PayoutId:  order.PayoutId,
		Status:    order.Status,
		UpdatedAt: order.UpdatedAt,
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
