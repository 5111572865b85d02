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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/orchestrator"
	"clenja-agent-go/internal/provider"
	"clenja-agent-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxBodyBytes           = 64 << 10
	idempotencyKeyHeader   = "Idempotency-Key"
	idempotentReplayHeader = "Idempotent-Replayed"
	rateLimitLimitHeader   = "X-RateLimit-Limit"
	rateLimitRemainHeader  = "X-RateLimit-Remaining"
)

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Reply    string `json:"reply,omitempty"`
}

type quoteRequest struct {
	UserId    string          `json:"userId"`
	FromToken string          `json:"fromToken"`
	Amount    decimal.Decimal `json:"amount"`
	Country   string          `json:"country"`
	Currency  string          `json:"currency"`
}

type depositRequest struct {
	UserId   string `json:"userId"`
	PayoutId string `json:"payoutId"`
	TxRef    string `json:"txRef"`
}

type beneficiaryRequest struct {
	UserId string `json:"userId"`
	models.BankDetails
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Service) handleReadiness(w http.ResponseWriter, r *http.Request) {
	readiness := s.Readiness()
	status := http.StatusOK
	if !readiness.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readiness)
}

func (s *Service) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if !decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = r.Header.Get(idempotencyKeyHeader)

	var failed *models.Reply
	var quota *models.RateLimit
	body, replayed, err := s.chat.Once(r.Context(), "chat.message", req.IdempotencyKey, req, func(ctx context.Context) (any, error) {
		reply, err := s.chat.HandleMessage(ctx, req)
		if reply != nil {
			quota = reply.RateLimit
		}
		if err != nil {
			failed = reply
			return nil, err
		}
		return reply, nil
	})
	setRateLimitHeaders(w, quota)
	if err != nil {
		writeError(w, err, failed)
		return
	}
	writeRaw(w, body, replayed)
}

func (s *Service) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmRequest
	if !decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = r.Header.Get(idempotencyKeyHeader)

	var failed *models.Reply
	var quota *models.RateLimit
	body, replayed, err := s.chat.Once(r.Context(), "chat.confirm", req.IdempotencyKey, req, func(ctx context.Context) (any, error) {
		reply, err := s.chat.Confirm(ctx, req)
		if reply != nil {
			quota = reply.RateLimit
		}
		if err != nil {
			failed = reply
			return nil, err
		}
		return reply, nil
	})
	setRateLimitHeaders(w, quota)
	if err != nil {
		writeError(w, err, failed)
		return
	}
	writeRaw(w, body, replayed)
}

func (s *Service) handleReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.GetReceipts(r.Context(), r.URL.Query().Get("userId"), queryLimit(r))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (s *Service) handleListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	beneficiaries, err := s.GetBeneficiaries(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"beneficiaries": beneficiaries})
}

func (s *Service) handleAddBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req beneficiaryRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserId) == "" {
		writeError(w, fmt.Errorf("%w: userId is required", orchestrator.ErrInvalidRequest), nil)
		return
	}
	beneficiary, err := s.chat.SaveBeneficiary(r.Context(), strings.TrimSpace(req.UserId), req.BankDetails)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"beneficiary": beneficiary})
}

func (s *Service) handleOfframpQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserId == "" || req.FromToken == "" || !req.Amount.IsPositive() {
		writeError(w, fmt.Errorf("%w: userId, fromToken and a positive amount are required", orchestrator.ErrInvalidRequest), nil)
		return
	}
	if req.Country == "" {
		req.Country = s.cfg.Country
	}
	if req.Currency == "" {
		req.Currency = s.cfg.Currency
	}

	quote, err := s.providers.CashoutQuote(r.Context(), models.CashoutQuoteRequest(req))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Service) handleOfframpCreate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.PayoutInput
	if !decode(w, r, &req) {
		return
	}

	body, replayed, err := s.chat.Once(r.Context(), "offramp.create", r.Header.Get(idempotencyKeyHeader), req, func(ctx context.Context) (any, error) {
		return s.chat.CreatePayout(ctx, req)
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeRaw(w, body, replayed)
}

func (s *Service) handleOfframpStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.GetPayoutStatus(r.Context(), mux.Vars(r)["payoutId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) handleOfframpDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := s.chat.NotifyDeposit(r.Context(), req.UserId, req.PayoutId, req.TxRef)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	events, err := s.GetAuditEvents(r.Context(), r.URL.Query().Get("userId"), queryLimit(r))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

// setRateLimitHeaders exposes the quota left after a turn. Replays consume no
// quota and carry no headers.
func setRateLimitHeaders(w http.ResponseWriter, quota *models.RateLimit) {
	if quota == nil {
		return
	}
	w.Header().Set(rateLimitLimitHeader, strconv.Itoa(quota.Limit))
	w.Header().Set(rateLimitRemainHeader, strconv.Itoa(quota.Remaining))
}

func writeRaw(w http.ResponseWriter, body []byte, replayed bool) {
	w.Header().Set("Content-Type", "application/json")
	if replayed {
		w.Header().Set(idempotentReplayHeader, "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeError maps an error to a status. A reply produced alongside the
// error is passed through so chat clients still have text to show.
func writeError(w http.ResponseWriter, err error, reply *models.Reply) {
	body := errorBody{Error: err.Error()}
	if reply != nil {
		body.Reply = reply.Reply
	}

	var (
		limited *orchestrator.RateLimitError
		denied  *orchestrator.DeniedError
		perr    *provider.Error
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.As(err, &limited):
		seconds := int(limited.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if limited.Limit > 0 {
			w.Header().Set(rateLimitLimitHeader, strconv.Itoa(limited.Limit))
		}
		w.Header().Set(rateLimitRemainHeader, "0")
		status = http.StatusTooManyRequests
	case errors.As(err, &denied):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrIdempotencyMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrIdempotencyInProgress):
		status = http.StatusConflict
	case errors.As(err, &perr):
		body.Category = string(perr.Category)
		status = providerStatus(perr.Category)
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func providerStatus(category provider.Category) int {
	switch category {
	case provider.CategoryInvalidRequest:
		return http.StatusBadRequest
	case provider.CategoryInsufficientFunds:
		return http.StatusPaymentRequired
	case provider.CategoryQuoteExpired:
		return http.StatusGone
	case provider.CategoryUnsupported:
		return http.StatusNotImplemented
	case provider.CategoryNotConfigured:
		return http.StatusServiceUnavailable
	case provider.CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
