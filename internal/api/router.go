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
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires every HTTP route onto the service
func NewRouter(s *Service) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/readiness", s.handleReadiness).Methods(http.MethodGet)

	v1.HandleFunc("/chat/message", s.handleMessage).Methods(http.MethodPost)
	v1.HandleFunc("/chat/confirm", s.handleConfirm).Methods(http.MethodPost)
	v1.HandleFunc("/chat/receipts", s.handleReceipts).Methods(http.MethodGet)

	v1.HandleFunc("/beneficiaries", s.handleListBeneficiaries).Methods(http.MethodGet)
	v1.HandleFunc("/beneficiaries", s.handleAddBeneficiary).Methods(http.MethodPost)

	v1.HandleFunc("/offramp/quote", s.handleOfframpQuote).Methods(http.MethodPost)
	v1.HandleFunc("/offramp/create", s.handleOfframpCreate).Methods(http.MethodPost)
	v1.HandleFunc("/offramp/status/{payoutId}", s.handleOfframpStatus).Methods(http.MethodGet)
	v1.HandleFunc("/offramp/deposit", s.handleOfframpDeposit).Methods(http.MethodPost)

	v1.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		zap.L().Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
