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

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clenja-agent-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	AddAuditEvent(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, userId string, limit int) ([]models.AuditEvent, error)
}

// Publisher fans audit events out to other systems.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Recorder writes audit events to the store and, when configured, forwards
// them to a publisher. The store write is authoritative; publishing is best
// effort.
type Recorder struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

func NewRecorder(store Store, publisher Publisher) *Recorder {
	return &Recorder{store: store, publisher: publisher, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, userId, action string, status models.AuditStatus, detail map[string]string) error {
	event := &models.AuditEvent{
		Id:     "aud_" + uuid.New().String(),
		Ts:     r.now().UTC(),
		UserId: userId,
		Action: action,
		Status: status,
		Detail: detail,
	}
	if err := r.store.AddAuditEvent(ctx, event); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}

	if r.publisher != nil {
		body, err := json.Marshal(event)
		if err == nil {
			err = r.publisher.Publish(ctx, body)
		}
		if err != nil {
			zap.L().Warn("Failed to publish audit event",
				zap.String("audit_id", event.Id),
				zap.String("action", action),
				zap.Error(err))
		}
	}
	return nil
}

// Ok records a successful action.
func (r *Recorder) Ok(ctx context.Context, userId, action string, detail map[string]string) error {
	return r.Record(ctx, userId, action, models.AuditOk, detail)
}

// Error records a failed action with the error text.
func (r *Recorder) Error(ctx context.Context, userId, action string, cause error, detail map[string]string) error {
	if detail == nil {
		detail = make(map[string]string, 1)
	}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	return r.Record(ctx, userId, action, models.AuditError, detail)
}

func (r *Recorder) List(ctx context.Context, userId string, limit int) ([]models.AuditEvent, error) {
	return r.store.ListAuditEvents(ctx, userId, limit)
}
