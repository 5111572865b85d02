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

package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 300 * time.Second

// Reason explains a failed verification.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonExpired       Reason = "expired"
	ReasonNotPending    Reason = "not_pending"
	ReasonInvalidAnswer Reason = "invalid_answer"
)

// Result is the outcome of Verify. On success Challenge holds the verified
// record, including the context captured at creation.
type Result struct {
	Ok        bool
	Reason    Reason
	Challenge *models.Challenge
}

type Store interface {
	CreateChallenge(ctx context.Context, ch *models.Challenge) (int64, error)
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	GetLiveChallenge(ctx context.Context, userId string, now time.Time) (*models.Challenge, error)
	TransitionChallenge(ctx context.Context, id string, to models.ChallengeStatus) error
	ExpireUserChallenges(ctx context.Context, userId string) (int64, error)
}

// Machine issues one-shot confirmation challenges. A challenge moves
// pending -> verified or pending -> expired and never leaves either state.
type Machine struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewMachine(store Store, ttl time.Duration) *Machine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Machine{store: store, ttl: ttl, now: time.Now}
}

// Create issues a new pending challenge. Any challenge the user still has
// pending is superseded.
func (m *Machine) Create(ctx context.Context, userId string, typ models.ChallengeType, expected string, action any) (*models.Challenge, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode challenge context: %w", err)
	}

	now := m.now().UTC()
	ch := &models.Challenge{
		Id:             "ch_" + uuid.New().String(),
		UserId:         userId,
		Type:           typ,
		ExpectedAnswer: strings.TrimSpace(expected),
		Status:         models.ChallengePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		Context:        payload,
	}

	if _, err := m.store.CreateChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	zap.L().Info("Challenge issued",
		zap.String("user_id", userId),
		zap.String("challenge_id", ch.Id),
		zap.String("type", string(typ)),
		zap.Time("expires_at", ch.ExpiresAt))
	return ch, nil
}

// Verify checks an answer. A wrong answer leaves the challenge pending so the
// user can retry until it expires; a right answer consumes it exactly once.
func (m *Machine) Verify(ctx context.Context, id, answer string) (Result, error) {
	ch, err := m.store.GetChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load challenge: %w", err)
	}

	if ch.Status == models.ChallengePending && m.now().After(ch.ExpiresAt) {
		if err := m.store.TransitionChallenge(ctx, id, models.ChallengeExpired); err != nil && !errors.Is(err, store.ErrChallengeNotPending) {
			return Result{}, fmt.Errorf("expire challenge: %w", err)
		}
		return Result{Reason: ReasonExpired, Challenge: ch}, nil
	}

	switch ch.Status {
	case models.ChallengeExpired:
		return Result{Reason: ReasonExpired, Challenge: ch}, nil
	case models.ChallengePending:
	default:
		return Result{Reason: ReasonNotPending, Challenge: ch}, nil
	}

	if strings.TrimSpace(answer) != ch.ExpectedAnswer {
		zap.L().Info("Challenge answer rejected",
			zap.String("user_id", ch.UserId),
			zap.String("challenge_id", id))
		return Result{Reason: ReasonInvalidAnswer, Challenge: ch}, nil
	}

	err = m.store.TransitionChallenge(ctx, id, models.ChallengeVerified)
	if errors.Is(err, store.ErrChallengeNotPending) || errors.Is(err, store.ErrNotFound) {
		return Result{Reason: ReasonNotPending, Challenge: ch}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("verify challenge: %w", err)
	}

	ch.Status = models.ChallengeVerified
	zap.L().Info("Challenge verified",
		zap.String("user_id", ch.UserId),
		zap.String("challenge_id", id))
	return Result{Ok: true, Challenge: ch}, nil
}

// Live returns the user's newest pending, unexpired challenge, or nil.
func (m *Machine) Live(ctx context.Context, userId string) (*models.Challenge, error) {
	ch, err := m.store.GetLiveChallenge(ctx, userId, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load live challenge: %w", err)
	}
	return ch, nil
}

// Cancel expires every pending challenge of the user.
func (m *Machine) Cancel(ctx context.Context, userId string) (int64, error) {
	n, err := m.store.ExpireUserChallenges(ctx, userId)
	if err != nil {
		return 0, fmt.Errorf("cancel challenges: %w", err)
	}
	return n, nil
}

// DecodeContext unmarshals the context captured when the challenge was issued.
func DecodeContext(ch *models.Challenge, into any) error {
	if len(ch.Context) == 0 {
		return fmt.Errorf("challenge %s has no context", ch.Id)
	}
	if err := json.Unmarshal(ch.Context, into); err != nil {
		return fmt.Errorf("decode challenge context: %w", err)
	}
	return nil
}
