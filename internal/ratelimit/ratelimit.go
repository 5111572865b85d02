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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 20
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most a fixed number of turns per key per window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Memory is a fixed-window limiter local to the process.
type Memory struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

var _ Limiter = (*Memory)(nil)

func NewMemory(window time.Duration, max int) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Memory{window: window, max: max, now: time.Now, buckets: make(map[string]*bucket)}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.resetAt) {
		if len(m.buckets) > 10_000 {
			m.prune(now)
		}
		m.buckets[key] = &bucket{count: 1, resetAt: now.Add(m.window)}
		return Decision{Allowed: true, Limit: m.max, Remaining: m.max - 1}, nil
	}

	if b.count >= m.max {
		return Decision{Allowed: false, Limit: m.max, RetryAfter: b.resetAt.Sub(now)}, nil
	}
	b.count++
	return Decision{Allowed: true, Limit: m.max, Remaining: m.max - b.count}, nil
}

func (m *Memory) prune(now time.Time) {
	for k, b := range m.buckets {
		if now.After(b.resetAt) {
			delete(m.buckets, k)
		}
	}
}
