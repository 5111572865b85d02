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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clenja-agent-go/internal/database"
	"clenja-agent-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendContext struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "challenge.db"),
		MaxOpenConns: 8,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewMachine(db, time.Minute)
}

func TestVerify_OneShot(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "1234", sendContext{To: "0xabc", Amount: "5"})
	require.NoError(t, err)
	assert.Contains(t, ch.Id, "ch_")

	res, err := m.Verify(ctx, ch.Id, " 1234 ")
	require.NoError(t, err)
	assert.True(t, res.Ok)

	var got sendContext
	require.NoError(t, DecodeContext(res.Challenge, &got))
	assert.Equal(t, "0xabc", got.To)

	res, err = m.Verify(ctx, ch.Id, "1234")
	require.NoError(t, err)
	assert.False(t, res.Ok)
	assert.Equal(t, ReasonNotPending, res.Reason)
}

func TestVerify_WrongAnswerStaysPending(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", models.ChallengeCashoutOTP, "123456", nil)
	require.NoError(t, err)

	res, err := m.Verify(ctx, ch.Id, "654321")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidAnswer, res.Reason)

	live, err := m.Live(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, ch.Id, live.Id)

	res, err = m.Verify(ctx, ch.Id, "123456")
	require.NoError(t, err)
	assert.True(t, res.Ok)
}

func TestVerify_ExpiredEvenWithCorrectAnswer(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "beef", nil)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	res, err := m.Verify(ctx, ch.Id, "beef")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, res.Reason)

	// the expiry is persisted
	m.now = time.Now
	res, err = m.Verify(ctx, ch.Id, "beef")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, res.Reason)
}

func TestVerify_NotFound(t *testing.T) {
	m := newTestMachine(t)

	res, err := m.Verify(context.Background(), "ch_missing", "1234")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestCreate_SupersedesPrevious(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "1111", nil)
	require.NoError(t, err)
	second, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "2222", nil)
	require.NoError(t, err)

	res, err := m.Verify(ctx, first.Id, "1111")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, res.Reason)

	res, err = m.Verify(ctx, second.Id, "2222")
	require.NoError(t, err)
	assert.True(t, res.Ok)
}

func TestCancel(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "1234", nil)
	require.NoError(t, err)

	n, err := m.Cancel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	live, err := m.Live(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, live)

	res, err := m.Verify(ctx, ch.Id, "1234")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, res.Reason)
}

func TestVerify_ConcurrentSingleWinner(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", models.ChallengeNewRecipientLast4, "1234", nil)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Verify(ctx, ch.Id, "1234")
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if res.Ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
