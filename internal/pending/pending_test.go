package pending

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

type recipientPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func newTestRegister(t *testing.T) *Register {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "pending.db"),
		MaxOpenConns: 8,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewRegister(db)
}

func TestRegister_SetOverwrites(t *testing.T) {
	r := newTestRegister(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "u1", KindConfirmDeleteRecipient, recipientPayload{Name: "mum"}))
	require.NoError(t, r.Set(ctx, "u1", KindConfirmUpdateRecipient, recipientPayload{Name: "dad", Address: "0x1"}))

	action, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, string(KindConfirmUpdateRecipient), action.Kind)

	var p recipientPayload
	require.NoError(t, Decode(action, &p))
	assert.Equal(t, "dad", p.Name)
}

func TestRegister_TakeConsumes(t *testing.T) {
	r := newTestRegister(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "u1", KindCashoutBankDetails, map[string]string{"amount": "50"}))

	action, err := r.Take(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, action)

	action, err = r.Take(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestRegister_Clear(t *testing.T) {
	r := newTestRegister(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "u1", KindConfirmSwap, map[string]string{"quoteId": "q_1"}))
	require.NoError(t, r.Clear(ctx, "u1"))

	action, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, action)

	// clearing nothing is not an error
	require.NoError(t, r.Clear(ctx, "u2"))
}

func TestRegister_ConcurrentTakeSingleWinner(t *testing.T) {
	r := newTestRegister(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "u1", KindConfirmSwap, map[string]string{"quoteId": "q_1"}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			action, err := r.Take(ctx, "u1")
			if err != nil {
				t.Errorf("take: %v", err)
				return
			}
			if action != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
