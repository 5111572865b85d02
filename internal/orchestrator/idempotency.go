package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Once runs fn at most once per (action, key). A retry with the same key
// and payload gets the stored response bytes back; a different payload is
// rejected. Without a key fn simply runs.
func (h *Handler) Once(ctx context.Context, action, key string, request any, fn func(context.Context) (any, error)) ([]byte, bool, error) {
	if key == "" {
		result, err := fn(ctx)
		if err != nil {
			return nil, false, err
		}
		body, err := json.Marshal(result)
		return body, false, err
	}

	hash, err := requestHash(request)
	if err != nil {
		return nil, false, err
	}

	reservation, err := h.store.ReserveIdempotency(ctx, action, key, hash)
	if err != nil {
		return nil, false, err
	}
	if reservation.Replay {
		return reservation.Response, true, nil
	}

	result, err := fn(ctx)
	if err == nil {
		var body []byte
		body, err = json.Marshal(result)
		if err == nil {
			err = h.store.CompleteIdempotency(ctx, action, key, body)
		}
		if err == nil {
			return body, false, nil
		}
		h.holdIdempotency(action, key, err)
		return nil, false, err
	}

	var executed *ExecutedError
	if errors.As(err, &executed) {
		h.holdIdempotency(action, key, err)
		return nil, false, err
	}

	// The key stays retryable when nothing definitive happened.
	if releaseErr := h.store.ReleaseIdempotency(context.WithoutCancel(ctx), action, key); releaseErr != nil {
		zap.L().Error("Failed to release idempotency key",
			zap.String("action", action),
			zap.String("key", key),
			zap.Error(releaseErr))
	}
	return nil, false, err
}

// holdIdempotency leaves the key reserved after the action took effect, so
// retries are refused as in progress instead of executing again.
func (h *Handler) holdIdempotency(action, key string, err error) {
	zap.L().Error("Action executed but response not stored, holding idempotency key",
		zap.String("action", action),
		zap.String("key", key),
		zap.Error(err))
}

func requestHash(request any) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
