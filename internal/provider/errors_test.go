package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("prime", "balance", nil))

	timeout := Classify("prime", "balance", fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.Equal(t, CategoryTimeout, timeout.Category)

	pe := NewError("prime", "execute_send", CategoryReverted, errors.New("out of gas"))
	assert.Same(t, pe, Classify("other", "op", fmt.Errorf("wrapped: %w", pe)))

	assert.Equal(t, CategoryUpstream, Classify("prime", "balance", errors.New("boom")).Category)
}

func TestCategoryForStatus(t *testing.T) {
	tests := map[int]Category{
		http.StatusUnauthorized:        CategoryUnauthorized,
		http.StatusForbidden:           CategoryUnauthorized,
		http.StatusPaymentRequired:     CategoryInsufficientFunds,
		http.StatusGone:                CategoryQuoteExpired,
		http.StatusBadRequest:          CategoryInvalidRequest,
		http.StatusGatewayTimeout:      CategoryTimeout,
		http.StatusInternalServerError: CategoryUpstream,
	}
	for status, want := range tests {
		assert.Equal(t, want, CategoryForStatus(status), status)
	}
}

func TestUserMessage(t *testing.T) {
	msg := UserMessage(NewError("live", "quote", CategoryQuoteExpired, nil), "Cashout")
	assert.Equal(t, "Cashout quote expired. Please request a fresh quote and confirm again.", msg)

	msg = UserMessage(errors.New("anything"), "Wallet")
	assert.Equal(t, "Wallet request failed. Please retry.", msg)
}
