package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInsufficientFundsError(t *testing.T) {
	err := fmt.Errorf("buy BTC: %w", &apperrors.InsufficientFundsError{
		Available: decimal.NewFromInt(100),
		Required:  decimal.NewFromInt(600),
		Currency:  "USD",
	})

	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))

	var funds *apperrors.InsufficientFundsError
	assert.True(t, errors.As(err, &funds))
	assert.Equal(t, "USD", funds.Currency)
	assert.Contains(t, err.Error(), "available 100.00 USD, required 600.00 USD")
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"stale", fmt.Errorf("%w: BTC->USD", apperrors.ErrRateStale), "rate is stale: BTC->USD. Run 'update-rates' to refresh the cache"},
		{"credentials", apperrors.ErrInvalidCredentials, "invalid username or password"},
		{"unknown", errors.New("disk on fire"), "Unexpected error, see logs for details"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.Message(tt.err))
		})
	}
}

func TestUnexpected(t *testing.T) {
	assert.True(t, apperrors.Unexpected(errors.New("disk on fire")))
	assert.False(t, apperrors.Unexpected(apperrors.ErrRateStale))
	assert.False(t, apperrors.Unexpected(nil))
}
