package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

var (
	ErrCurrencyNotFound   = errors.New("currency not found")
	ErrDuplicateCurrency  = errors.New("currency already registered")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrRateUnavailable    = errors.New("rate unavailable")
	ErrRateStale          = errors.New("rate is stale")
	ErrAPIRequest         = errors.New("api request failed")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrConfigMalformed    = errors.New("config file is malformed")
)

// InsufficientFundsError reports a debit that would take a wallet below zero.
// It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, required %s %s",
		e.Available.StringFixed(2), e.Currency, e.Required.StringFixed(2), e.Currency)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
