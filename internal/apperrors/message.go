package apperrors

import "errors"

const unexpectedMessage = "Unexpected error, see logs for details"

// Message turns an error into the text shown to a user. Unknown errors get a
// generic message so internals do not leak to the terminal or the API.
func Message(err error) string {
	var funds *InsufficientFundsError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &funds):
		return "Insufficient funds: available " + funds.Available.StringFixed(2) + " " + funds.Currency +
			", required " + funds.Required.StringFixed(2) + " " + funds.Currency
	case errors.Is(err, ErrCurrencyNotFound):
		return err.Error() + ". Use 'help' to see supported currencies"
	case errors.Is(err, ErrRateUnavailable), errors.Is(err, ErrRateStale):
		return err.Error() + ". Run 'update-rates' to refresh the cache"
	case errors.Is(err, ErrAPIRequest):
		return "Failed to reach rate provider: " + err.Error() + ". Try again later"
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrDuplicateCurrency),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConfigMalformed):
		return err.Error()
	default:
		return unexpectedMessage
	}
}

// Unexpected reports whether err has no user facing message and should be
// logged in full.
func Unexpected(err error) bool {
	return err != nil && Message(err) == unexpectedMessage
}
