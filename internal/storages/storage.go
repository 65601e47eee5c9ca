package storages

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Storage persists the four independent record sets. Every Save replaces the
// whole set and must be atomic: a concurrent Load sees either the old or the
// new set, never a partial one.
type Storage interface {
	LoadUsers() ([]User, error)
	SaveUsers(users []User) error
	LoadPortfolios() ([]Portfolio, error)
	SavePortfolios(portfolios []Portfolio) error
	LoadRates() (RatesCache, error)
	SaveRates(cache RatesCache) error
	LoadHistory() ([]RateRecord, error)
	SaveHistory(history []RateRecord) error
	Close() error
}

type User struct {
	ID               int       `json:"user_id"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"hashed_password"`
	Salt             string    `json:"salt"`
	RegistrationDate time.Time `json:"registration_date"`
}

type Portfolio struct {
	UserID  int                    `json:"user_id"`
	Wallets map[string]WalletEntry `json:"wallets"`
}

type WalletEntry struct {
	Balance decimal.Decimal `json:"balance"`
}

// RatesCache is the persisted rate cache document. Pairs are keyed FROM_TO.
type RatesCache struct {
	Pairs       map[string]RateEntry `json:"pairs"`
	LastRefresh *time.Time           `json:"last_refresh"`
}

type RateEntry struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    string          `json:"source"`
}

// Valid reports whether the entry can be served: a positive rate and a known
// update time.
func (e RateEntry) Valid() bool {
	return e.Rate.IsPositive() && !e.UpdatedAt.IsZero()
}

// UnmarshalJSON never fails. An entry that cannot be read is left zero and so
// is not Valid, which keeps one bad pair from hiding the rest of the document.
func (e *RateEntry) UnmarshalJSON(data []byte) error {
	*e = RateEntry{}
	var raw struct {
		Rate      decimal.Decimal `json:"rate"`
		UpdatedAt string          `json:"updated_at"`
		Source    string          `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	ts, ok := ParseTimestamp(raw.UpdatedAt)
	if !ok {
		return nil
	}
	*e = RateEntry{Rate: raw.Rate, UpdatedAt: ts, Source: raw.Source}
	return nil
}

// ParseTimestamp accepts RFC 3339 and ISO 8601 local times without a zone
// offset, which are read in the local zone.
func ParseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}

type RateRecord struct {
	ID           string            `json:"id"`
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Rate         decimal.Decimal   `json:"rate"`
	Timestamp    time.Time         `json:"timestamp"`
	Source       string            `json:"source"`
	Meta         map[string]string `json:"meta,omitempty"`
}

func EmptyRatesCache() RatesCache {
	return RatesCache{Pairs: make(map[string]RateEntry)}
}
