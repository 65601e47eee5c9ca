package currency

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
)

// Registry is the catalog of supported currencies. It is filled once at start
// up and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]Currency
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry holding the built-in currencies.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewBuiltin()
	})
	return defaultRegistry
}

func NewRegistry() *Registry {
	return &Registry{currencies: make(map[string]Currency)}
}

// NewBuiltin returns a fresh registry with the built-in fiat and crypto set.
func NewBuiltin() *Registry {
	r := NewRegistry()
	for _, c := range builtin() {
		// the built-in set is static and has no duplicates
		_ = r.Register(c)
	}
	return r
}

func (r *Registry) Get(code string) (Currency, error) {
	code = Normalize(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.currencies[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: '%s'", apperrors.ErrCurrencyNotFound, code)
	}
	return c, nil
}

func (r *Registry) Has(code string) bool {
	_, err := r.Get(code)
	return err == nil
}

// Codes returns every registered code, sorted.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.currencies))
	for code := range r.currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// List returns the currencies of one kind sorted by code.
func (r *Registry) List(kind Kind) []Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Currency
	for _, c := range r.currencies {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *Registry) Register(c Currency) error {
	if !ValidCode(c.Code) {
		return fmt.Errorf("%w: currency code %q must be 2-5 uppercase letters", apperrors.ErrValidation, c.Code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.currencies[c.Code]; exists {
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateCurrency, c.Code)
	}
	r.currencies[c.Code] = c
	return nil
}

func builtin() []Currency {
	return []Currency{
		{Code: "USD", Name: "US Dollar", Kind: Fiat, IssuingCountry: "United States"},
		{Code: "EUR", Name: "Euro", Kind: Fiat, IssuingCountry: "Eurozone"},
		{Code: "GBP", Name: "British Pound", Kind: Fiat, IssuingCountry: "United Kingdom"},
		{Code: "RUB", Name: "Russian Ruble", Kind: Fiat, IssuingCountry: "Russia"},
		{Code: "JPY", Name: "Japanese Yen", Kind: Fiat, IssuingCountry: "Japan"},
		{Code: "CNY", Name: "Chinese Yuan", Kind: Fiat, IssuingCountry: "China"},
		{Code: "BTC", Name: "Bitcoin", Kind: Crypto, Algorithm: "SHA-256", MarketCap: 1.12e12},
		{Code: "ETH", Name: "Ethereum", Kind: Crypto, Algorithm: "Ethash", MarketCap: 4.5e11},
		{Code: "SOL", Name: "Solana", Kind: Crypto, Algorithm: "Proof of History", MarketCap: 6.8e10},
		{Code: "ADA", Name: "Cardano", Kind: Crypto, Algorithm: "Ouroboros", MarketCap: 2.3e10},
		{Code: "DOT", Name: "Polkadot", Kind: Crypto, Algorithm: "Nominated Proof-of-Stake", MarketCap: 1.2e10},
	}
}
