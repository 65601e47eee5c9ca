package currency

import (
	"fmt"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
)

type Kind string

const (
	Fiat   Kind = "fiat"
	Crypto Kind = "crypto"
)

// Currency is an immutable catalog entry. Fiat currencies carry the issuing
// country, crypto currencies carry the hashing algorithm and market cap.
type Currency struct {
	Code           string
	Name           string
	Kind           Kind
	IssuingCountry string
	Algorithm      string
	MarketCap      float64
}

func NewFiat(code, name, country string) (Currency, error) {
	if err := validate(code, name); err != nil {
		return Currency{}, err
	}
	return Currency{Code: code, Name: name, Kind: Fiat, IssuingCountry: country}, nil
}

func NewCrypto(code, name, algorithm string, marketCap float64) (Currency, error) {
	if err := validate(code, name); err != nil {
		return Currency{}, err
	}
	if marketCap < 0 {
		return Currency{}, fmt.Errorf("%w: market cap of %s cannot be negative", apperrors.ErrValidation, code)
	}
	return Currency{Code: code, Name: name, Kind: Crypto, Algorithm: algorithm, MarketCap: marketCap}, nil
}

// DisplayInfo renders a one-line description for listings.
func (c Currency) DisplayInfo() string {
	if c.Kind == Crypto {
		mcap := "unknown"
		if c.MarketCap > 0 {
			mcap = fmt.Sprintf("%.2e", c.MarketCap)
		}
		return fmt.Sprintf("[CRYPTO] %s — %s (Algo: %s, MCAP: %s)", c.Code, c.Name, c.Algorithm, mcap)
	}
	return fmt.Sprintf("[FIAT] %s — %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
}

// ValidCode reports whether code is 2 to 5 uppercase ASCII letters.
func ValidCode(code string) bool {
	if len(code) < 2 || len(code) > 5 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Normalize trims and upper-cases a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validate(code, name string) error {
	if !ValidCode(code) {
		return fmt.Errorf("%w: currency code %q must be 2-5 uppercase letters", apperrors.ErrValidation, code)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: currency name cannot be empty", apperrors.ErrValidation)
	}
	return nil
}
