package ingestion

import (
	"github.com/Krchnk/valutatrade-hub/internal/config"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/sirupsen/logrus"
)

// DefaultProviders builds CoinGecko and ExchangeRate-API for the registry's
// crypto and fiat codes, narrowed to cfg.Rates.Supported when that is set.
func DefaultProviders(cfg config.Config, registry *currency.Registry, logger logrus.FieldLogger) []Provider {
	client := NewClient(cfg.Providers, logger)
	base := cfg.Rates.BaseCurrency
	crypto := trackedCodes(registry, currency.Crypto, cfg.Rates.Supported)
	fiat := trackedCodes(registry, currency.Fiat, cfg.Rates.Supported)

	return []Provider{
		NewCoinGecko(client, cfg.Providers.CoinGeckoURL, base, cfg.Providers.CryptoIDs, crypto),
		NewExchangeRateAPI(client, cfg.Providers.ExchangeRateAPIURL, cfg.Providers.ExchangeRateAPIKey, base, fiat, logger),
	}
}

func trackedCodes(registry *currency.Registry, kind currency.Kind, supported []string) []string {
	allowed := make(map[string]bool, len(supported))
	for _, code := range supported {
		allowed[code] = true
	}
	var codes []string
	for _, c := range registry.List(kind) {
		if len(allowed) == 0 || allowed[c.Code] {
			codes = append(codes, c.Code)
		}
	}
	return codes
}
