package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Provider fetches a normalized FROM_TO -> rate mapping from one source.
type Provider interface {
	Name() string
	FetchRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// CoinGecko quotes crypto currencies against the base currency. It needs no
// credential.
type CoinGecko struct {
	client *Client
	url    string
	base   string
	ids    map[string]string
	codes  []string
}

// NewCoinGecko tracks codes, each resolved to a gecko id through ids. Codes
// without an id are ignored.
func NewCoinGecko(client *Client, endpoint, base string, ids map[string]string, codes []string) *CoinGecko {
	norm := make(map[string]string, len(ids))
	for code, id := range ids {
		norm[strings.ToUpper(code)] = id
	}
	return &CoinGecko{client: client, url: endpoint, base: strings.ToUpper(base), ids: norm, codes: codes}
}

func (p *CoinGecko) Name() string { return "coingecko" }

func (p *CoinGecko) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	tracked := make(map[string]string)
	var ids []string
	for _, code := range p.codes {
		if id, ok := p.ids[code]; ok {
			tracked[code] = id
			ids = append(ids, id)
		}
	}
	rates := make(map[string]decimal.Decimal)
	if len(ids) == 0 {
		return rates, nil
	}
	sort.Strings(ids)

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", strings.ToLower(p.base))

	var payload any
	if err := p.client.GetJSON(ctx, p.url, query, &payload); err != nil {
		return nil, err
	}

	vs := strings.ToLower(p.base)
	for code, id := range tracked {
		raw, err := jsonpath.Get(fmt.Sprintf("$[%q][%q]", id, vs), payload)
		if err != nil {
			continue
		}
		rate, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: coingecko %s: %v", apperrors.ErrAPIRequest, id, err)
		}
		rates[code+"_"+p.base] = rate
	}
	return rates, nil
}

// ExchangeRateAPI quotes fiat currencies against the base currency. The
// upstream returns units of X per one base, so every value is inverted.
type ExchangeRateAPI struct {
	client *Client
	url    string
	key    string
	base   string
	codes  []string
	logger logrus.FieldLogger
}

func NewExchangeRateAPI(client *Client, endpoint, key, base string, codes []string, logger logrus.FieldLogger) *ExchangeRateAPI {
	return &ExchangeRateAPI{
		client: client,
		url:    strings.TrimRight(endpoint, "/"),
		key:    key,
		base:   strings.ToUpper(base),
		codes:  codes,
		logger: logger,
	}
}

func (p *ExchangeRateAPI) Name() string { return "exchangerate" }

type exchangeRateResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

func (p *ExchangeRateAPI) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	if p.key == "" {
		p.logger.Warn("EXCHANGERATE_API_KEY is not set, skipping fiat rates")
		return rates, nil
	}

	endpoint := fmt.Sprintf("%s/%s/latest/%s", p.url, url.PathEscape(p.key), p.base)
	var resp exchangeRateResponse
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		errType := resp.ErrorType
		if errType == "" {
			errType = "unknown_error"
		}
		return nil, fmt.Errorf("%w: exchangerate-api error: %s", apperrors.ErrAPIRequest, errType)
	}

	one := decimal.NewFromInt(1)
	for _, code := range p.codes {
		if code == p.base {
			continue
		}
		conv, ok := resp.ConversionRates[code]
		if !ok || !conv.IsPositive() {
			continue
		}
		rates[code+"_"+p.base] = one.Div(conv)
	}
	return rates, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected value %v", v)
	}
}
