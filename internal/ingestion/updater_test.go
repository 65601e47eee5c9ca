package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/scheduler"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/Krchnk/valutatrade-hub/internal/storages/jsonfile"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx)
	rates, _ := args.Get(0).(map[string]decimal.Decimal)
	return rates, args.Error(1)
}

type updaterFixture struct {
	updater *Updater
	store   *jsonfile.Storage
	cache   *rates.Cache
}

func newUpdater(t *testing.T, providers ...Provider) updaterFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := jsonfile.NewStorage(t.TempDir(), logger)
	require.NoError(t, err)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	cache := rates.NewCache(store, time.Minute, logger, rates.WithClock(func() time.Time { return now }))
	history := rates.NewHistory(store, rates.DefaultHistoryLimit, logger)
	return updaterFixture{
		updater: NewUpdater(cache, history, currency.NewBuiltin(), providers, logger),
		store:   store,
		cache:   cache,
	}
}

func rateMap(kv ...any) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i].(string)] = decimal.RequireFromString(kv[i+1].(string))
	}
	return out
}

func TestUpdater_MergesProviders(t *testing.T) {
	crypto := &mockProvider{name: "coingecko"}
	crypto.On("FetchRates", mock.Anything).Return(rateMap("BTC_USD", "60000", "EUR_USD", "1.00"), nil)
	fiat := &mockProvider{name: "exchangerate"}
	fiat.On("FetchRates", mock.Anything).Return(rateMap("EUR_USD", "1.08"), nil)

	f := newUpdater(t, crypto, fiat)
	res, err := f.updater.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"coingecko", "exchangerate"}, res.Sources)
	assert.Equal(t, 2, res.Written)
	assert.Empty(t, res.Failed)

	q, ok, err := f.cache.Get("EUR", "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1.08").Equal(q.Rate), "last provider wins")
	assert.Equal(t, "coingecko,exchangerate", q.Source)

	history, err := f.store.LoadHistory()
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for _, r := range history {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Meta["request_timestamp"])
	}
	crypto.AssertExpectations(t)
	fiat.AssertExpectations(t)
}

func TestUpdater_ProviderFailureIsolated(t *testing.T) {
	broken := &mockProvider{name: "coingecko"}
	broken.On("FetchRates", mock.Anything).Return(nil, apperrors.ErrAPIRequest)
	fiat := &mockProvider{name: "exchangerate"}
	fiat.On("FetchRates", mock.Anything).Return(rateMap("EUR_USD", "1.08"), nil)

	f := newUpdater(t, broken, fiat)
	res, err := f.updater.Run(context.Background(), "")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Failed["coingecko"], apperrors.ErrAPIRequest)
	assert.Equal(t, []string{"exchangerate"}, res.Sources)
}

func TestUpdater_NoRates(t *testing.T) {
	broken := &mockProvider{name: "coingecko"}
	broken.On("FetchRates", mock.Anything).Return(nil, errors.New("down"))
	empty := &mockProvider{name: "exchangerate"}
	empty.On("FetchRates", mock.Anything).Return(map[string]decimal.Decimal{}, nil)

	f := newUpdater(t, broken, empty)
	_, err := f.updater.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRates)

	doc, err := f.store.LoadRates()
	require.NoError(t, err)
	assert.Nil(t, doc.LastRefresh, "cache not written")
}

func TestUpdater_DropsUnknownCurrencies(t *testing.T) {
	p := &mockProvider{name: "coingecko"}
	p.On("FetchRates", mock.Anything).Return(rateMap("DOGE_USD", "0.1", "BTC_USD", "60000"), nil)

	f := newUpdater(t, p)
	res, err := f.updater.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, res.Rates, 1)
	_, ok := res.Rates["DOGE_USD"]
	assert.False(t, ok)
}

func TestUpdater_SourceFilter(t *testing.T) {
	crypto := &mockProvider{name: "coingecko"}
	fiat := &mockProvider{name: "exchangerate"}
	fiat.On("FetchRates", mock.Anything).Return(rateMap("EUR_USD", "1.08"), nil)

	f := newUpdater(t, crypto, fiat)
	res, err := f.updater.Run(context.Background(), "ExchangeRate")
	require.NoError(t, err)
	assert.Equal(t, []string{"exchangerate"}, res.Sources)
	crypto.AssertNotCalled(t, "FetchRates", mock.Anything)

	_, err = f.updater.Run(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestUpdater_ProviderNames(t *testing.T) {
	f := newUpdater(t, &mockProvider{name: "a"}, &mockProvider{name: "b"})
	assert.Equal(t, []string{"a", "b"}, f.updater.ProviderNames())
}

type historyFailingStore struct {
	*jsonfile.Storage
}

func (historyFailingStore) SaveHistory([]storages.RateRecord) error {
	return errors.New("disk full")
}

func TestUpdater_HistoryFailureDoesNotBlockCache(t *testing.T) {
	logger, _ := test.NewNullLogger()
	base, err := jsonfile.NewStorage(t.TempDir(), logger)
	require.NoError(t, err)
	store := historyFailingStore{Storage: base}
	cache := rates.NewCache(store, time.Minute, logger)
	history := rates.NewHistory(store, rates.DefaultHistoryLimit, logger)

	p := &mockProvider{name: "coingecko"}
	p.On("FetchRates", mock.Anything).Return(rateMap("BTC_USD", "60000"), nil)
	u := NewUpdater(cache, history, currency.NewBuiltin(), []Provider{p}, logger)

	res, err := u.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	q, ok, err := cache.Get("BTC", "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(60000).Equal(q.Rate))

	records, err := base.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpdater_RefreshWithoutRates(t *testing.T) {
	empty := &mockProvider{name: "coingecko"}
	empty.On("FetchRates", mock.Anything).Return(map[string]decimal.Decimal{}, nil)

	f := newUpdater(t, empty)
	assert.NoError(t, f.updater.Refresh(context.Background()))
}

func TestUpdater_RefreshKeepsSchedulerInterval(t *testing.T) {
	var calls atomic.Int32
	empty := &mockProvider{name: "coingecko"}
	empty.On("FetchRates", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(map[string]decimal.Decimal{}, nil)
	f := newUpdater(t, empty)

	logger, _ := test.NewNullLogger()
	sched := scheduler.New(f.updater.Refresh, time.Hour, logger)
	sched.SetCooldown(10 * time.Millisecond)
	require.True(t, sched.Start())
	defer sched.Stop()

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
