package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/storages/jsonfile"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const alice = 1

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type EngineSuite struct {
	suite.Suite
	now    time.Time
	store  *jsonfile.Storage
	cache  *rates.Cache
	engine *Engine
	hook   *test.Hook
}

func (s *EngineSuite) SetupTest() {
	logger, hook := test.NewNullLogger()
	s.hook = hook
	store, err := jsonfile.NewStorage(s.T().TempDir(), logger)
	s.Require().NoError(err)
	s.store = store
	s.now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.cache = rates.NewCache(store, 300*time.Second, logger,
		rates.WithClock(func() time.Time { return s.now }),
		rates.WithMemoExpiry(time.Millisecond))
	repo := ledger.NewRepository(store, logger)
	u, err := ledger.NewUser("alice", "1234", s.now)
	s.Require().NoError(err)
	s.Require().NoError(repo.InsertUser(u))
	s.Require().Equal(alice, u.ID)
	s.engine = NewEngine(currency.NewBuiltin(), s.cache, repo, "USD", logger)
}

func (s *EngineSuite) putRate(pair, rate string, at time.Time) {
	_, err := s.cache.PutMany(map[string]decimal.Decimal{pair: dec(rate)}, "test", at)
	s.Require().NoError(err)
}

func (s *EngineSuite) seed(code, amount string) {
	_, err := s.engine.Deposit(alice, code, amount)
	s.Require().NoError(err)
}

func (s *EngineSuite) balance(code string) decimal.Decimal {
	p, err := s.engine.Portfolio(alice)
	s.Require().NoError(err)
	w, ok := p.Wallet(code)
	if !ok {
		return decimal.Zero
	}
	return w.Balance()
}

func (s *EngineSuite) assertBalance(code, want string) {
	s.True(dec(want).Equal(s.balance(code)), "%s balance: want %s, got %s", code, want, s.balance(code))
}

func (s *EngineSuite) TestBuy_AliceScenario() {
	s.seed("USD", "1000.00")
	s.putRate("BTC_USD", "60000.0", s.now)

	res, err := s.engine.Buy(context.Background(), alice, "BTC", "0.01", "USD")
	s.Require().NoError(err)

	s.True(dec("60000").Equal(res.Rate))
	s.True(dec("600.00").Equal(res.Total))
	s.True(dec("400.00").Equal(res.BaseBalance))
	s.True(dec("0.01").Equal(res.CurrencyBalance))
	s.True(res.RateFresh)
	s.Equal("BTC", res.Currency)
	s.Equal("USD", res.Base)
	s.NotEmpty(res.ID)

	s.assertBalance("USD", "400.00")
	s.assertBalance("BTC", "0.01")
	s.Equal("OK", s.hook.LastEntry().Data["result"])
	s.Equal("BUY", s.hook.LastEntry().Data["action"])
}

func (s *EngineSuite) TestBuy_StaleRateLeavesWallets() {
	s.seed("USD", "1000.00")
	s.putRate("BTC_USD", "60000.0", s.now.Add(-10*time.Minute))

	_, err := s.engine.Buy(context.Background(), alice, "BTC", "0.01", "USD")
	s.ErrorIs(err, apperrors.ErrRateStale)
	s.assertBalance("USD", "1000.00")
	s.assertBalance("BTC", "0")
}

func (s *EngineSuite) TestTrade_MissingRate() {
	s.seed("USD", "1000")
	for _, dir := range []Direction{Buy, Sell} {
		_, err := s.engine.ExecuteTrade(context.Background(), alice, dir, "ETH", "1", "USD")
		s.ErrorIs(err, apperrors.ErrRateUnavailable)
	}
	s.assertBalance("USD", "1000")
	_, ok := s.mustPortfolio().Wallet("ETH")
	s.False(ok, "failed trade must not persist lazily created wallets")
}

func (s *EngineSuite) TestSell_StaleRate() {
	s.seed("BTC", "1")
	s.putRate("BTC_USD", "60000", s.now.Add(-300*time.Second))

	_, err := s.engine.Sell(context.Background(), alice, "BTC", "0.5", "")
	s.ErrorIs(err, apperrors.ErrRateStale)
	s.assertBalance("BTC", "1")
}

func (s *EngineSuite) TestSell() {
	s.seed("BTC", "0.5")
	s.putRate("BTC_USD", "60000", s.now)

	res, err := s.engine.Sell(context.Background(), alice, "btc", "0.2", "")
	s.Require().NoError(err)
	s.True(dec("12000").Equal(res.Total))
	s.assertBalance("BTC", "0.3")
	s.assertBalance("USD", "12000")
}

func (s *EngineSuite) TestInsufficientFunds() {
	s.seed("USD", "100")
	s.putRate("BTC_USD", "60000", s.now)

	_, err := s.engine.Buy(context.Background(), alice, "BTC", "0.01", "USD")
	s.Require().ErrorIs(err, apperrors.ErrInsufficientFunds)
	var funds *apperrors.InsufficientFundsError
	s.Require().ErrorAs(err, &funds)
	s.True(dec("100").Equal(funds.Available))
	s.True(dec("600").Equal(funds.Required))
	s.Equal("USD", funds.Currency)

	s.assertBalance("USD", "100")
	s.assertBalance("BTC", "0")
	s.Equal(logrus.ErrorLevel, s.hook.LastEntry().Level)
}

func (s *EngineSuite) TestSell_InsufficientFunds() {
	s.putRate("BTC_USD", "60000", s.now)
	_, err := s.engine.Sell(context.Background(), alice, "BTC", "1", "USD")
	var funds *apperrors.InsufficientFundsError
	s.Require().ErrorAs(err, &funds)
	s.Equal("BTC", funds.Currency)
	s.True(funds.Available.IsZero())
}

func (s *EngineSuite) TestValidation() {
	s.putRate("BTC_USD", "60000", s.now)
	cases := []struct {
		code, amount, base string
		want               error
	}{
		{"BTC", "abc", "USD", apperrors.ErrInvalidAmount},
		{"BTC", "0", "USD", apperrors.ErrInvalidAmount},
		{"BTC", "-1", "USD", apperrors.ErrInvalidAmount},
		{"XYZ", "1", "USD", apperrors.ErrCurrencyNotFound},
		{"BTC", "1", "XYZ", apperrors.ErrCurrencyNotFound},
		{"USD", "1", "USD", apperrors.ErrValidation},
	}
	for _, tc := range cases {
		_, err := s.engine.Buy(context.Background(), alice, tc.code, tc.amount, tc.base)
		s.ErrorIs(err, tc.want, "%+v", tc)
	}
	_, err := s.engine.ExecuteTrade(context.Background(), alice, Direction("hold"), "BTC", "1", "USD")
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *EngineSuite) TestRoundTripAtSameRateIsNeutral() {
	s.seed("USD", "1000")
	s.putRate("BTC_USD", "60000", s.now)

	_, err := s.engine.Buy(context.Background(), alice, "BTC", "0.01", "USD")
	s.Require().NoError(err)
	_, err = s.engine.Sell(context.Background(), alice, "BTC", "0.01", "USD")
	s.Require().NoError(err)

	s.assertBalance("USD", "1000")
	s.assertBalance("BTC", "0")
}

// USD_BTC is not the reciprocal of BTC_USD here, so converting back through
// the reverse pair does not restore the starting balance.
func (s *EngineSuite) TestRoundTripAtMismatchedRatesIsNotNeutral() {
	s.seed("USD", "1000")
	s.putRate("BTC_USD", "60000", s.now)
	s.putRate("USD_BTC", "0.0000165", s.now)

	_, err := s.engine.Buy(context.Background(), alice, "BTC", "0.01", "USD")
	s.Require().NoError(err)
	s.assertBalance("USD", "400")

	// Buy back 600 USD paying in BTC at the USD_BTC rate.
	res, err := s.engine.Buy(context.Background(), alice, "USD", "600", "BTC")
	s.Require().NoError(err)
	s.True(dec("0.0099").Equal(res.Total))

	s.assertBalance("USD", "1000")
	s.assertBalance("BTC", "0.0001")
	s.False(s.balance("BTC").IsZero(), "asymmetric rates leave a residue")
}

func (s *EngineSuite) TestGetRate() {
	s.putRate("EUR_USD", "1.08", s.now.Add(-time.Minute))

	q, err := s.engine.GetRate("eur", "usd")
	s.Require().NoError(err)
	s.True(dec("1.08").Equal(q.Rate))

	_, err = s.engine.GetRate("USD", "EUR")
	s.ErrorIs(err, apperrors.ErrRateUnavailable)

	_, err = s.engine.GetRate("USD", "XYZ")
	s.ErrorIs(err, apperrors.ErrCurrencyNotFound)

	q, err = s.engine.GetRate("USD", "USD")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(1).Equal(q.Rate))

	s.now = s.now.Add(10 * time.Minute)
	_, err = s.engine.GetRate("EUR", "USD")
	s.ErrorIs(err, apperrors.ErrRateStale)
}

func (s *EngineSuite) TestDepositWithdraw() {
	bal, err := s.engine.Deposit(alice, "usd", "50")
	s.Require().NoError(err)
	s.True(dec("50").Equal(bal))

	_, err = s.engine.Withdraw(alice, "USD", "80")
	s.ErrorIs(err, apperrors.ErrInsufficientFunds)
	s.assertBalance("USD", "50")

	bal, err = s.engine.Withdraw(alice, "USD", "20")
	s.Require().NoError(err)
	s.True(dec("30").Equal(bal))

	_, err = s.engine.Deposit(alice, "XYZ", "1")
	s.ErrorIs(err, apperrors.ErrCurrencyNotFound)
	_, err = s.engine.Deposit(alice, "USD", "0")
	s.ErrorIs(err, apperrors.ErrInvalidAmount)
}

func (s *EngineSuite) TestUnknownUser() {
	const ghost = 42
	s.putRate("BTC_USD", "60000", s.now)

	_, err := s.engine.Deposit(ghost, "USD", "100")
	s.ErrorIs(err, apperrors.ErrNotFound)
	_, err = s.engine.Withdraw(ghost, "USD", "1")
	s.ErrorIs(err, apperrors.ErrNotFound)
	_, err = s.engine.Buy(context.Background(), ghost, "BTC", "0.01", "USD")
	s.ErrorIs(err, apperrors.ErrNotFound)

	portfolios, err := s.store.LoadPortfolios()
	s.Require().NoError(err)
	s.Empty(portfolios)
}

func (s *EngineSuite) TestPortfolioValue() {
	s.seed("USD", "100")
	s.seed("BTC", "0.5")
	s.seed("EUR", "10")
	s.seed("SOL", "3")
	s.putRate("BTC_USD", "60000", s.now)
	s.putRate("EUR_USD", "1.1", s.now.Add(-time.Hour))

	v, err := s.engine.PortfolioValue(s.mustPortfolio(), "")
	s.Require().NoError(err)
	s.Equal("USD", v.Base)
	s.Require().Len(v.Lines, 4)

	byCode := make(map[string]Line)
	for _, l := range v.Lines {
		byCode[l.Currency] = l
	}
	s.True(dec("30000").Equal(byCode["BTC"].Value))
	s.False(byCode["BTC"].Stale)
	s.True(byCode["EUR"].Stale)
	s.True(dec("11").Equal(byCode["EUR"].Value))
	s.False(byCode["SOL"].Valued)
	s.True(dec("100").Equal(byCode["USD"].Value))
	s.True(dec("30111").Equal(v.Total))

	_, err = s.engine.PortfolioValue(s.mustPortfolio(), "XYZ")
	s.ErrorIs(err, apperrors.ErrCurrencyNotFound)
}

func (s *EngineSuite) TestConcurrentTradesSerialized() {
	s.seed("USD", "1000")
	s.putRate("BTC_USD", "100", s.now)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.engine.Buy(context.Background(), alice, "BTC", "1", "USD")
		}()
	}
	wg.Wait()

	s.assertBalance("USD", "0")
	s.assertBalance("BTC", "10")
}

func (s *EngineSuite) mustPortfolio() *ledger.Portfolio {
	p, err := s.engine.Portfolio(alice)
	s.Require().NoError(err)
	return p
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 0.01 ")
	require.NoError(t, err)
	assert.True(t, dec("0.01").Equal(d))

	for _, bad := range []string{"", "abc", "0", "-5", "1,5"} {
		_, err := ParseAmount(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount, bad)
	}
}
