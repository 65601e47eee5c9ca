package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/accounts"
	"github.com/Krchnk/valutatrade-hub/internal/cli"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/ingestion"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/scheduler"
	"github.com/Krchnk/valutatrade-hub/internal/storages/jsonfile"
	"github.com/Krchnk/valutatrade-hub/internal/trading"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type staticProvider struct{}

func (staticProvider) Name() string { return "static" }

func (staticProvider) FetchRates(context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{"BTC_USD": decimal.NewFromInt(60000)}, nil
}

type ShellSuite struct {
	suite.Suite
	deps cli.Deps
	app  *cli.App
	out  *bytes.Buffer
	now  time.Time
}

func (s *ShellSuite) SetupTest() {
	logger, _ := test.NewNullLogger()
	store, err := jsonfile.NewStorage(s.T().TempDir(), logger)
	s.Require().NoError(err)

	s.now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	registry := currency.NewBuiltin()
	repo := ledger.NewRepository(store, logger)
	cache := rates.NewCache(store, 5*time.Minute, logger, rates.WithClock(func() time.Time { return s.now }))
	history := rates.NewHistory(store, rates.DefaultHistoryLimit, logger)
	updater := ingestion.NewUpdater(cache, history, registry, []ingestion.Provider{staticProvider{}}, logger)
	sched := scheduler.New(updater.Refresh, time.Hour, logger)

	s.deps = cli.Deps{
		Accounts:  accounts.NewService(repo, logger),
		Engine:    trading.NewEngine(registry, cache, repo, "USD", logger),
		Cache:     cache,
		Updater:   updater,
		Scheduler: sched,
		Registry:  registry,
	}
	s.out = &bytes.Buffer{}
	s.app = cli.New(s.deps, s.out, s.out, logger, cli.WithPlainOutput())
}

func (s *ShellSuite) TearDownTest() {
	s.deps.Scheduler.Stop()
}

func (s *ShellSuite) run(line string) string {
	s.out.Reset()
	s.app.Execute(context.Background(), line)
	return s.out.String()
}

func (s *ShellSuite) loginAlice() {
	s.Contains(s.run("register --username alice --password 1234"), "User 'alice' registered (id=1)")
	s.Contains(s.run("login --username alice --password 1234"), "Logged in as 'alice'")
}

func (s *ShellSuite) TestTradeFlow() {
	s.loginAlice()
	s.Contains(s.run("update-rates"), "Updated 1 rates from static")
	s.Contains(s.run("deposit --currency usd --amount 1000"), "Balance: 1000.0000 USD")

	out := s.run("buy --currency BTC --amount 0.01")
	s.Contains(out, "Bought 0.0100 BTC at 60000.000000 USD/BTC")
	s.Contains(out, "600.00")
	s.Contains(out, "Balances: BTC 0.0100, USD 400.0000")

	out = s.run("show-portfolio")
	s.Contains(out, "Portfolio of 'alice' (base: USD)")
	s.Contains(out, "| BTC | 0.0100 |")
	s.Contains(out, "TOTAL: $1,000.00")

	out = s.run("sell --currency BTC --amount 1")
	s.Contains(out, "Error: Insufficient funds: available 0.01 BTC, required 1.00 BTC")
}

func (s *ShellSuite) TestEmptyPortfolio() {
	s.loginAlice()
	s.Contains(s.run("show-portfolio"), "is empty")
}

func (s *ShellSuite) TestLoginRequired() {
	for _, line := range []string{"show-portfolio", "buy --currency BTC --amount 1", "deposit --currency USD --amount 1", "whoami"} {
		s.Contains(s.run(line), "not logged in", line)
	}
}

func (s *ShellSuite) TestLogout() {
	s.loginAlice()
	s.Contains(s.run("whoami"), "alice (id=1")
	s.Contains(s.run("logout"), "Logged out 'alice'")
	s.Nil(s.app.CurrentUser())
	s.Contains(s.run("whoami"), "not logged in")
}

func (s *ShellSuite) TestWrongPassword() {
	s.loginAlice()
	s.run("logout")
	s.Contains(s.run("login --username alice --password nope"), "Error: invalid username or password")
	s.Nil(s.app.CurrentUser())
}

func (s *ShellSuite) TestChangePassword() {
	s.loginAlice()
	s.Contains(s.run("change-password --old nope --new abcd"), "invalid username or password")
	s.Contains(s.run("change-password --old 1234 --new ab"), "Error:")
	s.Contains(s.run("change-password --old 1234 --new abcd"), "Password changed")
	s.run("logout")
	s.Contains(s.run("login --username alice --password abcd"), "Logged in as 'alice'")
}

func (s *ShellSuite) TestMissingFlag() {
	s.loginAlice()
	s.Contains(s.run("buy --amount 1"), "--currency is required")
}

func (s *ShellSuite) TestUnknownCommand() {
	s.out.Reset()
	status := s.app.Execute(context.Background(), "frobnicate")
	s.Equal(subcommands.ExitUsageError, status)
	s.Contains(s.out.String(), "Unknown command 'frobnicate'")
}

func (s *ShellSuite) TestBlankLine() {
	s.Equal(subcommands.ExitSuccess, s.app.Execute(context.Background(), "   "))
}

func (s *ShellSuite) TestShowRates() {
	s.Contains(s.run("show-rates"), "Rates cache is empty")

	s.run("update-rates")
	out := s.run("show-rates")
	s.Contains(out, "| BTC_USD | 60000.000000 |")
	s.Contains(out, "fresh")

	s.Contains(s.run("show-rates --currency ETH"), "No cached rate for ETH→USD")
	s.Contains(s.run("show-rates --base EUR"), "No cached rates against EUR")
	s.Contains(s.run("show-rates --top -1"), "must not be negative")
}

func (s *ShellSuite) TestShowRatesTop() {
	_, err := s.deps.Cache.PutMany(map[string]decimal.Decimal{
		"BTC_USD": decimal.NewFromInt(60000),
		"ETH_USD": decimal.NewFromInt(3700),
		"EUR_USD": decimal.RequireFromString("1.08"),
	}, "test", s.now)
	s.Require().NoError(err)

	out := s.run("show-rates --top 2")
	s.Contains(out, "BTC_USD")
	s.Contains(out, "ETH_USD")
	s.NotContains(out, "EUR_USD")
	s.Less(strings.Index(out, "BTC_USD"), strings.Index(out, "ETH_USD"))
}

func (s *ShellSuite) TestGetRate() {
	s.run("update-rates")
	out := s.run("get-rate --from btc --to usd")
	s.Contains(out, "Rate BTC→USD: 60000.000000")
	s.Contains(out, "Inverse USD→BTC: 0.000017")

	s.Contains(s.run("get-rate --from USD --to USD"), "Rate USD→USD: 1.000000")
	s.Contains(s.run("get-rate --from XYZ --to USD"), "currency not found")
	s.Contains(s.run("get-rate --from ETH --to USD"), "update-rates")
}

func (s *ShellSuite) TestGetRateStale() {
	s.run("update-rates")
	s.now = s.now.Add(10 * time.Minute)
	out := s.run("get-rate --from BTC --to USD")
	s.Contains(out, "rate is stale")
	s.Contains(out, "update-rates")
}

func (s *ShellSuite) TestUpdateRatesUnknownSource() {
	s.Contains(s.run("update-rates --source bogus"), "unknown source 'bogus', available: static")
}

func (s *ShellSuite) TestCurrencies() {
	out := s.run("currencies")
	s.Contains(out, "USD")
	s.Contains(out, "BTC")
}

func (s *ShellSuite) TestScheduler() {
	s.Contains(s.run("scheduler-status"), "stopped")
	s.Contains(s.run("scheduler-start"), "Scheduler started, refreshing every 1h0m0s")
	s.Contains(s.run("scheduler-start"), "already running")
	s.Contains(s.run("scheduler-status"), "running (interval: 1h0m0s)")
	s.Contains(s.run("scheduler-stop"), "Scheduler stopped")
	s.Contains(s.run("scheduler-stop"), "not running")
}

func (s *ShellSuite) TestRun() {
	in := strings.NewReader("scheduler-start\nexit\nwhoami\n")
	s.Require().NoError(s.app.Run(context.Background(), in))
	s.True(s.app.Quit())
	s.False(s.deps.Scheduler.Running())
	out := s.out.String()
	s.Contains(out, "Welcome")
	s.Contains(out, "Bye")
	s.NotContains(out, "not logged in")
}

func (s *ShellSuite) TestRenderedTables() {
	var out bytes.Buffer
	logger, _ := test.NewNullLogger()
	app := cli.New(s.deps, &out, &out, logger)
	app.Execute(context.Background(), "update-rates")
	app.Execute(context.Background(), "show-rates")
	s.Contains(out.String(), "BTC_USD")
}

func TestShell_CommandPanicKeepsLoop(t *testing.T) {
	var out bytes.Buffer
	logger, hook := test.NewNullLogger()
	app := cli.New(cli.Deps{Registry: currency.NewBuiltin()}, &out, &out, logger, cli.WithPlainOutput())

	in := strings.NewReader("show-rates\ncurrencies\nexit\n")
	require.NoError(t, app.Run(context.Background(), in))

	assert.Contains(t, out.String(), "Error: Unexpected error, see logs for details")
	assert.Contains(t, out.String(), "BTC")
	assert.Contains(t, out.String(), "Bye")
	require.NotNil(t, hook.LastEntry())
	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "command panicked" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestShellSuite(t *testing.T) {
	suite.Run(t, new(ShellSuite))
}
