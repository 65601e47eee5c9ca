package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/trading"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type showPortfolioCmd struct {
	app  *App
	base string
}

func (*showPortfolioCmd) Name() string     { return "show-portfolio" }
func (*showPortfolioCmd) Synopsis() string { return "list wallets and their value" }
func (*showPortfolioCmd) Usage() string {
	return "show-portfolio [--base <code>]\n"
}

func (c *showPortfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.base, "base", "", "valuation currency, defaults to the configured base")
}

func (c *showPortfolioCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.run())
}

func (c *showPortfolioCmd) run() error {
	u, err := c.app.requireUser()
	if err != nil {
		return err
	}
	p, err := c.app.engine.Portfolio(u.ID)
	if err != nil {
		return err
	}
	v, err := c.app.engine.PortfolioValue(p, c.base)
	if err != nil {
		return err
	}
	if len(v.Lines) == 0 {
		fmt.Fprintf(c.app.out, "Portfolio of '%s' is empty. Use 'deposit' to add funds.\n", u.Username)
		return nil
	}

	fmt.Fprintf(c.app.out, "Portfolio of '%s' (base: %s)\n", u.Username, v.Base)
	t := newTable("Currency", "Balance", "Rate", "Value in "+v.Base)
	var stale, missing []string
	for _, l := range v.Lines {
		rate, value := "n/a", "n/a"
		if l.Valued {
			rate = formatRate(l.Rate)
			value = c.app.formatValue(l.Value, v.Base)
		} else {
			missing = append(missing, l.Currency)
		}
		if l.Stale {
			stale = append(stale, l.Currency)
		}
		t.add(l.Currency, formatQty(l.Balance), rate, value)
	}
	c.app.printMarkdown(t.markdown())
	fmt.Fprintf(c.app.out, "TOTAL: %s\n", c.app.formatValue(v.Total, v.Base))
	if len(stale) > 0 {
		fmt.Fprintf(c.app.out, "Note: rates for %s are stale. Run 'update-rates' to refresh.\n", strings.Join(stale, ", "))
	}
	if len(missing) > 0 {
		fmt.Fprintf(c.app.out, "Note: no rate to %s for %s, left out of the total.\n", v.Base, strings.Join(missing, ", "))
	}
	return nil
}

// tradeFlags are shared by buy and sell.
type tradeFlags struct {
	currency string
	amount   string
	base     string
}

func (t *tradeFlags) set(f *flag.FlagSet) {
	f.StringVar(&t.currency, "currency", "", "currency code to trade")
	f.StringVar(&t.amount, "amount", "", "amount of --currency, must be positive")
	f.StringVar(&t.base, "base", "", "currency paid or received, defaults to the configured base")
}

func (t *tradeFlags) check() error {
	if err := required("currency", t.currency); err != nil {
		return err
	}
	return required("amount", t.amount)
}

type buyCmd struct {
	app *App
	tradeFlags
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "buy a currency with the base currency" }
func (*buyCmd) Usage() string {
	return "buy --currency <code> --amount <amount> [--base <code>]\n"
}
func (c *buyCmd) SetFlags(f *flag.FlagSet) { c.set(f) }

func (c *buyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.app.trade(ctx, trading.Buy, c.tradeFlags))
}

type sellCmd struct {
	app *App
	tradeFlags
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "sell a currency for the base currency" }
func (*sellCmd) Usage() string {
	return "sell --currency <code> --amount <amount> [--base <code>]\n"
}
func (c *sellCmd) SetFlags(f *flag.FlagSet) { c.set(f) }

func (c *sellCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.app.trade(ctx, trading.Sell, c.tradeFlags))
}

func (a *App) trade(ctx context.Context, dir trading.Direction, tf tradeFlags) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	if err := tf.check(); err != nil {
		return err
	}
	res, err := a.engine.ExecuteTrade(ctx, u.ID, dir, tf.currency, tf.amount, tf.base)
	if err != nil {
		return err
	}

	verb, label := "Bought", "Cost"
	if dir == trading.Sell {
		verb, label = "Sold", "Proceeds"
	}
	fmt.Fprintf(a.out, "%s %s %s at %s %s/%s. %s: %s\n",
		verb, formatQty(res.Amount), res.Currency,
		formatRate(res.Rate), res.Base, res.Currency,
		label, a.formatValue(res.Total, res.Base))
	fmt.Fprintf(a.out, "Balances: %s %s, %s %s\n",
		res.Currency, formatQty(res.CurrencyBalance),
		res.Base, formatQty(res.BaseBalance))
	return nil
}

type depositCmd struct {
	app      *App
	currency string
	amount   string
}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "add funds to a wallet" }
func (*depositCmd) Usage() string {
	return "deposit --currency <code> --amount <amount>\n"
}

func (c *depositCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "currency code")
	f.StringVar(&c.amount, "amount", "", "amount to add")
}

func (c *depositCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.app.adjust("Deposited", c.currency, c.amount, c.app.engine.Deposit))
}

type withdrawCmd struct {
	app      *App
	currency string
	amount   string
}

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "take funds out of a wallet" }
func (*withdrawCmd) Usage() string {
	return "withdraw --currency <code> --amount <amount>\n"
}

func (c *withdrawCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "currency code")
	f.StringVar(&c.amount, "amount", "", "amount to take out")
}

func (c *withdrawCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.app.adjust("Withdrew", c.currency, c.amount, c.app.engine.Withdraw))
}

func (a *App) adjust(verb, code, amount string, op func(int, string, string) (decimal.Decimal, error)) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	if err := required("currency", code); err != nil {
		return err
	}
	if err := required("amount", amount); err != nil {
		return err
	}
	balance, err := op(u.ID, code, amount)
	if err != nil {
		return err
	}
	code = currency.Normalize(code)
	fmt.Fprintf(a.out, "%s %s %s. Balance: %s %s\n", verb, amount, code, formatQty(balance), code)
	return nil
}
