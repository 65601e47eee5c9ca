package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/ingestion"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02 15:04:05"

type getRateCmd struct {
	app  *App
	from string
	to   string
}

func (*getRateCmd) Name() string     { return "get-rate" }
func (*getRateCmd) Synopsis() string { return "show the cached rate between two currencies" }
func (*getRateCmd) Usage() string {
	return "get-rate --from <code> --to <code>\n"
}

func (c *getRateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "source currency")
	f.StringVar(&c.to, "to", "", "target currency")
}

func (c *getRateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.run())
}

func (c *getRateCmd) run() error {
	if err := required("from", c.from); err != nil {
		return err
	}
	if err := required("to", c.to); err != nil {
		return err
	}
	q, err := c.app.engine.GetRate(c.from, c.to)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.app.out, "Rate %s→%s: %s (updated: %s, source: %s)\n",
		q.From, q.To, formatRate(q.Rate), q.UpdatedAt.Local().Format(timeLayout), q.Source)
	if q.From == q.To {
		return nil
	}
	if inv, fresh, ok, err := c.app.engine.Quote(q.To, q.From); err == nil && ok {
		note := ""
		if !fresh {
			note = " (stale)"
		}
		fmt.Fprintf(c.app.out, "Inverse %s→%s: %s%s\n", inv.From, inv.To, formatRate(inv.Rate), note)
	} else if !q.Rate.IsZero() {
		fmt.Fprintf(c.app.out, "Inverse %s→%s: %s\n", q.To, q.From, formatRate(decimal.NewFromInt(1).Div(q.Rate)))
	}
	return nil
}

type showRatesCmd struct {
	app      *App
	currency string
	top      int
	base     string
}

func (*showRatesCmd) Name() string     { return "show-rates" }
func (*showRatesCmd) Synopsis() string { return "list cached rates" }
func (*showRatesCmd) Usage() string {
	return "show-rates [--currency <code>] [--top <n>] [--base <code>]\n"
}

func (c *showRatesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "only show rates of this currency")
	f.IntVar(&c.top, "top", 0, "show the n highest rates")
	f.StringVar(&c.base, "base", "", "quote currency, defaults to the configured base")
}

func (c *showRatesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.run())
}

func (c *showRatesCmd) run() error {
	if c.top < 0 {
		return fmt.Errorf("%w: --top must not be negative", apperrors.ErrValidation)
	}
	base := currency.Normalize(c.base)
	if base == "" {
		base = c.app.engine.DefaultBase()
	}
	if _, err := c.app.registry.Get(base); err != nil {
		return err
	}
	only := currency.Normalize(c.currency)

	snap, err := c.app.cache.Snapshot()
	if err != nil {
		return err
	}
	if len(snap.Quotes) == 0 {
		fmt.Fprintln(c.app.out, "Rates cache is empty. Run 'update-rates' to load rates.")
		return nil
	}

	var quotes []rates.Quote
	for _, q := range snap.Quotes {
		if q.To != base || (only != "" && q.From != only) {
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		if only != "" {
			fmt.Fprintf(c.app.out, "No cached rate for %s→%s.\n", only, base)
		} else {
			fmt.Fprintf(c.app.out, "No cached rates against %s.\n", base)
		}
		return nil
	}
	if c.top > 0 {
		sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Rate.GreaterThan(quotes[j].Rate) })
		if len(quotes) > c.top {
			quotes = quotes[:c.top]
		}
	}

	if snap.LastRefresh != nil {
		fmt.Fprintf(c.app.out, "Rates from cache (last refresh: %s)\n", snap.LastRefresh.Local().Format(timeLayout))
	}
	t := newTable("Pair", "Rate", "Updated", "Source", "Status")
	for _, q := range quotes {
		status := "fresh"
		if !c.app.cache.IsFresh(q.UpdatedAt) {
			status = "stale"
		}
		t.add(q.Pair(), formatRate(q.Rate), q.UpdatedAt.Local().Format(timeLayout), q.Source, status)
	}
	c.app.printMarkdown(t.markdown())
	return nil
}

type updateRatesCmd struct {
	app    *App
	source string
}

func (*updateRatesCmd) Name() string     { return "update-rates" }
func (*updateRatesCmd) Synopsis() string { return "fetch fresh rates from the providers" }
func (*updateRatesCmd) Usage() string {
	return "update-rates [--source <coingecko|exchangerate>]\n"
}

func (c *updateRatesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.source, "source", "", "only query this provider")
}

func (c *updateRatesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.finish(c.run(ctx))
}

func (c *updateRatesCmd) run(ctx context.Context) error {
	source := strings.ToLower(strings.TrimSpace(c.source))
	names := c.app.updater.ProviderNames()
	if source != "" && !contains(names, source) {
		return fmt.Errorf("%w: unknown source '%s', available: %s",
			apperrors.ErrValidation, c.source, strings.Join(names, ", "))
	}

	fmt.Fprintln(c.app.out, "Updating rates...")
	res, err := c.app.updater.Run(ctx, source)
	for _, name := range sortedKeys(res.Failed) {
		fmt.Fprintf(c.app.out, "  %s failed: %s\n", name, apperrors.Message(res.Failed[name]))
	}
	if errors.Is(err, ingestion.ErrNoRates) {
		fmt.Fprintln(c.app.out, "No rates received. Check the log for details.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.app.out, "Updated %d rates from %s at %s\n",
		res.Written, strings.Join(res.Sources, ", "), res.RefreshedAt.Local().Format(timeLayout))
	return nil
}

type currenciesCmd struct{ app *App }

func (*currenciesCmd) Name() string             { return "currencies" }
func (*currenciesCmd) Synopsis() string         { return "list supported currencies" }
func (*currenciesCmd) Usage() string            { return "currencies\n" }
func (*currenciesCmd) SetFlags(f *flag.FlagSet) {}

func (c *currenciesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	for _, kind := range []currency.Kind{currency.Fiat, currency.Crypto} {
		for _, cur := range c.app.registry.List(kind) {
			fmt.Fprintln(c.app.out, cur.DisplayInfo())
		}
	}
	return subcommands.ExitSuccess
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
