package cli

import (
	"fmt"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"
)

// table accumulates a markdown table.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table { return &table{header: header} }

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) markdown() string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + strings.ReplaceAll(c, "|", "\\|") + " |")
		}
		b.WriteString("\n")
	}
	writeRow(t.header)
	b.WriteString("|")
	for range t.header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range t.rows {
		writeRow(r)
	}
	return b.String()
}

func newRenderer(plain bool) (*glamour.TermRenderer, error) {
	if plain {
		return nil, nil
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
}

// printMarkdown renders md for the terminal, or writes it as is when no
// renderer is configured or rendering fails.
func (a *App) printMarkdown(md string) {
	if a.renderer != nil {
		if out, err := a.renderer.Render(md); err == nil {
			fmt.Fprint(a.out, out)
			return
		}
	}
	fmt.Fprint(a.out, md)
}

// formatValue prints an amount of code, using the currency's own symbol and
// minor units when it is a known fiat currency.
func (a *App) formatValue(amount decimal.Decimal, code string) string {
	if c, err := a.registry.Get(code); err == nil && c.Kind == currency.Fiat {
		if cur := money.GetCurrency(code); cur != nil {
			factor := decimal.New(1, int32(cur.Fraction))
			minor := amount.Mul(factor).Round(0).IntPart()
			return money.New(minor, code).Display()
		}
	}
	return amount.StringFixed(8) + " " + code
}

func formatQty(d decimal.Decimal) string  { return d.StringFixed(4) }
func formatRate(d decimal.Decimal) string { return d.StringFixed(6) }
