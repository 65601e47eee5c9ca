package trading

import (
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/shopspring/decimal"
)

type Line struct {
	Currency string
	Balance  decimal.Decimal
	Rate     decimal.Decimal
	Value    decimal.Decimal
	// Valued is false when no rate to the base currency is cached.
	Valued bool
	Stale  bool
}

type Valuation struct {
	UserID int
	Base   string
	Lines  []Line
	Total  decimal.Decimal
}

// PortfolioValue values every wallet in base. Stale rates are used but
// flagged; wallets without a rate are listed as not valued and left out of
// the total.
func (e *Engine) PortfolioValue(p *ledger.Portfolio, base string) (Valuation, error) {
	baseCur, err := e.resolveBase(base)
	if err != nil {
		return Valuation{}, err
	}

	v := Valuation{UserID: p.UserID, Base: baseCur.Code, Total: decimal.Zero}
	for _, w := range p.Wallets() {
		line := Line{Currency: w.Currency, Balance: w.Balance()}
		if w.Currency == baseCur.Code {
			line.Rate = decimal.NewFromInt(1)
			line.Value = w.Balance()
			line.Valued = true
		} else {
			q, fresh, ok, err := e.Quote(w.Currency, baseCur.Code)
			if err != nil {
				return Valuation{}, err
			}
			if ok {
				line.Rate = q.Rate
				line.Value = w.Balance().Mul(q.Rate)
				line.Valued = true
				line.Stale = !fresh
			}
		}
		if line.Valued {
			v.Total = v.Total.Add(line.Value)
		}
		v.Lines = append(v.Lines, line)
	}
	return v, nil
}
