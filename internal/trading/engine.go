package trading

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/events"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/logging"
	"github.com/Krchnk/valutatrade-hub/internal/metrics"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

var ErrSameCurrency = fmt.Errorf("%w: cannot trade a currency against itself", apperrors.ErrValidation)

type Result struct {
	ID              string
	UserID          int
	Direction       Direction
	Currency        string
	Amount          decimal.Decimal
	Rate            decimal.Decimal
	Base            string
	Total           decimal.Decimal // cost of a buy, proceeds of a sell, in Base
	CurrencyBalance decimal.Decimal
	BaseBalance     decimal.Decimal
	RateFresh       bool
	RateUpdatedAt   time.Time
	ExecutedAt      time.Time
}

// Engine executes trades against cached rates. A trade only proceeds on a
// fresh rate, and each user's portfolio is read, changed and written back
// under that user's lock.
type Engine struct {
	registry    *currency.Registry
	cache       *rates.Cache
	repo        *ledger.Repository
	defaultBase string
	metrics     *metrics.Metrics
	publisher   events.Publisher
	logger      logrus.FieldLogger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewEngine(registry *currency.Registry, cache *rates.Cache, repo *ledger.Repository, defaultBase string, logger logrus.FieldLogger) *Engine {
	if defaultBase == "" {
		defaultBase = "USD"
	}
	return &Engine{
		registry:    registry,
		cache:       cache,
		repo:        repo,
		defaultBase: currency.Normalize(defaultBase),
		publisher:   events.Nop{},
		logger:      logger,
		locks:       make(map[int]*sync.Mutex),
	}
}

func (e *Engine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

func (e *Engine) SetPublisher(p events.Publisher) { e.publisher = p }

func (e *Engine) DefaultBase() string { return e.defaultBase }

func (e *Engine) Buy(ctx context.Context, userID int, code, amount, base string) (*Result, error) {
	return e.ExecuteTrade(ctx, userID, Buy, code, amount, base)
}

func (e *Engine) Sell(ctx context.Context, userID int, code, amount, base string) (*Result, error) {
	return e.ExecuteTrade(ctx, userID, Sell, code, amount, base)
}

// ExecuteTrade buys or sells amount of code against base. An empty base
// means the engine default. Nothing is written unless every check passes.
func (e *Engine) ExecuteTrade(ctx context.Context, userID int, dir Direction, code, amount, base string) (*Result, error) {
	started := time.Now()
	res, err := e.executeTrade(userID, dir, code, amount, base)
	e.metrics.ObserveTrade(string(dir), started, err)

	fields := logrus.Fields{"user_id": userID, "currency": code, "amount": amount, "base": base}
	if res != nil {
		fields["rate"] = res.Rate.String()
		fields["total"] = res.Total.String()
	}
	logging.Action(e.logger, strings.ToUpper(string(dir)), fields, err)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, res)
	return res, nil
}

func (e *Engine) executeTrade(userID int, dir Direction, code, amount, base string) (*Result, error) {
	if dir != Buy && dir != Sell {
		return nil, fmt.Errorf("%w: unknown trade direction %q", apperrors.ErrValidation, dir)
	}
	qty, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	target, err := e.registry.Get(code)
	if err != nil {
		return nil, err
	}
	baseCur, err := e.resolveBase(base)
	if err != nil {
		return nil, err
	}
	if target.Code == baseCur.Code {
		return nil, ErrSameCurrency
	}

	quote, err := e.freshQuote(target.Code, baseCur.Code)
	if err != nil {
		return nil, err
	}

	value := qty.Mul(quote.Rate)
	debitCode, creditCode := baseCur.Code, target.Code
	debitAmt, creditAmt := value, qty
	if dir == Sell {
		debitCode, creditCode = target.Code, baseCur.Code
		debitAmt, creditAmt = qty, value
	}

	unlock := e.lock(userID)
	defer unlock()

	if _, err := e.repo.UserByID(userID); err != nil {
		return nil, err
	}
	p, err := e.repo.Portfolio(userID)
	if err != nil {
		return nil, err
	}
	debit := p.EnsureWallet(debitCode)
	credit := p.EnsureWallet(creditCode)
	if err := debit.Withdraw(debitAmt); err != nil {
		return nil, err
	}
	if err := credit.Deposit(creditAmt); err != nil {
		return nil, err
	}
	if err := e.repo.SavePortfolio(p); err != nil {
		return nil, err
	}

	res := &Result{
		ID:            uuid.NewString(),
		UserID:        userID,
		Direction:     dir,
		Currency:      target.Code,
		Amount:        qty,
		Rate:          quote.Rate,
		Base:          baseCur.Code,
		Total:         value,
		RateFresh:     true,
		RateUpdatedAt: quote.UpdatedAt,
		ExecutedAt:    e.cache.Now(),
	}
	if dir == Buy {
		res.CurrencyBalance, res.BaseBalance = credit.Balance(), debit.Balance()
	} else {
		res.CurrencyBalance, res.BaseBalance = debit.Balance(), credit.Balance()
	}
	return res, nil
}

// GetRate returns the cached rate for from->to, held to the same freshness
// rule as trading. A currency quoted against itself is always 1.
func (e *Engine) GetRate(from, to string) (rates.Quote, error) {
	quote, err := e.getRate(from, to)
	fields := logrus.Fields{"from": from, "to": to}
	if err == nil {
		fields["rate"] = quote.Rate.String()
	}
	logging.Action(e.logger, "GET_RATE", fields, err)
	return quote, err
}

func (e *Engine) getRate(from, to string) (rates.Quote, error) {
	src, err := e.registry.Get(from)
	if err != nil {
		return rates.Quote{}, err
	}
	dst, err := e.registry.Get(to)
	if err != nil {
		return rates.Quote{}, err
	}
	if src.Code == dst.Code {
		return rates.Quote{From: src.Code, To: dst.Code, Rate: decimal.NewFromInt(1), UpdatedAt: e.cache.Now(), Source: "identity"}, nil
	}
	return e.freshQuote(src.Code, dst.Code)
}

// Quote is the ungated lookup: it returns the cached quote whether or not it
// is fresh, with ok false when the pair is missing.
func (e *Engine) Quote(from, to string) (q rates.Quote, fresh, ok bool, err error) {
	q, ok, err = e.cache.Get(from, to)
	if err != nil || !ok {
		return rates.Quote{}, false, false, err
	}
	return q, e.cache.IsFresh(q.UpdatedAt), true, nil
}

func (e *Engine) freshQuote(from, to string) (rates.Quote, error) {
	q, ok, err := e.cache.Get(from, to)
	if err != nil {
		return rates.Quote{}, err
	}
	if !ok {
		return rates.Quote{}, fmt.Errorf("%w: rate %s→%s is not in the cache", apperrors.ErrRateUnavailable, from, to)
	}
	if !e.cache.IsFresh(q.UpdatedAt) {
		return rates.Quote{}, fmt.Errorf("%w: rate %s→%s was updated at %s",
			apperrors.ErrRateStale, from, to, q.UpdatedAt.Format(time.RFC3339))
	}
	return q, nil
}

func (e *Engine) resolveBase(base string) (currency.Currency, error) {
	if strings.TrimSpace(base) == "" {
		base = e.defaultBase
	}
	return e.registry.Get(base)
}

func (e *Engine) lock(userID int) func() {
	e.mu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) publish(ctx context.Context, res *Result) {
	ev := events.Event{
		Type:       events.TypeTradeExecuted,
		Key:        fmt.Sprint(res.UserID),
		OccurredAt: res.ExecutedAt,
		Payload: map[string]any{
			"id":        res.ID,
			"user_id":   res.UserID,
			"direction": string(res.Direction),
			"currency":  res.Currency,
			"amount":    res.Amount.String(),
			"rate":      res.Rate.String(),
			"base":      res.Base,
			"total":     res.Total.String(),
		},
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.WithError(err).WithField("trade_id", res.ID).Warn("failed to publish trade event")
	}
}

// ParseAmount reads a positive decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: '%s' is not a number", apperrors.ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive, got %s", apperrors.ErrInvalidAmount, s)
	}
	return d, nil
}
