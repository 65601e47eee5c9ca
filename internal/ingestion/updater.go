package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/events"
	"github.com/Krchnk/valutatrade-hub/internal/metrics"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrNoRates = errors.New("no rates received from any provider")

type Result struct {
	Rates       map[string]decimal.Decimal
	Sources     []string
	Failed      map[string]error
	Written     int
	RefreshedAt time.Time
}

// Updater pulls every provider once and commits the merged rates in one
// cache write.
type Updater struct {
	providers []Provider
	registry  *currency.Registry
	cache     *rates.Cache
	history   *rates.History
	metrics   *metrics.Metrics
	publisher events.Publisher
	logger    logrus.FieldLogger
}

func NewUpdater(cache *rates.Cache, history *rates.History, registry *currency.Registry, providers []Provider, logger logrus.FieldLogger) *Updater {
	return &Updater{
		providers: providers,
		registry:  registry,
		cache:     cache,
		history:   history,
		publisher: events.Nop{},
		logger:    logger,
	}
}

func (u *Updater) SetMetrics(m *metrics.Metrics) { u.metrics = m }

func (u *Updater) SetPublisher(p events.Publisher) { u.publisher = p }

func (u *Updater) ProviderNames() []string {
	names := make([]string, 0, len(u.providers))
	for _, p := range u.providers {
		names = append(names, p.Name())
	}
	return names
}

// Run refreshes the cache from all providers, or only from source when it is
// not empty. Provider failures are collected in Result.Failed; Run returns
// ErrNoRates if nothing at all was received.
func (u *Updater) Run(ctx context.Context, source string) (Result, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	res := Result{Rates: make(map[string]decimal.Decimal), Failed: make(map[string]error)}

	selected := u.providers
	if source != "" {
		selected = nil
		for _, p := range u.providers {
			if p.Name() == source {
				selected = append(selected, p)
			}
		}
		if len(selected) == 0 {
			u.logger.WithField("source", source).Warn("unknown rate source")
		}
	}

	u.logger.WithField("providers", len(selected)).Info("rates update started")
	for _, p := range selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fetched, err := u.fetch(ctx, p)
		if err != nil {
			res.Failed[p.Name()] = err
			continue
		}
		if len(fetched) == 0 {
			u.logger.WithField("provider", p.Name()).Warn("provider returned no rates")
			continue
		}
		u.record(p.Name(), fetched)
		for k, v := range fetched {
			res.Rates[k] = v
		}
		res.Sources = append(res.Sources, p.Name())
	}

	if len(res.Rates) == 0 {
		u.logger.Warn("no rates received")
		return res, ErrNoRates
	}

	res.RefreshedAt = u.cache.Now()
	written, err := u.cache.PutMany(res.Rates, strings.Join(res.Sources, ","), res.RefreshedAt)
	if err != nil {
		return res, err
	}
	res.Written = written
	u.metrics.ObserveRefresh(written, res.RefreshedAt)

	u.logger.WithFields(logrus.Fields{
		"pairs":   written,
		"sources": strings.Join(res.Sources, ","),
	}).Info("rates update finished")

	ev := events.Event{
		Type:       events.TypeRatesRefresh,
		Key:        "rates",
		OccurredAt: res.RefreshedAt,
		Payload:    map[string]any{"pairs": written, "sources": res.Sources},
	}
	if err := u.publisher.Publish(ctx, ev); err != nil {
		u.logger.WithError(err).Warn("failed to publish rates event")
	}
	return res, nil
}

// Refresh is the periodic job: it refreshes from every provider, and a round
// that receives no rates is logged rather than returned, so a scheduler waits
// its full interval before trying again.
func (u *Updater) Refresh(ctx context.Context) error {
	_, err := u.Run(ctx, "")
	if errors.Is(err, ErrNoRates) {
		u.logger.Warn("scheduled update received no rates")
		return nil
	}
	return err
}

// fetch queries one provider and drops pairs naming unknown currencies.
func (u *Updater) fetch(ctx context.Context, p Provider) (map[string]decimal.Decimal, error) {
	log := u.logger.WithField("provider", p.Name())
	started := time.Now()
	raw, err := p.FetchRates(ctx)
	u.metrics.ObserveFetch(p.Name(), started, err)
	if err != nil {
		log.WithError(err).Error("provider fetch failed")
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for key, rate := range raw {
		from, to, ok := rates.SplitPair(key)
		if !ok || !u.registry.Has(from) || !u.registry.Has(to) {
			log.WithField("pair", key).Warn("dropping pair with unknown currency")
			continue
		}
		out[key] = rate
	}
	log.WithField("pairs", len(out)).Info("provider rates received")
	return out, nil
}

// record appends fetched pairs to the history log. Failures are logged only.
func (u *Updater) record(source string, fetched map[string]decimal.Decimal) {
	requested := u.cache.Now()
	records := make([]storages.RateRecord, 0, len(fetched))
	for key, rate := range fetched {
		from, to, _ := rates.SplitPair(key)
		records = append(records, storages.RateRecord{
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         rate,
			Timestamp:    requested,
			Source:       source,
			Meta:         map[string]string{"request_timestamp": requested.Format(time.RFC3339Nano)},
		})
	}
	if err := u.history.Append(records...); err != nil {
		u.logger.WithField("provider", source).WithError(err).Error("failed to record rate history")
	}
}
