package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application collectors. All methods are safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	TradesTotal          *prometheus.CounterVec
	TradeDuration        *prometheus.HistogramVec
	ProviderFetchTotal   *prometheus.CounterVec
	ProviderFetchSeconds *prometheus.HistogramVec
	RatesWritten         prometheus.Counter
	LastRefresh          prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_trades_total",
				Help: "Trades attempted, by direction and result",
			},
			[]string{"direction", "result"},
		),
		TradeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valutatrade_trade_duration_seconds",
				Help:    "Time to validate and commit a trade",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		ProviderFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_provider_fetch_total",
				Help: "Rate provider fetches, by provider and result",
			},
			[]string{"provider", "result"},
		),
		ProviderFetchSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valutatrade_provider_fetch_seconds",
				Help:    "Rate provider fetch latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		RatesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "valutatrade_rates_written_total",
			Help: "Rate pairs committed to the cache",
		}),
		LastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Name: "valutatrade_rates_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful cache refresh",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_http_requests_total",
				Help: "HTTP requests, by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveTrade(direction string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(direction, result(err)).Inc()
	m.TradeDuration.WithLabelValues(direction).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveFetch(provider string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.ProviderFetchTotal.WithLabelValues(provider, result(err)).Inc()
	m.ProviderFetchSeconds.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveRefresh(written int, at time.Time) {
	if m == nil {
		return
	}
	m.RatesWritten.Add(float64(written))
	m.LastRefresh.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
