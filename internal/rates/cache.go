package rates

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL        = 300 * time.Second
	DefaultMemoExpiry = 2 * time.Second

	snapshotKey = "snapshot"
)

// Quote is one cached directed rate: 1 From = Rate To.
type Quote struct {
	From      string
	To        string
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Source    string
}

func (q Quote) Pair() string { return PairKey(q.From, q.To) }

type Snapshot struct {
	Quotes      []Quote
	LastRefresh *time.Time
}

func PairKey(from, to string) string {
	return currency.Normalize(from) + "_" + currency.Normalize(to)
}

// SplitPair parses a FROM_TO key. Both sides must be well-formed codes.
func SplitPair(key string) (from, to string, ok bool) {
	parts := strings.Split(key, "_")
	if len(parts) != 2 || !currency.ValidCode(parts[0]) || !currency.ValidCode(parts[1]) {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Cache is the persisted pair cache. Decoded documents are memoised in
// go-cache for a short while so that one portfolio valuation does not hit the
// store once per wallet; PutMany flushes the memo.
type Cache struct {
	store  storages.Storage
	ttl    time.Duration
	memo   *gocache.Cache
	now    func() time.Time
	logger logrus.FieldLogger
	mu     sync.Mutex
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMemoExpiry(d time.Duration) Option {
	return func(c *Cache) { c.memo = gocache.New(d, 2*d) }
}

func NewCache(store storages.Storage, ttl time.Duration, logger logrus.FieldLogger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:  store,
		ttl:    ttl,
		memo:   gocache.New(DefaultMemoExpiry, 2*DefaultMemoExpiry),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Now() time.Time { return c.now() }

func (c *Cache) IsFresh(updatedAt time.Time) bool {
	return c.now().Sub(updatedAt) < c.ttl
}

// Get returns the quote for (from, to). ok is false when the pair is absent,
// unreadable, or its stored rate is not positive.
func (c *Cache) Get(from, to string) (Quote, bool, error) {
	doc, err := c.load()
	if err != nil {
		return Quote{}, false, err
	}
	from, to = currency.Normalize(from), currency.Normalize(to)
	entry, ok := doc.Pairs[PairKey(from, to)]
	if !ok || !entry.Valid() {
		return Quote{}, false, nil
	}
	return Quote{From: from, To: to, Rate: entry.Rate, UpdatedAt: entry.UpdatedAt, Source: entry.Source}, true, nil
}

// PutMany merges rates into the stored set, keeping pairs that are not in
// rates, and stamps the refresh time. Malformed keys and non-positive rates
// are skipped. It returns the number of pairs written.
func (c *Cache) PutMany(rates map[string]decimal.Decimal, source string, ts time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.store.LoadRates()
	if err != nil {
		return 0, err
	}
	if doc.Pairs == nil {
		doc.Pairs = make(map[string]storages.RateEntry)
	}
	for key, entry := range doc.Pairs {
		if _, _, ok := SplitPair(key); !ok || !entry.Valid() {
			c.logger.WithField("pair", key).Warn("dropping unreadable cached rate")
			delete(doc.Pairs, key)
		}
	}

	written := 0
	for key, rate := range rates {
		if _, _, ok := SplitPair(key); !ok || !rate.IsPositive() {
			c.logger.WithFields(logrus.Fields{"pair": key, "rate": rate.String()}).Warn("skipping invalid rate")
			continue
		}
		doc.Pairs[key] = storages.RateEntry{Rate: rate, UpdatedAt: ts, Source: source}
		written++
	}
	doc.LastRefresh = &ts

	if err := c.store.SaveRates(doc); err != nil {
		c.logger.WithError(err).Error("failed to save rates cache")
		return 0, err
	}
	c.memo.Flush()

	c.logger.WithFields(logrus.Fields{"pairs": written, "source": source}).Info("rates cache updated")
	return written, nil
}

// Snapshot returns every valid pair ordered by key.
func (c *Cache) Snapshot() (Snapshot, error) {
	doc, err := c.load()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{LastRefresh: doc.LastRefresh}
	for key, entry := range doc.Pairs {
		from, to, ok := SplitPair(key)
		if !ok || !entry.Valid() {
			continue
		}
		snap.Quotes = append(snap.Quotes, Quote{From: from, To: to, Rate: entry.Rate, UpdatedAt: entry.UpdatedAt, Source: entry.Source})
	}
	sort.Slice(snap.Quotes, func(i, j int) bool { return snap.Quotes[i].Pair() < snap.Quotes[j].Pair() })
	return snap, nil
}

func (c *Cache) load() (storages.RatesCache, error) {
	if v, ok := c.memo.Get(snapshotKey); ok {
		return v.(storages.RatesCache), nil
	}
	doc, err := c.store.LoadRates()
	if err != nil {
		c.logger.WithError(err).Error("failed to load rates cache")
		return storages.RatesCache{}, err
	}
	c.memo.SetDefault(snapshotKey, doc)
	return doc, nil
}
