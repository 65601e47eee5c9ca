package rates

import (
	"sync"

	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultHistoryLimit = 1000

// History is the append-only rate log, trimmed to the most recent limit
// records.
type History struct {
	store  storages.Storage
	limit  int
	logger logrus.FieldLogger
	mu     sync.Mutex
}

func NewHistory(store storages.Storage, limit int, logger logrus.FieldLogger) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{store: store, limit: limit, logger: logger}
}

func (h *History) Append(records ...storages.RateRecord) error {
	if len(records) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	history, err := h.store.LoadHistory()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		history = append(history, r)
	}
	if len(history) > h.limit {
		dropped := len(history) - h.limit
		history = append([]storages.RateRecord(nil), history[dropped:]...)
		h.logger.WithField("dropped", dropped).Debug("rate history trimmed")
	}

	if err := h.store.SaveHistory(history); err != nil {
		h.logger.WithError(err).Error("failed to save rate history")
		return err
	}
	return nil
}

// Recent returns up to n latest records, oldest first.
func (h *History) Recent(n int) ([]storages.RateRecord, error) {
	history, err := h.store.LoadHistory()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}
