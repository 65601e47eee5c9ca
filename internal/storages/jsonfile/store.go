package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/sirupsen/logrus"
)

const (
	usersFile      = "users.json"
	portfoliosFile = "portfolios.json"
	ratesFile      = "rates.json"
	historyFile    = "exchange_rates.json"
)

// Storage keeps every record set in its own JSON file under one directory.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers never observe a half-written file.
type Storage struct {
	dir    string
	logger logrus.FieldLogger
	mu     sync.Mutex
}

func NewStorage(dir string, logger logrus.FieldLogger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.WithError(err).WithField("dir", dir).Error("failed to create data directory")
		return nil, err
	}
	logger.WithField("dir", dir).Info("json storage opened")
	return &Storage{dir: dir, logger: logger}, nil
}

func (s *Storage) Dir() string { return s.dir }

func (s *Storage) LoadUsers() ([]storages.User, error) {
	var users []storages.User
	if err := s.load(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Storage) SaveUsers(users []storages.User) error {
	if users == nil {
		users = []storages.User{}
	}
	return s.save(usersFile, users)
}

func (s *Storage) LoadPortfolios() ([]storages.Portfolio, error) {
	var portfolios []storages.Portfolio
	if err := s.load(portfoliosFile, &portfolios); err != nil {
		return nil, err
	}
	return portfolios, nil
}

func (s *Storage) SavePortfolios(portfolios []storages.Portfolio) error {
	if portfolios == nil {
		portfolios = []storages.Portfolio{}
	}
	return s.save(portfoliosFile, portfolios)
}

func (s *Storage) LoadRates() (storages.RatesCache, error) {
	cache := storages.EmptyRatesCache()
	if err := s.load(ratesFile, &cache); err != nil {
		return storages.RatesCache{}, err
	}
	if cache.Pairs == nil {
		cache.Pairs = make(map[string]storages.RateEntry)
	}
	return cache, nil
}

func (s *Storage) SaveRates(cache storages.RatesCache) error {
	if cache.Pairs == nil {
		cache.Pairs = make(map[string]storages.RateEntry)
	}
	return s.save(ratesFile, cache)
}

func (s *Storage) LoadHistory() ([]storages.RateRecord, error) {
	var history []storages.RateRecord
	if err := s.load(historyFile, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Storage) SaveHistory(history []storages.RateRecord) error {
	if history == nil {
		history = []storages.RateRecord{}
	}
	return s.save(historyFile, history)
}

func (s *Storage) Close() error { return nil }

// load decodes name into v. A missing file leaves v untouched.
func (s *Storage) load(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("file", path).Error("failed to read data file")
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WithError(err).WithField("file", path).Error("failed to decode data file")
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Storage) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		s.logger.WithError(err).WithField("file", path).Error("failed to create temp file")
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.logger.WithError(err).WithField("file", path).Error("failed to write temp file")
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		s.logger.WithError(err).WithField("file", path).Error("failed to replace data file")
		return err
	}

	s.logger.WithField("file", path).Debug("data file saved")
	return nil
}
