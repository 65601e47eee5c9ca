package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Storage implements storages.Storage on postgres. Each Save replaces its set
// inside one transaction, which gives the same all-or-nothing visibility as
// the JSON store's rename.
type Storage struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) LoadUsers() ([]storages.User, error) {
	rows, err := s.db.Query(`
        SELECT id, username, password_hash, salt, registration_date
        FROM users
        ORDER BY id`)
	if err != nil {
		s.logger.WithError(err).Error("failed to query users")
		return nil, err
	}
	defer rows.Close()

	var users []storages.User
	for rows.Next() {
		var u storages.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.RegistrationDate); err != nil {
			s.logger.WithError(err).Error("failed to scan user")
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Storage) SaveUsers(users []storages.User) error {
	return s.withTx("save users", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM users`); err != nil {
			return err
		}
		for _, u := range users {
			_, err := tx.Exec(`
                INSERT INTO users (id, username, password_hash, salt, registration_date)
                VALUES ($1, $2, $3, $4, $5)`,
				u.ID, u.Username, u.PasswordHash, u.Salt, u.RegistrationDate)
			if err != nil {
				s.logger.WithField("username", u.Username).WithError(err).Error("failed to insert user")
				return err
			}
		}
		return nil
	})
}

func (s *Storage) LoadPortfolios() ([]storages.Portfolio, error) {
	rows, err := s.db.Query(`
        SELECT p.user_id, b.currency, b.amount
        FROM portfolios p
        LEFT JOIN balances b ON b.user_id = p.user_id
        ORDER BY p.user_id, b.currency`)
	if err != nil {
		s.logger.WithError(err).Error("failed to query portfolios")
		return nil, err
	}
	defer rows.Close()

	var portfolios []storages.Portfolio
	index := make(map[int]int)
	for rows.Next() {
		var (
			userID   int
			currency sql.NullString
			amount   decimal.NullDecimal
		)
		if err := rows.Scan(&userID, &currency, &amount); err != nil {
			s.logger.WithError(err).Error("failed to scan portfolio")
			return nil, err
		}
		i, ok := index[userID]
		if !ok {
			portfolios = append(portfolios, storages.Portfolio{UserID: userID, Wallets: make(map[string]storages.WalletEntry)})
			i = len(portfolios) - 1
			index[userID] = i
		}
		if currency.Valid && amount.Valid {
			portfolios[i].Wallets[currency.String] = storages.WalletEntry{Balance: amount.Decimal}
		}
	}
	return portfolios, rows.Err()
}

func (s *Storage) SavePortfolios(portfolios []storages.Portfolio) error {
	return s.withTx("save portfolios", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM balances`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM portfolios`); err != nil {
			return err
		}
		for _, p := range portfolios {
			if _, err := tx.Exec(`INSERT INTO portfolios (user_id) VALUES ($1)`, p.UserID); err != nil {
				s.logger.WithField("user_id", p.UserID).WithError(err).Error("failed to insert portfolio")
				return err
			}
			for currency, w := range p.Wallets {
				_, err := tx.Exec(`
                    INSERT INTO balances (user_id, currency, amount)
                    VALUES ($1, $2, $3)`,
					p.UserID, currency, w.Balance)
				if err != nil {
					s.logger.WithFields(logrus.Fields{
						"user_id":  p.UserID,
						"currency": currency,
					}).WithError(err).Error("failed to insert balance")
					return err
				}
			}
		}
		return nil
	})
}

func (s *Storage) LoadRates() (storages.RatesCache, error) {
	cache := storages.EmptyRatesCache()

	rows, err := s.db.Query(`SELECT pair, rate, updated_at, source FROM exchange_rates`)
	if err != nil {
		s.logger.WithError(err).Error("failed to query exchange rates")
		return storages.RatesCache{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pair  string
			entry storages.RateEntry
		)
		if err := rows.Scan(&pair, &entry.Rate, &entry.UpdatedAt, &entry.Source); err != nil {
			s.logger.WithError(err).Error("failed to scan exchange rate")
			return storages.RatesCache{}, err
		}
		cache.Pairs[pair] = entry
	}
	if err := rows.Err(); err != nil {
		return storages.RatesCache{}, err
	}

	var last sql.NullTime
	err = s.db.QueryRow(`SELECT last_refresh FROM exchange_rates_meta WHERE id = 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.WithError(err).Error("failed to get last refresh")
		return storages.RatesCache{}, err
	}
	if last.Valid {
		t := last.Time
		cache.LastRefresh = &t
	}
	return cache, nil
}

func (s *Storage) SaveRates(cache storages.RatesCache) error {
	return s.withTx("save rates", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM exchange_rates`); err != nil {
			return err
		}
		for pair, e := range cache.Pairs {
			_, err := tx.Exec(`
                INSERT INTO exchange_rates (pair, rate, updated_at, source)
                VALUES ($1, $2, $3, $4)`,
				pair, e.Rate, e.UpdatedAt, e.Source)
			if err != nil {
				s.logger.WithField("pair", pair).WithError(err).Error("failed to insert exchange rate")
				return err
			}
		}

		_, err := tx.Exec(`
            INSERT INTO exchange_rates_meta (id, last_refresh)
            VALUES (1, $1)
            ON CONFLICT (id)
            DO UPDATE SET last_refresh = EXCLUDED.last_refresh`,
			cache.LastRefresh)
		return err
	})
}

func (s *Storage) LoadHistory() ([]storages.RateRecord, error) {
	rows, err := s.db.Query(`
        SELECT id, from_currency, to_currency, rate, ts, source, meta
        FROM exchange_rate_history
        ORDER BY seq`)
	if err != nil {
		s.logger.WithError(err).Error("failed to query rate history")
		return nil, err
	}
	defer rows.Close()

	var history []storages.RateRecord
	for rows.Next() {
		var (
			r    storages.RateRecord
			meta sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.Timestamp, &r.Source, &meta); err != nil {
			s.logger.WithError(err).Error("failed to scan rate history")
			return nil, err
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &r.Meta); err != nil {
				return nil, err
			}
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

func (s *Storage) SaveHistory(history []storages.RateRecord) error {
	return s.withTx("save rate history", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM exchange_rate_history`); err != nil {
			return err
		}
		for _, r := range history {
			var meta sql.NullString
			if len(r.Meta) > 0 {
				raw, err := json.Marshal(r.Meta)
				if err != nil {
					return err
				}
				meta = sql.NullString{String: string(raw), Valid: true}
			}
			_, err := tx.Exec(`
                INSERT INTO exchange_rate_history (id, from_currency, to_currency, rate, ts, source, meta)
                VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				r.ID, r.FromCurrency, r.ToCurrency, r.Rate, r.Timestamp, r.Source, meta)
			if err != nil {
				s.logger.WithField("id", r.ID).WithError(err).Error("failed to insert rate history")
				return err
			}
		}
		return nil
	})
}

func (s *Storage) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.WithError(err).Errorf("failed to begin transaction for %s", op)
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		s.logger.WithError(err).Errorf("%s failed", op)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.WithError(err).Errorf("failed to commit %s transaction", op)
		return err
	}

	s.logger.WithField("op", op).Debug("transaction committed")
	return nil
}
