package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/sirupsen/logrus"
)

// Repository maps users and portfolios onto storages.Storage. Stores only
// save whole sets, so every write here is load-all, replace, save-all under
// one mutex.
type Repository struct {
	store  storages.Storage
	logger logrus.FieldLogger
	mu     sync.Mutex
}

func NewRepository(store storages.Storage, logger logrus.FieldLogger) *Repository {
	return &Repository{store: store, logger: logger}
}

func (r *Repository) UserByName(username string) (*User, error) {
	users, err := r.store.LoadUsers()
	if err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	for _, u := range users {
		if u.Username == username {
			return UserFromRecord(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user '%s'", apperrors.ErrNotFound, username)
}

func (r *Repository) UserByID(id int) (*User, error) {
	users, err := r.store.LoadUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return UserFromRecord(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user id %d", apperrors.ErrNotFound, id)
}

// InsertUser assigns u the next free ID and persists it. The username must
// not be taken.
func (r *Repository) InsertUser(u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.store.LoadUsers()
	if err != nil {
		return err
	}
	next := 1
	for _, existing := range users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: '%s'", apperrors.ErrDuplicateUsername, u.Username)
		}
		if existing.ID >= next {
			next = existing.ID + 1
		}
	}
	u.ID = next

	if err := r.store.SaveUsers(append(users, u.Record())); err != nil {
		r.logger.WithField("username", u.Username).WithError(err).Error("failed to save users")
		return err
	}
	r.logger.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Debug("user inserted")
	return nil
}

// UpdateUser replaces the stored record with the same ID.
func (r *Repository) UpdateUser(u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.store.LoadUsers()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == u.ID {
			users[i] = u.Record()
			return r.store.SaveUsers(users)
		}
	}
	return fmt.Errorf("%w: user id %d", apperrors.ErrNotFound, u.ID)
}

// Portfolio loads the portfolio of userID. A user without a stored portfolio
// gets an empty one.
func (r *Repository) Portfolio(userID int) (*Portfolio, error) {
	portfolios, err := r.store.LoadPortfolios()
	if err != nil {
		return nil, err
	}
	for _, p := range portfolios {
		if p.UserID == userID {
			return PortfolioFromRecord(p)
		}
	}
	return NewPortfolio(userID), nil
}

func (r *Repository) SavePortfolio(p *Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	portfolios, err := r.store.LoadPortfolios()
	if err != nil {
		return err
	}
	record := p.Record()
	replaced := false
	for i := range portfolios {
		if portfolios[i].UserID == p.UserID {
			portfolios[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		portfolios = append(portfolios, record)
	}

	if err := r.store.SavePortfolios(portfolios); err != nil {
		r.logger.WithField("user_id", p.UserID).WithError(err).Error("failed to save portfolios")
		return err
	}
	return nil
}
