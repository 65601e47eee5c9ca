package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/logging"
	"github.com/sirupsen/logrus"
)

type Service struct {
	repo   *ledger.Repository
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewService(repo *ledger.Repository, logger logrus.FieldLogger) *Service {
	return &Service{repo: repo, now: time.Now, logger: logger}
}

// Register creates the user and an empty portfolio for it.
func (s *Service) Register(username, password string) (*ledger.User, error) {
	u, err := s.register(username, password)
	logging.Action(s.logger, "REGISTER", logrus.Fields{"username": username}, err)
	return u, err
}

func (s *Service) register(username, password string) (*ledger.User, error) {
	u, err := ledger.NewUser(username, password, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertUser(u); err != nil {
		return nil, err
	}
	// A user without a stored portfolio reads as having an empty one, so the
	// account is usable even when this write fails.
	if err := s.repo.SavePortfolio(ledger.NewPortfolio(u.ID)); err != nil {
		s.logger.WithField("user_id", u.ID).WithError(err).Warn("failed to create empty portfolio")
	}
	return u, nil
}

// Login checks the credentials. An unknown user and a wrong password are
// reported the same way.
func (s *Service) Login(username, password string) (*ledger.User, error) {
	u, err := s.login(username, password)
	logging.Action(s.logger, "LOGIN", logrus.Fields{"username": username}, err)
	return u, err
}

func (s *Service) login(username, password string) (*ledger.User, error) {
	u, err := s.repo.UserByName(username)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.VerifyPassword(password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) ChangePassword(userID int, oldPassword, newPassword string) error {
	err := s.changePassword(userID, oldPassword, newPassword)
	logging.Action(s.logger, "CHANGE_PASSWORD", logrus.Fields{"user_id": userID}, err)
	return err
}

func (s *Service) changePassword(userID int, oldPassword, newPassword string) error {
	u, err := s.repo.UserByID(userID)
	if err != nil {
		return err
	}
	if !u.VerifyPassword(oldPassword) {
		return fmt.Errorf("%w: current password does not match", apperrors.ErrInvalidCredentials)
	}
	if err := u.ChangePassword(newPassword); err != nil {
		return err
	}
	return s.repo.UpdateUser(u)
}

func (s *Service) User(userID int) (*ledger.User, error) {
	return s.repo.UserByID(userID)
}
