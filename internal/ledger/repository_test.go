package ledger

import (
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/storages/jsonfile"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
}

func (s *RepositorySuite) SetupTest() {
	logger, _ := test.NewNullLogger()
	store, err := jsonfile.NewStorage(s.T().TempDir(), logger)
	s.Require().NoError(err)
	s.repo = NewRepository(store, logger)
}

func (s *RepositorySuite) insert(name string) *User {
	u, err := NewUser(name, "1234", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.repo.InsertUser(u))
	return u
}

func (s *RepositorySuite) TestInsertUser_AssignsIncreasingIDs() {
	a := s.insert("alice")
	b := s.insert("bob")
	s.Equal(1, a.ID)
	s.Equal(2, b.ID)

	got, err := s.repo.UserByName("bob")
	s.Require().NoError(err)
	s.Equal(2, got.ID)
	s.True(got.VerifyPassword("1234"))
}

func (s *RepositorySuite) TestInsertUser_Duplicate() {
	s.insert("alice")
	u, err := NewUser("alice", "abcd", time.Now())
	s.Require().NoError(err)

	s.ErrorIs(s.repo.InsertUser(u), apperrors.ErrDuplicateUsername)

	got, err := s.repo.UserByName("alice")
	s.Require().NoError(err)
	s.True(got.VerifyPassword("1234"))
}

func (s *RepositorySuite) TestLookupMissing() {
	_, err := s.repo.UserByName("ghost")
	s.ErrorIs(err, apperrors.ErrNotFound)
	_, err = s.repo.UserByID(42)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *RepositorySuite) TestUpdateUser() {
	u := s.insert("alice")
	s.Require().NoError(u.ChangePassword("secret"))
	s.Require().NoError(s.repo.UpdateUser(u))

	got, err := s.repo.UserByID(u.ID)
	s.Require().NoError(err)
	s.True(got.VerifyPassword("secret"))
}

func (s *RepositorySuite) TestPortfolioRoundTrip() {
	p, err := s.repo.Portfolio(1)
	s.Require().NoError(err)
	s.Empty(p.Wallets())

	s.Require().NoError(p.EnsureWallet("USD").Deposit(dec("1000")))
	s.Require().NoError(s.repo.SavePortfolio(p))

	other := NewPortfolio(2)
	other.EnsureWallet("EUR")
	s.Require().NoError(s.repo.SavePortfolio(other))

	got, err := s.repo.Portfolio(1)
	s.Require().NoError(err)
	w, ok := got.Wallet("USD")
	s.Require().True(ok)
	s.True(dec("1000").Equal(w.Balance()))

	got2, err := s.repo.Portfolio(2)
	s.Require().NoError(err)
	s.Len(got2.Wallets(), 1)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func TestRepository_ConcurrentSaves(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store, err := jsonfile.NewStorage(t.TempDir(), logger)
	require.NoError(t, err)
	repo := NewRepository(store, logger)

	done := make(chan struct{})
	for id := 1; id <= 8; id++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			p := NewPortfolio(id)
			_ = p.EnsureWallet("USD").Deposit(dec("1"))
			assert.NoError(t, repo.SavePortfolio(p))
		}(id)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	portfolios, err := store.LoadPortfolios()
	require.NoError(t, err)
	assert.Len(t, portfolios, 8)
}
