package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 4

var hashCost = bcrypt.DefaultCost

type User struct {
	ID           int
	Username     string
	RegisteredAt time.Time

	passwordHash string
	salt         string
}

// NewUser validates the credentials and hashes the password with a fresh
// per-user salt. The ID is assigned by the repository on insert.
func NewUser(username, password string, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", apperrors.ErrValidation)
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(password, salt)
	if err != nil {
		return nil, err
	}
	return &User{
		Username:     username,
		RegisteredAt: now,
		passwordHash: hash,
		salt:         salt,
	}, nil
}

func UserFromRecord(r storages.User) *User {
	return &User{
		ID:           r.ID,
		Username:     r.Username,
		RegisteredAt: r.RegistrationDate,
		passwordHash: r.PasswordHash,
		salt:         r.Salt,
	}
}

func (u *User) Record() storages.User {
	return storages.User{
		ID:               u.ID,
		Username:         u.Username,
		PasswordHash:     u.passwordHash,
		Salt:             u.salt,
		RegistrationDate: u.RegisteredAt,
	}
}

func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), saltedDigest(password, u.salt)) == nil
}

func (u *User) ChangePassword(password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := hashPassword(password, u.salt)
	if err != nil {
		return err
	}
	u.passwordHash = hash
	return nil
}

func checkPassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, MinPasswordLength)
	}
	return nil
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// bcrypt reads at most 72 bytes, so the salted password is digested first.
func saltedDigest(password, salt string) []byte {
	sum := sha256.Sum256([]byte(salt + password))
	return []byte(hex.EncodeToString(sum[:]))
}

func hashPassword(password, salt string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(saltedDigest(password, salt), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
