package auth

import (
	"golang.org/x/crypto/bcrypt"

	serrors "go.pilab.hu/authd/errors"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes; longer passwords are refused.
	maxPasswordLength = 72
)

var (
	ErrPasswordTooShort = serrors.Validationf("The password must be at least %d characters long.", minPasswordLength)
	ErrPasswordTooLong  = serrors.Validationf("The password must be at most %d bytes long.", maxPasswordLength)
)

// PasswordHasher hashes and verifies resource owner passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// BcryptPasswordHasher hashes with bcrypt at a fixed cost.
type BcryptPasswordHasher struct {
	cost int
}

// NewBcryptPasswordHasher uses bcrypt.DefaultCost when cost is out of range.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

// Hash enforces the length policy and returns the bcrypt hash.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	switch {
	case len(password) < minPasswordLength:
		return "", ErrPasswordTooShort
	case len(password) > maxPasswordLength:
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", serrors.Internal("hash password", err)
	}
	return string(hashed), nil
}

func (h *BcryptPasswordHasher) Verify(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
