package cryptoutil

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/authgate/internal/xerrors"
)

// MinPasswordCost is the lowest bcrypt cost accepted in a credentials document.
const MinPasswordCost = 10

// bcrypt silently ignores input past this length
const maxPasswordBytes = 72

var (
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrPasswordTooLong  = errors.New("password longer than 72 bytes")
)

// HashPassword returns a bcrypt hash of password at cost, clamped to at
// least MinPasswordCost.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if cost < MinPasswordCost {
		cost = MinPasswordCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", xerrors.Wrap(err, "bcrypt hash")
	}
	return string(h), nil
}

// ComparePassword returns nil when password matches hash and
// ErrPasswordMismatch otherwise. Passwords over 72 bytes never match, since
// bcrypt would only compare their prefix. Other errors mean the hash is
// unusable.
func ComparePassword(hash, password string) error {
	if len(password) > maxPasswordBytes {
		return ErrPasswordMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return xerrors.Wrap(err, "bcrypt compare")
	}
}

// PasswordCost reports the cost of a bcrypt hash, failing for anything that
// is not one.
func PasswordCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, xerrors.Wrap(err, "not a bcrypt hash")
	}
	return cost, nil
}
