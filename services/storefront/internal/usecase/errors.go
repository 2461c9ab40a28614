package usecase

import (
	"errors"
	"fmt"
	"strings"
)

// MinPasswordLength is the shortest password accepted on signup and reset.
const MinPasswordLength = 6

var (
	ErrAccountNotFound    = errors.New("email account does not exist")
	ErrCredentialMismatch = errors.New("password is incorrect")
	ErrDuplicateEmail     = errors.New("email exists already")
	ErrPasswordMismatch   = errors.New("password and confirmed password are different")
	ErrWeakPassword       = errors.New("password minimum length is 6")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token is expired")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
