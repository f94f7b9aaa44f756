// Package auth is the credential-check collaborator: the sync engine only
// consumes its boolean outcome and the admin flag.
package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/peykchat/peyk/internal/store"
)

// ErrInvalidCredentials is returned for unknown users, wrong passwords and
// empty fields alike, so callers cannot distinguish which one failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// HashPassword returns the bcrypt hash for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Check verifies a username/password pair against the account table and
// returns the account's admin flag.
func Check(ctx context.Context, st store.EventStore, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, ErrInvalidCredentials
	}

	account, err := st.GetAccount(ctx, username)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return false, ErrInvalidCredentials
	}
	return account.Admin, nil
}

// SeedAdmin creates the default admin account if it does not exist yet.
func SeedAdmin(ctx context.Context, st store.EventStore, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return st.CreateAccount(ctx, "admin", hash, true)
}
