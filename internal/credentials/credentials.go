// Package credentials stores SAP passwords in the OS credential store.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service name for the OS credential store.
const Service = "abap-adt-mcp"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("no password stored")

// Store manages SAP passwords in the OS keyring.
type Store struct {
	service string
}

// NewStore creates a store using the default service name.
func NewStore() *Store {
	return &Store{service: Service}
}

// Account returns the keyring account for a user on a SAP system, so the
// same user name on two systems does not share a password.
func Account(baseURL, username string) string {
	user := strings.ToUpper(strings.TrimSpace(username))
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return user + "@" + strings.ToLower(u.Host)
	}
	return user
}

// Password retrieves the stored password for an account.
func (s *Store) Password(account string) (string, error) {
	pw, err := keyring.Get(s.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w for %s", ErrNotFound, account)
		}
		return "", fmt.Errorf("failed to retrieve password from credential store: %w", err)
	}
	return pw, nil
}

// SetPassword stores or replaces the password of an account.
func (s *Store) SetPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("account cannot be empty")
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if err := keyring.Set(s.service, account, password); err != nil {
		return fmt.Errorf("failed to store password in credential store: %w", err)
	}
	return nil
}

// DeletePassword removes a stored password. Deleting a missing entry is not an error.
func (s *Store) DeletePassword(account string) error {
	err := keyring.Delete(s.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from credential store: %w", err)
	}
	return nil
}
