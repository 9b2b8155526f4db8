package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "wellbin"
	keyringPrefix  = "account:"
	keyringCheck   = "availability-check"
)

// KeyringStore keeps one JSON-encoded Account per email in the system keychain.
type KeyringStore struct{}

// NewKeyringStore returns an error when no keychain backend answers.
func NewKeyringStore() (*KeyringStore, error) {
	if err := keyring.Set(keyringService, keyringCheck, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, keyringCheck)

	return &KeyringStore{}, nil
}

// IsKeyringAvailable reports whether credentials would go to the keychain.
func IsKeyringAvailable() bool {
	_, err := NewKeyringStore()
	return err == nil
}

func keyringKey(email string) string {
	return keyringPrefix + strings.ToLower(strings.TrimSpace(email))
}

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Email == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := keyring.Set(keyringService, keyringKey(account.Email), string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(email string) (*Account, error) {
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringKey(email))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// List always returns nothing: go-keyring cannot enumerate entries.
func (k *KeyringStore) List() ([]*Account, error) {
	return []*Account{}, nil
}

func (k *KeyringStore) Delete(email string) error {
	if email == "" {
		return ErrInvalidCredentials
	}

	if err := keyring.Delete(keyringService, keyringKey(email)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(email string) bool {
	if email == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringKey(email))
	return err == nil
}
