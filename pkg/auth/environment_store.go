package auth

import (
	"os"
	"strings"
	"time"
)

const (
	EnvEmail    = "WELLBIN_EMAIL"
	EnvPassword = "WELLBIN_PASSWORD"
)

// EnvironmentStore is a read-only store over WELLBIN_EMAIL and WELLBIN_PASSWORD.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. A non-empty email must match it.
func (e *EnvironmentStore) Retrieve(email string) (*Account, error) {
	envEmail := os.Getenv(EnvEmail)
	envPassword := os.Getenv(EnvPassword)

	if ok, _ := ValidateCredentials(envEmail, envPassword); !ok {
		return nil, ErrCredentialsNotFound
	}
	if email != "" && !strings.EqualFold(email, envEmail) {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Email:        envEmail,
		Password:     envPassword,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(email string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(email string) bool {
	_, err := e.Retrieve(email)
	return err == nil
}
