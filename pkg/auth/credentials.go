package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const (
	placeholderEmail    = "your-email@example.com"
	placeholderPassword = "your-password"

	msgEmailMissing    = "Email not configured. Please set WELLBIN_EMAIL or use --email"
	msgPasswordMissing = "Password not configured. Please set WELLBIN_PASSWORD or use --password"
	msgValidated       = "Credentials validated"
)

// Account is a stored portal login.
type Account struct {
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(email string) (*Account, error)
	List() ([]*Account, error)
	Delete(email string) error
	Exists(email string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keyring when
// available, an encrypted file in the user config directory, and finally the
// WELLBIN_EMAIL / WELLBIN_PASSWORD environment variables.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// ValidateCredentials checks that both values are present and are not the
// placeholders written by the env template. The message is suitable for
// showing to the user as is.
func ValidateCredentials(email, password string) (bool, string) {
	email = strings.TrimSpace(email)
	if email == "" || email == placeholderEmail {
		return false, msgEmailMissing
	}
	if password == "" || password == placeholderPassword {
		return false, msgPasswordMissing
	}
	return true, msgValidated
}

// Store saves credentials using the first store that accepts them.
func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	if ok, msg := ValidateCredentials(account.Email, account.Password); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(email string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(email); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrCredentialsNotFound, email)
}

// RetrieveDefault prefers the environment, then the most recently modified
// stored account.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// Resolve fills in whichever of email and password is missing from stored
// credentials. Explicit values always win.
func (m *Manager) Resolve(email, password string) (string, string) {
	if email != "" && password != "" {
		return email, password
	}

	var account *Account
	var err error
	if email != "" {
		account, err = m.Retrieve(email)
	} else {
		account, err = m.RetrieveDefault()
	}
	if err != nil {
		return email, password
	}

	if email == "" {
		email = account.Email
	}
	if password == "" && strings.EqualFold(account.Email, email) {
		password = account.Password
	}
	return email, password
}

// List returns the accounts of every store, newest first, one per email.
func (m *Manager) List() ([]*Account, error) {
	byEmail := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			key := strings.ToLower(account.Email)
			if existing, ok := byEmail[key]; !ok || account.LastModified.After(existing.LastModified) {
				byEmail[key] = account
			}
		}
	}

	result := make([]*Account, 0, len(byEmail))
	for _, account := range byEmail {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastModified.Equal(result[j].LastModified) {
			return result[i].Email < result[j].Email
		}
		return result[i].LastModified.After(result[j].LastModified)
	})

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(email string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(email); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w for %s", ErrCredentialsNotFound, email)
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}

	for _, account := range accounts {
		_ = m.Delete(account.Email)
	}

	return nil
}

func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "wellbin")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "wellbin")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "wellbin")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "wellbin")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount returns a copy safe for display.
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Email:        account.Email,
		Password:     maskString(account.Password),
		LastModified: account.LastModified,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:2] + "..." + s[len(s)-2:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
