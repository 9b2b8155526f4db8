package auth

import "sync"

// MockStore is an in-memory CredentialStore with injectable failures.
type MockStore struct {
	accounts map[string]*Account
	mu       sync.RWMutex

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{accounts: make(map[string]*Account)}
}

func (m *MockStore) Store(account *Account) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if account == nil || account.Email == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *account
	m.accounts[accountKey(account.Email)] = &cp
	return nil
}

func (m *MockStore) Retrieve(email string) (*Account, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountKey(email)]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	cp := *account
	return &cp, nil
}

func (m *MockStore) List() ([]*Account, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		cp := *account
		accounts = append(accounts, &cp)
	}
	return accounts, nil
}

func (m *MockStore) Delete(email string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if email == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(email)
	if _, ok := m.accounts[key]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, key)
	return nil
}

func (m *MockStore) Exists(email string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.accounts[accountKey(email)]
	return ok
}

// Count returns the number of stored accounts.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// NewMockManager creates a Manager backed by a single MockStore.
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return &Manager{stores: []CredentialStore{store}}, store
}

// NewManagerWithStores creates a Manager that consults stores in order.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
