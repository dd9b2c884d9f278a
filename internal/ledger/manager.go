package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Manager hands out one virtual account per strategy id, plus a shared default
// account for callers not tied to a strategy. Build one Manager at process
// start and pass it to whatever needs accounts.
//
// Accounts are created lazily and never destroyed while the process lives, so
// trade history and profit/loss stay queryable after a strategy stops.
type Manager struct {
	mu             sync.Mutex
	initialBalance decimal.Decimal
	accounts       map[string]*Account
	defaultAccount *Account
}

// NewManager creates a manager whose accounts start with initialBalance cash.
func NewManager(initialBalance decimal.Decimal) *Manager {
	return &Manager{
		initialBalance: initialBalance,
		accounts:       make(map[string]*Account),
	}
}

// Account returns the account for the strategy id, creating it on first use.
func (m *Manager) Account(strategyID string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[strategyID]
	if !ok {
		// initialBalance is validated positive at construction sites; a
		// failure here would be a programming error, so keep the nil.
		acct, _ = NewAccount(m.initialBalance)
		m.accounts[strategyID] = acct
	}
	return acct
}

// Default returns the shared default account.
func (m *Manager) Default() *Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.defaultAccount == nil {
		m.defaultAccount, _ = NewAccount(m.initialBalance)
	}
	return m.defaultAccount
}

// Remove drops the account for the strategy id. Intended for tests and for
// explicit operator cleanup; a stopped strategy keeps its account.
func (m *Manager) Remove(strategyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, strategyID)
}

// All returns a snapshot of the strategy-id -> account mapping.
func (m *Manager) All() map[string]*Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*Account, len(m.accounts))
	for id, acct := range m.accounts {
		out[id] = acct
	}
	return out
}
