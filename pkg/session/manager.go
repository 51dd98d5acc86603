package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/loki-oidc/loki-splice/pkg/logger"
)

// LedgerDeleter is the narrow slice of the Ledger Store a Manager needs to
// cascade a session deletion into its entries. pkg/ledger's Store satisfies
// this without either package importing the other.
type LedgerDeleter interface {
	DeleteSession(id string) error
}

// Manager holds the live set of sessions and coordinates deletion so that
// a session and its ledger entries disappear atomically, per spec.md
// §4.D and the concurrency model's session-map requirement.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ledger   LedgerDeleter
}

// NewManager constructs an empty Manager. ledger may be nil, in which case
// Delete only removes the in-memory session (used in tests that don't
// exercise persistence).
func NewManager(ledger LedgerDeleter) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ledger:   ledger,
	}
}

// Add registers s under its own id. Re-adding an existing id overwrites it.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

// Get returns the session for id, or false if absent.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns all live sessions, ordered by descending start time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt().After(out[j].StartedAt()) })
	return out
}

// Delete removes the session for id from the in-memory map and, if a
// ledger was configured, cascades the removal to its persisted entries.
// The in-memory removal and the ledger cascade both happen under the
// manager's write lock so a concurrent Get never observes the session
// without also losing its entries.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return nil
	}
	if m.ledger != nil {
		if err := m.ledger.DeleteSession(id); err != nil {
			return fmt.Errorf("session: cascade delete %s: %w", id, err)
		}
	}
	delete(m.sessions, id)
	logger.Infow("session: deleted", "id", id)
	return nil
}
