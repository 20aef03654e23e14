package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rampa-app/rampa-backend/internal/models"
)

// MemoryStore keeps sessions and the ledger in process memory. Nothing
// survives a restart and nothing is shared between instances.
type MemoryStore struct {
	sessions  map[string]*models.TransferSession
	transfers map[string]*models.Transfer

	sessionMu  sync.RWMutex
	transferMu sync.RWMutex

	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.TransferSession),
		transfers: make(map[string]*models.Transfer),
		now:       time.Now,
	}
}

// Session operations
func (m *MemoryStore) CreateSession(session *models.TransferSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	now := m.now()
	stored := session.Clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.sessions[stored.SenderPhone] = stored
	session.Version = stored.Version
	session.CreatedAt = stored.CreatedAt
	session.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) GetSession(phone string) (*models.TransferSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[phone]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *MemoryStore) UpdateSession(phone string, patch models.SessionPatch) (*models.TransferSession, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	session, exists := m.sessions[phone]
	if !exists {
		return nil, ErrSessionNotFound
	}

	patch.Apply(session)
	session.Version++
	session.UpdatedAt = m.now()
	return session.Clone(), nil
}

func (m *MemoryStore) SwapSession(session *models.TransferSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	current, exists := m.sessions[session.SenderPhone]
	if !exists {
		return ErrSessionNotFound
	}
	if current.Version != session.Version {
		return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, current.Version, session.Version)
	}

	stored := session.Clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = m.now()
	m.sessions[stored.SenderPhone] = stored

	session.Version = stored.Version
	session.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) DeleteSession(phone string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	delete(m.sessions, phone)
	return nil
}

func (m *MemoryStore) CompareAndDeleteSession(phone string, version int64) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	current, exists := m.sessions[phone]
	if !exists {
		return ErrSessionNotFound
	}
	if current.Version != version {
		return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, current.Version, version)
	}
	delete(m.sessions, phone)
	return nil
}

func (m *MemoryStore) ListSessions() ([]*models.TransferSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	sessions := make([]*models.TransferSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session.Clone())
	}
	return sessions, nil
}

// Transfer operations
func (m *MemoryStore) CreateTransfer(transfer *models.Transfer) error {
	m.transferMu.Lock()
	defer m.transferMu.Unlock()

	if _, exists := m.transfers[transfer.Reference]; exists {
		return fmt.Errorf("transfer %s already exists", transfer.Reference)
	}

	now := m.now()
	transfer.CreatedAt = now
	transfer.UpdatedAt = now
	stored := *transfer
	m.transfers[transfer.Reference] = &stored
	return nil
}

func (m *MemoryStore) GetTransfer(reference string) (*models.Transfer, error) {
	m.transferMu.RLock()
	defer m.transferMu.RUnlock()

	transfer, exists := m.transfers[reference]
	if !exists {
		return nil, ErrTransferNotFound
	}
	c := *transfer
	return &c, nil
}

func (m *MemoryStore) UpdateTransferStatus(reference, from, to string) (*models.Transfer, error) {
	m.transferMu.Lock()
	defer m.transferMu.Unlock()

	transfer, exists := m.transfers[reference]
	if !exists {
		return nil, ErrTransferNotFound
	}
	if transfer.Status != from {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransferStateConflict, reference, transfer.Status)
	}

	now := m.now()
	transfer.Status = to
	transfer.UpdatedAt = now
	if to == models.TransferStatusCompleted {
		transfer.CompletedAt = &now
	}
	c := *transfer
	return &c, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
