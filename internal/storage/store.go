package storage

import (
	"errors"

	"github.com/rampa-app/rampa-backend/internal/models"
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrVersionConflict       = errors.New("session version conflict")
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrTransferStateConflict = errors.New("transfer status conflict")
)

// Store defines the interface for storage operations
type Store interface {
	// Session operations
	CreateSession(session *models.TransferSession) error
	GetSession(phone string) (*models.TransferSession, error)
	UpdateSession(phone string, patch models.SessionPatch) (*models.TransferSession, error)
	SwapSession(session *models.TransferSession) error
	DeleteSession(phone string) error
	CompareAndDeleteSession(phone string, version int64) error
	ListSessions() ([]*models.TransferSession, error)

	// Transfer ledger operations
	CreateTransfer(transfer *models.Transfer) error
	GetTransfer(reference string) (*models.Transfer, error)
	UpdateTransferStatus(reference, from, to string) (*models.Transfer, error)

	Close() error
}
