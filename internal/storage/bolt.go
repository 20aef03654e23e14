package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/rampa-app/rampa-backend/internal/models"
)

var (
	sessionsBucket  = []byte("sessions")
	transfersBucket = []byte("transfers")
)

// BoltStore keeps sessions and the ledger in a local bbolt file. Sessions
// survive a restart of a single instance but are not shared between hosts.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the bbolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(transfersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Session operations
func (b *BoltStore) CreateSession(session *models.TransferSession) error {
	now := time.Now()
	session.Version = 1
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(sessionsBucket), session.SenderPhone, session)
	})
}

func (b *BoltStore) GetSession(phone string) (*models.TransferSession, error) {
	var session *models.TransferSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		s, err := getSession(tx, phone)
		session = s
		return err
	})
	return session, err
}

func (b *BoltStore) UpdateSession(phone string, patch models.SessionPatch) (*models.TransferSession, error) {
	var session *models.TransferSession
	err := b.db.Update(func(tx *bbolt.Tx) error {
		s, err := getSession(tx, phone)
		if err != nil {
			return err
		}
		patch.Apply(s)
		s.Version++
		s.UpdatedAt = time.Now()
		session = s
		return putJSON(tx.Bucket(sessionsBucket), phone, s)
	})
	return session, err
}

func (b *BoltStore) SwapSession(session *models.TransferSession) error {
	next := session.Clone()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		current, err := getSession(tx, session.SenderPhone)
		if err != nil {
			return err
		}
		if current.Version != session.Version {
			return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, current.Version, session.Version)
		}
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now()
		return putJSON(tx.Bucket(sessionsBucket), next.SenderPhone, next)
	})
	if err != nil {
		return err
	}
	session.Version = next.Version
	session.UpdatedAt = next.UpdatedAt
	return nil
}

func (b *BoltStore) DeleteSession(phone string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(phone))
	})
}

func (b *BoltStore) CompareAndDeleteSession(phone string, version int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		current, err := getSession(tx, phone)
		if err != nil {
			return err
		}
		if current.Version != version {
			return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, current.Version, version)
		}
		return tx.Bucket(sessionsBucket).Delete([]byte(phone))
	})
}

func (b *BoltStore) ListSessions() ([]*models.TransferSession, error) {
	var sessions []*models.TransferSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var s models.TransferSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode session %s: %w", k, err)
			}
			sessions = append(sessions, &s)
			return nil
		})
	})
	return sessions, err
}

// Transfer operations
func (b *BoltStore) CreateTransfer(transfer *models.Transfer) error {
	now := time.Now()
	transfer.CreatedAt = now
	transfer.UpdatedAt = now

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transfersBucket)
		if bucket.Get([]byte(transfer.Reference)) != nil {
			return fmt.Errorf("transfer %s already exists", transfer.Reference)
		}
		return putJSON(bucket, transfer.Reference, transfer)
	})
}

func (b *BoltStore) GetTransfer(reference string) (*models.Transfer, error) {
	var transfer *models.Transfer
	err := b.db.View(func(tx *bbolt.Tx) error {
		t, err := getTransfer(tx, reference)
		transfer = t
		return err
	})
	return transfer, err
}

func (b *BoltStore) UpdateTransferStatus(reference, from, to string) (*models.Transfer, error) {
	var transfer *models.Transfer
	err := b.db.Update(func(tx *bbolt.Tx) error {
		t, err := getTransfer(tx, reference)
		if err != nil {
			return err
		}
		if t.Status != from {
			return fmt.Errorf("%w: %s is %s", ErrTransferStateConflict, reference, t.Status)
		}

		now := time.Now()
		t.Status = to
		t.UpdatedAt = now
		if to == models.TransferStatusCompleted {
			t.CompletedAt = &now
		}
		transfer = t
		return putJSON(tx.Bucket(transfersBucket), reference, t)
	})
	return transfer, err
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func getSession(tx *bbolt.Tx, phone string) (*models.TransferSession, error) {
	data := tx.Bucket(sessionsBucket).Get([]byte(phone))
	if data == nil {
		return nil, ErrSessionNotFound
	}
	var s models.TransferSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", phone, err)
	}
	return &s, nil
}

func getTransfer(tx *bbolt.Tx, reference string) (*models.Transfer, error) {
	data := tx.Bucket(transfersBucket).Get([]byte(reference))
	if data == nil {
		return nil, ErrTransferNotFound
	}
	var t models.Transfer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transfer %s: %w", reference, err)
	}
	return &t, nil
}

func putJSON(bucket *bbolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), data)
}
