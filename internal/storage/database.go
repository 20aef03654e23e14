package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rampa-app/rampa-backend/internal/models"
)

// sessionRecord is the flattened row behind a TransferSession
type sessionRecord struct {
	SenderPhone        string `gorm:"primaryKey;size:32"`
	Amount             float64
	Currency           string `gorm:"size:8"`
	RecipientAmount    float64
	ExchangeRate       float64
	Fee                float64
	Step               string `gorm:"size:32;not null"`
	HasRecipient       bool
	RecipientContactID string
	RecipientName      string
	RecipientPhone     string
	RecipientCountry   string
	RecipientAdHoc     bool
	Version            int64 `gorm:"not null;default:1"`
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string {
	return "transfer_sessions"
}

// sessionReplaceColumns is every column CreateSession overwrites when the
// sender already has a row. created_at is included so a replaced session
// starts fresh.
var sessionReplaceColumns = []string{
	"amount", "currency", "recipient_amount", "exchange_rate", "fee", "step",
	"has_recipient", "recipient_contact_id", "recipient_name", "recipient_phone",
	"recipient_country", "recipient_ad_hoc", "version", "created_at", "updated_at",
}

func toRecord(s *models.TransferSession) *sessionRecord {
	rec := &sessionRecord{
		SenderPhone:     s.SenderPhone,
		Amount:          s.Amount,
		Currency:        s.Currency,
		RecipientAmount: s.RecipientAmount,
		ExchangeRate:    s.ExchangeRate,
		Fee:             s.Fee,
		Step:            s.Step.String(),
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if r := s.Recipient; r != nil {
		rec.HasRecipient = true
		rec.RecipientContactID = r.ContactID
		rec.RecipientName = r.Name
		rec.RecipientPhone = r.Phone
		rec.RecipientCountry = r.Country
		rec.RecipientAdHoc = r.AdHoc
	}
	return rec
}

func (rec *sessionRecord) toSession() (*models.TransferSession, error) {
	step, err := models.ParseStep(rec.Step)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", rec.SenderPhone, err)
	}
	s := &models.TransferSession{
		SenderPhone:     rec.SenderPhone,
		Amount:          rec.Amount,
		Currency:        rec.Currency,
		RecipientAmount: rec.RecipientAmount,
		ExchangeRate:    rec.ExchangeRate,
		Fee:             rec.Fee,
		Step:            step,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.HasRecipient {
		s.Recipient = &models.Recipient{
			ContactID: rec.RecipientContactID,
			Name:      rec.RecipientName,
			Phone:     rec.RecipientPhone,
			Country:   rec.RecipientCountry,
			AdHoc:     rec.RecipientAdHoc,
		}
	}
	return s, nil
}

// DatabaseStore keeps sessions and the ledger in PostgreSQL through gorm, so
// several instances can share conversations.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps an open gorm handle
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Migrate creates or updates the tables this store needs
func (d *DatabaseStore) Migrate() error {
	return d.db.AutoMigrate(&sessionRecord{}, &models.Transfer{})
}

// Session operations
func (d *DatabaseStore) CreateSession(session *models.TransferSession) error {
	now := time.Now()
	session.Version = 1
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	rec := toRecord(session)
	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_phone"}},
		DoUpdates: clause.AssignmentColumns(sessionReplaceColumns),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetSession(phone string) (*models.TransferSession, error) {
	var rec sessionRecord
	err := d.db.Where("sender_phone = ?", phone).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec.toSession()
}

func (d *DatabaseStore) UpdateSession(phone string, patch models.SessionPatch) (*models.TransferSession, error) {
	var updated *models.TransferSession
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var rec sessionRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sender_phone = ?", phone).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		session, err := rec.toSession()
		if err != nil {
			return err
		}
		patch.Apply(session)
		session.Version++
		session.UpdatedAt = time.Now()

		if err := tx.Save(toRecord(session)).Error; err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return updated, nil
}

func (d *DatabaseStore) SwapSession(session *models.TransferSession) error {
	rec := toRecord(session)
	now := time.Now()

	result := d.db.Model(&sessionRecord{}).
		Where("sender_phone = ? AND version = ?", session.SenderPhone, session.Version).
		Updates(map[string]interface{}{
			"step":                 rec.Step,
			"has_recipient":        rec.HasRecipient,
			"recipient_contact_id": rec.RecipientContactID,
			"recipient_name":       rec.RecipientName,
			"recipient_phone":      rec.RecipientPhone,
			"recipient_country":    rec.RecipientCountry,
			"recipient_ad_hoc":     rec.RecipientAdHoc,
			"version":              gorm.Expr("version + 1"),
			"updated_at":           now,
		})
	if result.Error != nil {
		return fmt.Errorf("swap session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return d.missOrConflict(session.SenderPhone)
	}

	session.Version++
	session.UpdatedAt = now
	return nil
}

func (d *DatabaseStore) DeleteSession(phone string) error {
	err := d.db.Where("sender_phone = ?", phone).Delete(&sessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (d *DatabaseStore) CompareAndDeleteSession(phone string, version int64) error {
	result := d.db.Where("sender_phone = ? AND version = ?", phone, version).Delete(&sessionRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return d.missOrConflict(phone)
	}
	return nil
}

func (d *DatabaseStore) missOrConflict(phone string) error {
	var count int64
	if err := d.db.Model(&sessionRecord{}).Where("sender_phone = ?", phone).Count(&count).Error; err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return ErrVersionConflict
}

func (d *DatabaseStore) ListSessions() ([]*models.TransferSession, error) {
	var recs []sessionRecord
	if err := d.db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*models.TransferSession, 0, len(recs))
	for i := range recs {
		s, err := recs[i].toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Transfer operations
func (d *DatabaseStore) CreateTransfer(transfer *models.Transfer) error {
	if err := d.db.Create(transfer).Error; err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetTransfer(reference string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := d.db.Where("reference = ?", reference).First(&transfer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return &transfer, nil
}

func (d *DatabaseStore) UpdateTransferStatus(reference, from, to string) (*models.Transfer, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if to == models.TransferStatusCompleted {
		updates["completed_at"] = now
	}

	result := d.db.Model(&models.Transfer{}).
		Where("reference = ? AND status = ?", reference, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("update transfer: %w", result.Error)
	}

	transfer, err := d.GetTransfer(reference)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransferStateConflict, reference, transfer.Status)
	}
	return transfer, nil
}

func (d *DatabaseStore) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
