package models

import "time"

// Transfer is the ledger entry written when a sender confirms a session
type Transfer struct {
	Reference        string     `gorm:"primaryKey;size:32" json:"reference"`
	SenderPhone      string     `gorm:"index;not null" json:"sender_phone"`
	RecipientName    string     `json:"recipient_name"`
	RecipientPhone   string     `json:"recipient_phone"`
	RecipientCountry string     `json:"recipient_country"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	RecipientAmount  float64    `json:"recipient_amount"`
	Status           string     `gorm:"index;not null" json:"status"` // processing, completed, cancelled
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Transfer status constants
const (
	TransferStatusProcessing = "processing"
	TransferStatusCompleted  = "completed"
	TransferStatusCancelled  = "cancelled"
)
