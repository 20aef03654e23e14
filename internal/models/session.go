package models

import (
	"fmt"
	"time"
)

// Step is the position of a sender inside the transfer conversation
type Step int

const (
	StepChoosingRecipient Step = iota + 1
	StepWaitingForPhone
	StepConfirmingTransfer
)

func (s Step) String() string {
	switch s {
	case StepChoosingRecipient:
		return "choosing_recipient"
	case StepWaitingForPhone:
		return "waiting_for_phone"
	case StepConfirmingTransfer:
		return "confirming_transfer"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ParseStep is the inverse of Step.String
func ParseStep(s string) (Step, error) {
	switch s {
	case "choosing_recipient":
		return StepChoosingRecipient, nil
	case "waiting_for_phone":
		return StepWaitingForPhone, nil
	case "confirming_transfer":
		return StepConfirmingTransfer, nil
	}
	return 0, fmt.Errorf("unknown step %q", s)
}

// TransferSession is one sender's in-progress transfer conversation.
// Version is bumped by the store on every write.
type TransferSession struct {
	SenderPhone     string     `json:"sender_phone"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	RecipientAmount float64    `json:"recipient_amount"`
	ExchangeRate    float64    `json:"exchange_rate,omitempty"`
	Fee             float64    `json:"fee,omitempty"`
	Step            Step       `json:"step"`
	Recipient       *Recipient `json:"recipient,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers never share a Recipient pointer
func (s *TransferSession) Clone() *TransferSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Recipient != nil {
		r := *s.Recipient
		c.Recipient = &r
	}
	return &c
}

// SessionPatch holds the fields UpdateSession merges into a stored session.
// Nil fields are left untouched.
type SessionPatch struct {
	Step           *Step
	Recipient      *Recipient
	ClearRecipient bool
}

// Apply merges the patch into s
func (p SessionPatch) Apply(s *TransferSession) {
	if p.Step != nil {
		s.Step = *p.Step
	}
	if p.ClearRecipient {
		s.Recipient = nil
	}
	if p.Recipient != nil {
		r := *p.Recipient
		s.Recipient = &r
	}
}
