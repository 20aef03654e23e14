package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rampa-app/rampa-backend/internal/models"
	"github.com/rampa-app/rampa-backend/internal/storage"
	"github.com/rampa-app/rampa-backend/internal/utils"
)

// maxTransitionAttempts bounds optimistic retries when two messages from the
// same sender race on one session
const maxTransitionAttempts = 3

// ErrInvalidRequest marks caller mistakes in an initiation request
var ErrInvalidRequest = errors.New("invalid transfer request")

// InitiateRequest carries the terms chosen in the app before the WhatsApp
// conversation starts
type InitiateRequest struct {
	SenderPhone     string
	Amount          float64
	Currency        string
	RecipientAmount float64
	ExchangeRate    float64
	Fee             float64
}

// Validate checks required fields
func (r InitiateRequest) Validate() error {
	var missing []string
	if utils.NormalizePhone(r.SenderPhone) == "" {
		missing = append(missing, "senderPhone")
	}
	if r.Amount <= 0 {
		missing = append(missing, "transferData.amount")
	}
	if strings.TrimSpace(r.Currency) == "" {
		missing = append(missing, "transferData.currency")
	}
	if r.RecipientAmount < 0 {
		missing = append(missing, "transferData.recipientAmount")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// TransferService runs the WhatsApp transfer conversation end to end
type TransferService struct {
	store        storage.Store
	gateway      MessageGateway
	conversation *Conversation
	settlement   *SettlementSimulator
}

// NewTransferService wires the conversation to storage, messaging and settlement
func NewTransferService(store storage.Store, gateway MessageGateway, conversation *Conversation, settlement *SettlementSimulator) *TransferService {
	return &TransferService{
		store:        store,
		gateway:      gateway,
		conversation: conversation,
		settlement:   settlement,
	}
}

// Initiate starts (or restarts) a sender's transfer conversation and sends
// the recipient menu
func (s *TransferService) Initiate(ctx context.Context, req InitiateRequest) (*models.TransferSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session := &models.TransferSession{
		SenderPhone:     utils.NormalizePhone(req.SenderPhone),
		Amount:          req.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		RecipientAmount: req.RecipientAmount,
		ExchangeRate:    req.ExchangeRate,
		Fee:             req.Fee,
		Step:            models.StepChoosingRecipient,
	}
	if err := s.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Printf("🆕 Transfer session started for %s: %.2f %s", session.SenderPhone, session.Amount, session.Currency)

	menu := s.conversation.RecipientMenu(session)
	if err := s.gateway.Send(ctx, menu.To, menu.Body); err != nil {
		if delErr := s.store.DeleteSession(session.SenderPhone); delErr != nil {
			log.Printf("Failed to clear session for %s: %v", session.SenderPhone, delErr)
		}
		return nil, fmt.Errorf("send recipient menu: %w", err)
	}
	return session, nil
}

// HandleInbound feeds one WhatsApp message into the conversation and returns
// the messages that were dispatched
func (s *TransferService) HandleInbound(ctx context.Context, phone, text string) ([]OutboundMessage, error) {
	phone = utils.NormalizePhone(phone)

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		session, err := s.store.GetSession(phone)
		if errors.Is(err, storage.ErrSessionNotFound) {
			session = nil
		} else if err != nil {
			return nil, s.fail(ctx, phone, fmt.Errorf("load session: %w", err))
		}

		decision, err := s.conversation.Next(session, phone, text)
		if err != nil {
			return nil, s.fail(ctx, phone, err)
		}

		err = s.apply(session, decision)
		if isRace(err) {
			log.Printf("Session for %s changed concurrently (attempt %d), retrying", phone, attempt)
			continue
		}
		if err != nil {
			return nil, s.fail(ctx, phone, err)
		}

		s.dispatch(ctx, decision.Messages)

		if decision.Settle != nil {
			if _, err := s.settlement.Settle(ctx, decision.Settle); err != nil {
				return decision.Messages, s.fail(ctx, phone, err)
			}
		}
		return decision.Messages, nil
	}

	return nil, fmt.Errorf("session %s: %w after %d attempts", phone, storage.ErrVersionConflict, maxTransitionAttempts)
}

// Transfer looks up a ledger entry
func (s *TransferService) Transfer(reference string) (*models.Transfer, error) {
	return s.store.GetTransfer(reference)
}

// CancelTransfer cancels a transfer whose completion is still pending
func (s *TransferService) CancelTransfer(ctx context.Context, reference string) (*models.Transfer, error) {
	return s.settlement.Cancel(ctx, reference)
}

// ExpireIdleSessions removes sessions idle for longer than ttl and tells
// their senders. It returns how many were expired.
func (s *TransferService) ExpireIdleSessions(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	expired := 0
	for _, session := range sessions {
		if now.Sub(session.UpdatedAt) < ttl {
			continue
		}
		err := s.store.CompareAndDeleteSession(session.SenderPhone, session.Version)
		if isRace(err) {
			// the sender was active since we listed
			continue
		}
		if err != nil {
			log.Printf("Failed to expire session for %s: %v", session.SenderPhone, err)
			continue
		}

		expired++
		log.Printf("⌛ Expired idle session for %s (step %s)", session.SenderPhone, session.Step)
		if err := s.gateway.Send(ctx, session.SenderPhone, expiredMessage(session)); err != nil {
			log.Printf("Failed to send expiry notice to %s: %v", session.SenderPhone, err)
		}
	}
	return expired, nil
}

// ActiveSessions counts sessions currently stored
func (s *TransferService) ActiveSessions() (int, error) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// PendingSettlements counts scheduled completion notices
func (s *TransferService) PendingSettlements() int {
	return s.settlement.Pending()
}

// apply persists a decision. A reply-only decision still rewrites the
// session unchanged so its UpdatedAt tracks the sender's last message.
func (s *TransferService) apply(current *models.TransferSession, d Decision) error {
	switch {
	case d.Delete:
		return s.store.CompareAndDeleteSession(current.SenderPhone, current.Version)
	case d.Session != nil:
		return s.store.SwapSession(d.Session)
	case current != nil:
		return s.store.SwapSession(current.Clone())
	}
	return nil
}

func (s *TransferService) dispatch(ctx context.Context, messages []OutboundMessage) {
	for _, m := range messages {
		if err := s.gateway.Send(ctx, m.To, m.Body); err != nil {
			log.Printf("❌ Failed to send message to %s: %v", m.To, err)
		}
	}
}

// fail clears whatever session the sender had and apologises
func (s *TransferService) fail(ctx context.Context, phone string, cause error) error {
	log.Printf("❌ Transfer conversation for %s failed: %v", phone, cause)

	if err := s.store.DeleteSession(phone); err != nil {
		log.Printf("Failed to clear session for %s: %v", phone, err)
	}
	if err := s.gateway.Send(ctx, phone, apologyMessage()); err != nil {
		log.Printf("Failed to send apology to %s: %v", phone, err)
	}
	return cause
}

func isRace(err error) bool {
	return errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrSessionNotFound)
}
