package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rampa-app/rampa-backend/internal/models"
	"github.com/rampa-app/rampa-backend/internal/storage"
	"github.com/rampa-app/rampa-backend/internal/utils"
)

// SettlementSimulator imitates asynchronous settlement of a confirmed
// transfer: a "processing" notice now and a "completed" notice after delay.
// It moves no funds.
type SettlementSimulator struct {
	store        storage.Store
	gateway      MessageGateway
	scheduler    Scheduler
	delay        time.Duration
	newReference func() string
}

// NewSettlementSimulator creates a simulator that completes transfers after delay
func NewSettlementSimulator(store storage.Store, gateway MessageGateway, scheduler Scheduler, delay time.Duration) *SettlementSimulator {
	return &SettlementSimulator{
		store:        store,
		gateway:      gateway,
		scheduler:    scheduler,
		delay:        delay,
		newReference: utils.GenerateTransferReference,
	}
}

// Settle records the transfer, notifies both parties that it is processing
// and schedules the completion notice
func (s *SettlementSimulator) Settle(ctx context.Context, session *models.TransferSession) (*models.Transfer, error) {
	if session.Recipient == nil {
		return nil, fmt.Errorf("session %s has no recipient", session.SenderPhone)
	}

	transfer := &models.Transfer{
		Reference:        s.newReference(),
		SenderPhone:      session.SenderPhone,
		RecipientName:    session.Recipient.Name,
		RecipientPhone:   session.Recipient.Phone,
		RecipientCountry: session.Recipient.Country,
		Amount:           session.Amount,
		Currency:         session.Currency,
		RecipientAmount:  session.RecipientAmount,
		Status:           models.TransferStatusProcessing,
	}
	if err := s.store.CreateTransfer(transfer); err != nil {
		return nil, fmt.Errorf("record transfer: %w", err)
	}
	log.Printf("💸 Transfer %s confirmed by %s: %.2f %s to %s",
		transfer.Reference, transfer.SenderPhone, transfer.Amount, transfer.Currency, transfer.RecipientName)

	s.notify(ctx, transfer, processingSenderMessage(transfer), processingRecipientMessage(transfer))

	reference := transfer.Reference
	s.scheduler.Schedule(reference, s.delay, func() {
		s.complete(reference)
	})
	return transfer, nil
}

// Cancel stops a pending completion and marks the transfer cancelled
func (s *SettlementSimulator) Cancel(ctx context.Context, reference string) (*models.Transfer, error) {
	transfer, err := s.store.UpdateTransferStatus(reference, models.TransferStatusProcessing, models.TransferStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.scheduler.Cancel(reference)
	log.Printf("🚫 Transfer %s cancelled", reference)

	if err := s.gateway.Send(ctx, transfer.SenderPhone, transferCancelledMessage(transfer)); err != nil {
		log.Printf("Failed to notify %s about cancelled transfer %s: %v", transfer.SenderPhone, reference, err)
	}
	return transfer, nil
}

// Pending returns how many completions are still scheduled
func (s *SettlementSimulator) Pending() int {
	return s.scheduler.Pending()
}

// Stop drops all scheduled completions
func (s *SettlementSimulator) Stop() {
	s.scheduler.Stop()
}

func (s *SettlementSimulator) complete(reference string) {
	transfer, err := s.store.UpdateTransferStatus(reference, models.TransferStatusProcessing, models.TransferStatusCompleted)
	if errors.Is(err, storage.ErrTransferStateConflict) {
		log.Printf("Skipping completion of %s: no longer processing", reference)
		return
	}
	if err != nil {
		log.Printf("❌ Failed to complete transfer %s: %v", reference, err)
		return
	}

	log.Printf("✅ Transfer %s completed", reference)
	s.notify(context.Background(), transfer, completedSenderMessage(transfer), completedRecipientMessage(transfer))
}

// notify messages the sender and, when the phone looks valid, the recipient.
// Failures are logged only.
func (s *SettlementSimulator) notify(ctx context.Context, transfer *models.Transfer, senderBody, recipientBody string) {
	if err := s.gateway.Send(ctx, transfer.SenderPhone, senderBody); err != nil {
		log.Printf("❌ Failed to notify sender %s about %s: %v", transfer.SenderPhone, transfer.Reference, err)
	}

	if !utils.IsValidPhone(transfer.RecipientPhone) {
		return
	}
	if err := s.gateway.Send(ctx, transfer.RecipientPhone, recipientBody); err != nil {
		log.Printf("⚠️  Failed to notify recipient %s about %s: %v", transfer.RecipientPhone, transfer.Reference, err)
	}
}
