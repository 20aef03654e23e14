package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/auth"
	"github.com/rampa-app/rampa-backend/internal/middleware"
	"github.com/rampa-app/rampa-backend/internal/models"
	"github.com/rampa-app/rampa-backend/internal/services"
	"github.com/rampa-app/rampa-backend/internal/storage"
	"github.com/rampa-app/rampa-backend/internal/utils"
)

// transferService is what the transfer API needs from the service layer
type transferService interface {
	Initiate(ctx context.Context, req services.InitiateRequest) (*models.TransferSession, error)
	Transfer(reference string) (*models.Transfer, error)
	CancelTransfer(ctx context.Context, reference string) (*models.Transfer, error)
}

// TransferHandler handles transfer requests coming from the app
type TransferHandler struct {
	transfers transferService
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// InitiateTransferRequest is the JSON body of POST /api/transfers/initiate
type InitiateTransferRequest struct {
	SenderPhone  string `json:"senderPhone"`
	TransferData *struct {
		Amount          float64 `json:"amount"`
		RecipientAmount float64 `json:"recipientAmount"`
		Currency        string  `json:"currency"`
		ExchangeRate    float64 `json:"exchangeRate"`
		Fee             float64 `json:"fee"`
	} `json:"transferData"`
}

// InitiateTransfer starts the WhatsApp recipient selection for a sender
func (h *TransferHandler) InitiateTransfer(c *fiber.Ctx) error {
	var req InitiateTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SenderPhone == "" || req.TransferData == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "senderPhone and transferData are required",
		})
	}
	if !callerOwns(c, req.SenderPhone) {
		return forbidden(c)
	}

	session, err := h.transfers.Initiate(c.UserContext(), services.InitiateRequest{
		SenderPhone:     req.SenderPhone,
		Amount:          req.TransferData.Amount,
		Currency:        req.TransferData.Currency,
		RecipientAmount: req.TransferData.RecipientAmount,
		ExchangeRate:    req.TransferData.ExchangeRate,
		Fee:             req.TransferData.Fee,
	})
	if errors.Is(err, services.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ Failed to initiate transfer for %s: %v", req.SenderPhone, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start WhatsApp conversation",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Recipient selection sent via WhatsApp",
		"session": session,
	})
}

// GetTransfer returns a ledger entry by reference
func (h *TransferHandler) GetTransfer(c *fiber.Ctx) error {
	transfer, err := h.ownedTransfer(c)
	if err != nil || transfer == nil {
		return err
	}
	return c.JSON(transfer)
}

// CancelTransfer cancels a transfer that has not completed yet
func (h *TransferHandler) CancelTransfer(c *fiber.Ctx) error {
	owned, err := h.ownedTransfer(c)
	if err != nil || owned == nil {
		return err
	}

	transfer, err := h.transfers.CancelTransfer(c.UserContext(), owned.Reference)
	switch {
	case errors.Is(err, storage.ErrTransferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transfer not found",
		})
	case errors.Is(err, storage.ErrTransferStateConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Transfer can no longer be cancelled",
		})
	case err != nil:
		log.Printf("Failed to cancel transfer %s: %v", c.Params("reference"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel transfer",
		})
	}
	return c.JSON(transfer)
}

// ownedTransfer loads the transfer named in the path and checks the caller may
// see it. A nil transfer means the response has already been written.
func (h *TransferHandler) ownedTransfer(c *fiber.Ctx) (*models.Transfer, error) {
	reference := c.Params("reference")
	transfer, err := h.transfers.Transfer(reference)
	if errors.Is(err, storage.ErrTransferNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transfer not found",
		})
	}
	if err != nil {
		log.Printf("Failed to load transfer %s: %v", reference, err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load transfer",
		})
	}
	if !callerOwns(c, transfer.SenderPhone) {
		return nil, forbidden(c)
	}
	return transfer, nil
}

// callerOwns reports whether the bearer token may act for phone. Tokens
// without a phone claim, and requests with auth turned off, act for anyone.
func callerOwns(c *fiber.Ctx, phone string) bool {
	claims, ok := c.Locals(middleware.ClaimsKey).(auth.Claims)
	if !ok || claims.Phone == "" {
		return true
	}
	return utils.NormalizePhone(claims.Phone) == utils.NormalizePhone(phone)
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "Token is not valid for this sender",
	})
}

// MethodNotAllowed answers requests using the wrong HTTP method
func MethodNotAllowed(c *fiber.Ctx) error {
	return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
		"error": "Method not allowed",
	})
}
