package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/services"
	"github.com/rampa-app/rampa-backend/internal/utils"
)

// inboundHandler is what the webhook needs from the transfer service
type inboundHandler interface {
	HandleInbound(ctx context.Context, phone, text string) ([]services.OutboundMessage, error)
}

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	transfers inboundHandler
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(transfers inboundHandler) *WhatsAppHandler {
	return &WhatsAppHandler{transfers: transfers}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"` // WhatsApp number (whatsapp:+5215512345678)
	To                  string `form:"To"`   // Our Twilio number
	Body                string `form:"Body"` // Message text
	NumMedia            string `form:"NumMedia"`
	MessageStatus       string `form:"MessageStatus"`
}

// HandleWebhook processes incoming WhatsApp messages. Every well-formed
// request is acknowledged with 200, whatever happens downstream.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	from := utils.NormalizePhone(payload.From)
	if from == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "From is required",
		})
	}

	// Status callbacks carry no Body
	if payload.Body == "" {
		if payload.MessageStatus != "" {
			log.Printf("📬 Status %s for %s", payload.MessageStatus, payload.MessageSid)
		}
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("📱 WhatsApp Message from %s: %s", from, payload.Body)

	if _, err := h.transfers.HandleInbound(c.UserContext(), from, payload.Body); err != nil {
		log.Printf("Error processing message from %s: %v", from, err)
	}

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is the JSON body of the development webhook
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// HandleTestWebhook processes test WhatsApp messages (for development) and
// echoes what was sent back
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	from := utils.NormalizePhone(payload.From)
	if from == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and message are required",
		})
	}

	log.Printf("🧪 Test webhook received from %s: %s", from, payload.Message)

	messages, err := h.transfers.HandleInbound(c.UserContext(), from, payload.Message)
	if err != nil {
		log.Printf("Error processing message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"messages": messages,
	})
}
