package services

import (
	"context"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/rampa-app/rampa-backend/internal/config"
)

// messageCreator is the slice of the Twilio REST API we use
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService delivers WhatsApp messages through Twilio
type TwilioService struct {
	api  messageCreator
	from string // Your Twilio WhatsApp number
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig) (*TwilioService, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		api:  client.Api,
		from: cfg.WhatsAppFrom,
	}, nil
}

// Send sends a WhatsApp message via Twilio
func (t *TwilioService) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", to))
	params.SetBody(body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message to %s: %v", to, err)
		return fmt.Errorf("send whatsapp message: %w", err)
	}

	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	log.Printf("✅ WhatsApp message sent to %s! SID: %s", to, sid)
	return nil
}
