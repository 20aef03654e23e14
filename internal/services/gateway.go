package services

import (
	"context"
	"log"
)

// MessageGateway sends a text message to a phone number
type MessageGateway interface {
	Send(ctx context.Context, to, body string) error
}

// OutboundMessage is one message the conversation wants delivered
type OutboundMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// LogGateway only logs. Used when Twilio is not configured.
type LogGateway struct{}

func (LogGateway) Send(ctx context.Context, to, body string) error {
	log.Printf("📤 Message to %s (not sent - Twilio not configured): %s", to, body)
	return nil
}
