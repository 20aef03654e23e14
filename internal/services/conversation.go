package services

import (
	"fmt"
	"strings"

	"github.com/rampa-app/rampa-backend/internal/models"
	"github.com/rampa-app/rampa-backend/internal/utils"
)

// Decision is what the conversation wants done after one inbound message.
// Session is the next state to persist, nil when nothing changes. Delete
// removes the stored session. Settle carries a confirmed session.
type Decision struct {
	Session  *models.TransferSession
	Delete   bool
	Messages []OutboundMessage
	Settle   *models.TransferSession
}

// Conversation is the transfer state machine. It never touches storage or the
// gateway; callers apply the Decision.
type Conversation struct {
	directory *ContactDirectory
}

// NewConversation creates the state machine over a contact directory
func NewConversation(directory *ContactDirectory) *Conversation {
	return &Conversation{directory: directory}
}

// Next consumes one inbound message. session is nil when the sender has no
// transfer in progress.
func (c *Conversation) Next(session *models.TransferSession, from, text string) (Decision, error) {
	if session == nil {
		return reply(from, helpMessage()), nil
	}

	switch session.Step {
	case models.StepChoosingRecipient:
		return c.choosingRecipient(session, text), nil
	case models.StepWaitingForPhone:
		return c.waitingForPhone(session, text), nil
	case models.StepConfirmingTransfer:
		return c.confirmingTransfer(session, text), nil
	default:
		return Decision{}, fmt.Errorf("session %s: unhandled %v", session.SenderPhone, session.Step)
	}
}

// RecipientMenu is the first message of a transfer conversation
func (c *Conversation) RecipientMenu(session *models.TransferSession) OutboundMessage {
	return OutboundMessage{To: session.SenderPhone, Body: recipientMenuMessage(session, c.directory.All())}
}

func (c *Conversation) choosingRecipient(session *models.TransferSession, text string) Decision {
	trimmed := strings.TrimSpace(text)

	switch strings.ToLower(trimmed) {
	case "1", "2", "3":
		n := int(trimmed[0] - '0')
		if contact, ok := c.directory.At(n); ok {
			return confirmWith(session, models.RecipientFromContact(contact))
		}
	case "4":
		next := session.Clone()
		next.Step = models.StepWaitingForPhone
		return Decision{
			Session:  next,
			Messages: []OutboundMessage{{To: session.SenderPhone, Body: phonePromptMessage()}},
		}
	default:
		if strings.HasPrefix(trimmed, "+") && len(trimmed) > 10 {
			return confirmWith(session, models.AdHocRecipient(trimmed))
		}
	}

	return reply(session.SenderPhone, invalidOptionMessage(session, c.directory.All()))
}

func (c *Conversation) waitingForPhone(session *models.TransferSession, text string) Decision {
	phone := strings.TrimSpace(text)
	if !utils.IsValidPhone(phone) {
		return reply(session.SenderPhone, phoneFormatErrorMessage())
	}
	return confirmWith(session, models.AdHocRecipient(phone))
}

func (c *Conversation) confirmingTransfer(session *models.TransferSession, text string) Decision {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "confirm":
		return Decision{Delete: true, Settle: session.Clone()}
	case "no", "n", "cancel":
		return Decision{
			Delete:   true,
			Messages: []OutboundMessage{{To: session.SenderPhone, Body: cancelledMessage()}},
		}
	case "change":
		next := session.Clone()
		next.Step = models.StepChoosingRecipient
		next.Recipient = nil
		return Decision{
			Session:  next,
			Messages: []OutboundMessage{c.RecipientMenu(next)},
		}
	default:
		return reply(session.SenderPhone, confirmPromptMessage())
	}
}

func confirmWith(session *models.TransferSession, recipient *models.Recipient) Decision {
	next := session.Clone()
	next.Step = models.StepConfirmingTransfer
	next.Recipient = recipient
	return Decision{
		Session:  next,
		Messages: []OutboundMessage{{To: session.SenderPhone, Body: confirmationMessage(next)}},
	}
}

func reply(to, body string) Decision {
	return Decision{Messages: []OutboundMessage{{To: to, Body: body}}}
}
