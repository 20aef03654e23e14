package services

import (
	"fmt"
	"strings"

	"github.com/rampa-app/rampa-backend/internal/models"
)

// maxMenuContacts is how many directory contacts get a menu number; option 4
// is always "new phone number"
const maxMenuContacts = 3

var menuDigits = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣"}

func formatAmount(amount float64, currency string) string {
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", amount, currency))
}

func helpMessage() string {
	return "👋 Hi! You don't have a transfer in progress.\n\n" +
		"Start a transfer in the rampa app and we'll continue here to choose who receives it."
}

func recipientMenuMessage(s *models.TransferSession, contacts []models.Contact) string {
	var b strings.Builder
	b.WriteString("💸 *New transfer*\n\n")
	fmt.Fprintf(&b, "You send: %s\n", formatAmount(s.Amount, s.Currency))
	fmt.Fprintf(&b, "They receive: %.2f\n\n", s.RecipientAmount)
	b.WriteString("Who are you sending to? Reply with a number:\n\n")

	n := len(contacts)
	if n > maxMenuContacts {
		n = maxMenuContacts
	}
	for i := 0; i < n; i++ {
		c := contacts[i]
		fmt.Fprintf(&b, "%s %s (%s)\n", menuDigits[i], c.Name, c.Country)
	}
	fmt.Fprintf(&b, "%s Enter a new phone number", menuDigits[maxMenuContacts])
	return b.String()
}

func invalidOptionMessage(s *models.TransferSession, contacts []models.Contact) string {
	return "❌ Invalid option.\n\n" + recipientMenuMessage(s, contacts)
}

func phonePromptMessage() string {
	return "📱 Send the recipient's phone number in international format, starting with + and the country code.\n\n" +
		"Example: +5215512345678"
}

func phoneFormatErrorMessage() string {
	return "❌ That doesn't look like a valid phone number.\n\n" +
		"Use international format with + and the country code, for example:\n" +
		"• +5215512345678 (Mexico)\n" +
		"• +573001234567 (Colombia)\n" +
		"• +5511987654321 (Brazil)"
}

func confirmationMessage(s *models.TransferSession) string {
	r := s.Recipient
	var b strings.Builder
	b.WriteString("📋 *Confirm your transfer*\n\n")
	fmt.Fprintf(&b, "To: %s\n", r.Name)
	fmt.Fprintf(&b, "Phone: %s\n", r.Phone)
	fmt.Fprintf(&b, "Country: %s\n\n", r.Country)
	fmt.Fprintf(&b, "You send: %s\n", formatAmount(s.Amount, s.Currency))
	fmt.Fprintf(&b, "They receive: %.2f\n", s.RecipientAmount)
	if s.ExchangeRate != 0 {
		fmt.Fprintf(&b, "Exchange rate: %.4f\n", s.ExchangeRate)
	}
	if s.Fee != 0 {
		fmt.Fprintf(&b, "Fee: %s\n", formatAmount(s.Fee, s.Currency))
	}
	b.WriteString("\nReply *YES* to confirm, *NO* to cancel or *CHANGE* to pick another recipient.")
	return b.String()
}

func confirmPromptMessage() string {
	return "🤔 Please reply *YES* to confirm, *NO* to cancel or *CHANGE* to pick another recipient."
}

func cancelledMessage() string {
	return "🚫 Transfer cancelled. Nothing was sent.\n\nYou can start a new transfer from the rampa app at any time."
}

func expiredMessage(s *models.TransferSession) string {
	return fmt.Sprintf("⌛ Your transfer of %s expired because we didn't hear back. Start a new one from the rampa app whenever you're ready.",
		formatAmount(s.Amount, s.Currency))
}

func apologyMessage() string {
	return "❌ Sorry, something went wrong on our side and your transfer was not sent. Please start again from the rampa app."
}

func processingSenderMessage(t *models.Transfer) string {
	return fmt.Sprintf("⏳ *Processing your transfer*\n\nSending %s to %s.\nReference: %s\n\nWe'll message you when it's done.",
		formatAmount(t.Amount, t.Currency), t.RecipientName, t.Reference)
}

func processingRecipientMessage(t *models.Transfer) string {
	return fmt.Sprintf("💰 A transfer of %.2f is on its way to you via rampa.\nReference: %s",
		t.RecipientAmount, t.Reference)
}

func completedSenderMessage(t *models.Transfer) string {
	return fmt.Sprintf("✅ *Transfer completed*\n\n%s delivered to %s.\nReference: %s",
		formatAmount(t.Amount, t.Currency), t.RecipientName, t.Reference)
}

func completedRecipientMessage(t *models.Transfer) string {
	return fmt.Sprintf("✅ You received %.2f via rampa (sent as %s).\nReference: %s",
		t.RecipientAmount, formatAmount(t.Amount, t.Currency), t.Reference)
}

func transferCancelledMessage(t *models.Transfer) string {
	return fmt.Sprintf("🚫 Transfer %s to %s was cancelled before completion.", t.Reference, t.RecipientName)
}
