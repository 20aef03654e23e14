package utils

import "strings"

// NormalizePhone strips the transport prefix Twilio puts on WhatsApp
// addresses ("whatsapp:+52...") and surrounding whitespace
func NormalizePhone(from string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:"))
}

// IsValidPhone is a syntactic check only: a leading "+" and at least ten
// characters. No checksum or locale rules.
func IsValidPhone(phone string) bool {
	return strings.HasPrefix(phone, "+") && len(phone) >= 10
}
