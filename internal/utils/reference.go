package utils

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenerateTransferReference returns a short human-readable transfer id such
// as RMP-3F9A01C2
func GenerateTransferReference() string {
	id := uuid.New()
	return "RMP-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}
