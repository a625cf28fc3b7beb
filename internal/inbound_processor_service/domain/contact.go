package domain

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Contact is a known address book entry.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	DisplayName string    `json:"display_name,omitempty"`
}

// ContactDirectory resolves sender addresses against the address book.
type ContactDirectory interface {
	// FindContact returns (nil, nil) when the address is not a contact.
	FindContact(ctx context.Context, address string) (*Contact, error)
}

// NormalizeAddress strips formatting from phone numbers so "+1 (555) 010-2000"
// and "+15550102000" compare equal. Non-numeric addresses (short codes with
// letters, email gateways) are only lower-cased and trimmed.
func NormalizeAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return strings.ToLower(trimmed)
		}
	}
	return b.String()
}
