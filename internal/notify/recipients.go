package notify

import "github.com/lmoretti/bookpulse/internal/db"

// Recipients resolves the recipient set for a template's recipient type.
// Customer before admin, deduplicated, empty addresses dropped.
func Recipients(booking *db.Booking, recipientType string, adminEmail string) []string {
	var recipients []string
	customerEmail := booking.OwnerEmail

	switch recipientType {
	case db.RecipientCustomer:
		if customerEmail != "" {
			recipients = append(recipients, customerEmail)
		}
	case db.RecipientAdmin:
		if adminEmail != "" {
			recipients = append(recipients, adminEmail)
		}
	case db.RecipientBoth:
		if customerEmail != "" {
			recipients = append(recipients, customerEmail)
		}
		if adminEmail != "" && adminEmail != customerEmail {
			recipients = append(recipients, adminEmail)
		}
	}

	return recipients
}
