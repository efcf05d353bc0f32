// Package notify renders booking notification templates and dispatches
// them to recipients through the mail transport, recording every attempt
// in the delivery ledger.
package notify

import (
	"regexp"
	"strings"
	"time"

	"github.com/lmoretti/bookpulse/internal/db"
)

// notSpecified is rendered for bookings with no date or no slots.
const notSpecified = "Not specified"

// Variable names available in template subjects and bodies. The set is
// fixed: templates referencing anything else keep the raw placeholder.
const (
	VarCustomerName    = "customer_name"
	VarCustomerEmail   = "customer_email"
	VarBookingDate     = "booking_date"
	VarBookingSlot     = "booking_slot"
	VarLocationName    = "location_name"
	VarLocationAddress = "location_address"
	VarTeamName        = "team_name"
)

// Render replaces every {{ key }} occurrence with the variable's value.
// Keys are case-sensitive; whitespace inside the braces is tolerated.
// An empty value renders as an empty string. Placeholders with no
// matching key pass through untouched, and input without recognized
// placeholders is returned unchanged.
func Render(template string, vars map[string]string) string {
	rendered := template
	for key, value := range vars {
		if !strings.Contains(rendered, "{{") {
			break
		}
		re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(key) + `\s*\}\}`)
		rendered = re.ReplaceAllLiteralString(rendered, value)
	}
	return rendered
}

// Variables builds the template variable bag for a booking. It is built
// once per booking: the same bag applies to every template for that
// booking.
func Variables(booking *db.Booking, teamName string) map[string]string {
	customerName := booking.OwnerName
	if customerName == "" {
		customerName = "Customer"
	}
	locationName := booking.LocationName
	if locationName == "" {
		locationName = "Location"
	}

	return map[string]string{
		VarCustomerName:    customerName,
		VarCustomerEmail:   booking.OwnerEmail,
		VarBookingDate:     FormatBookingDate(booking.Date),
		VarBookingSlot:     FormatBookingSlots(booking.Slots),
		VarLocationName:    locationName,
		VarLocationAddress: booking.LocationAddress,
		VarTeamName:        teamName,
	}
}

// FormatBookingDate renders a booking date in long en-US form, e.g.
// "Monday, January 2, 2006". A nil date renders the sentinel.
func FormatBookingDate(date *time.Time) string {
	if date == nil {
		return notSpecified
	}
	return date.Format("Monday, January 2, 2006")
}

// FormatBookingSlots joins slot identifiers with commas. Empty or absent
// slots render the sentinel.
func FormatBookingSlots(slots []string) string {
	if len(slots) == 0 {
		return notSpecified
	}
	return strings.Join(slots, ", ")
}
