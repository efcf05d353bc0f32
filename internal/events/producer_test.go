package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMessageSerialization(t *testing.T) {
	msg := Message{
		BookingID:      uuid.New().String(),
		TemplateID:     uuid.New().String(),
		RecipientEmail: "alex@example.com",
		TriggerType:    "reminder_before",
		Status:         "sent",
		OccurredAt:     time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.BookingID != msg.BookingID {
		t.Errorf("BookingID mismatch: got %s want %s", decoded.BookingID, msg.BookingID)
	}
	if decoded.Status != msg.Status {
		t.Errorf("Status mismatch: got %s want %s", decoded.Status, msg.Status)
	}
	if decoded.TriggerType != msg.TriggerType {
		t.Errorf("TriggerType mismatch: got %s want %s", decoded.TriggerType, msg.TriggerType)
	}
}

func TestMessageOmitsEmptyError(t *testing.T) {
	msg := Message{
		BookingID: uuid.New().String(),
		Status:    "sent",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Error("empty error field should be omitted")
	}
}
