package alerts

import (
	"encoding/json"
	"testing"
)

func TestSweepAlertSerialization(t *testing.T) {
	alert := SweepAlert{
		Processed:  12,
		Sent:       9,
		Skipped:    2,
		Failed:     1,
		FinishedAt: 1756540800,
	}

	data, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded SweepAlert
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Failed != alert.Failed {
		t.Errorf("Failed mismatch: got %d want %d", decoded.Failed, alert.Failed)
	}
	if decoded.Processed != alert.Processed {
		t.Errorf("Processed mismatch: got %d want %d", decoded.Processed, alert.Processed)
	}
}
