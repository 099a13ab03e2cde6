package ledger

import (
	"encoding/json"
	"testing"
)

func TestMetadata_RoundTrips(t *testing.T) {
	meta := Metadata{Strategy: "greedy", MaxTravelMinutes: 30, TriggeredBy: "scheduler"}
	raw, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Metadata
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != meta {
		t.Errorf("round-tripped metadata = %+v, want %+v", got, meta)
	}
}
