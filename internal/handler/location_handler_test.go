package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestUpdateLocation_RejectsOutOfBoundsCoordinates(t *testing.T) {
	h := NewLocationHandler(nil, nil, nil, zap.NewNop())

	body, _ := json.Marshal(map[string]interface{}{
		"entityType": "client",
		"entityId":   1,
		"lat":        200.0,
		"lng":        -87.0,
	})
	r := httptest.NewRequest("POST", "/location/update", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.UpdateLocation(w, r)

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateLocation_RejectsImplausibleLocation(t *testing.T) {
	h := NewLocationHandler(nil, nil, nil, zap.NewNop())

	// Valid lat/lng range, but nowhere near the continental US.
	body, _ := json.Marshal(map[string]interface{}{
		"entityType": "client",
		"entityId":   1,
		"lat":        35.6762,
		"lng":        139.6503, // Tokyo
	})
	r := httptest.NewRequest("POST", "/location/update", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.UpdateLocation(w, r)

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateLocation_RejectsUnknownBody(t *testing.T) {
	h := NewLocationHandler(nil, nil, nil, zap.NewNop())
	r := httptest.NewRequest("POST", "/location/update", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	h.UpdateLocation(w, r)

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
