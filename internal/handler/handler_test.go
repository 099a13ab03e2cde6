package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON_SetsStatusAndContentType(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 201, map[string]int{"id": 7})

	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["id"] != 7 {
		t.Errorf("body[id] = %d, want 7", body["id"])
	}
}

func TestErrorBody(t *testing.T) {
	got := errorBody("not_found", "client not found")
	if got["error"] != "not_found" || got["message"] != "client not found" {
		t.Errorf("errorBody = %v, want error/message pair", got)
	}
}
