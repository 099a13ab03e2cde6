package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/internal/simulation"
)

func TestParseIDVar(t *testing.T) {
	r := httptest.NewRequest("POST", "/admin/simulation/approve/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42"})

	id, err := parseIDVar(r)
	if err != nil {
		t.Fatalf("parseIDVar error: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestParseIDVar_NotAnInteger(t *testing.T) {
	r := httptest.NewRequest("POST", "/admin/simulation/approve/abc", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "abc"})

	if _, err := parseIDVar(r); err == nil {
		t.Fatal("expected error for non-integer id")
	}
}

func TestWriteSimulationConflict_MapsConflictErrorTo409(t *testing.T) {
	w := httptest.NewRecorder()
	err := &simulation.ConflictError{Reason: simulation.ReasonClientAlreadyPaired, Err: repository.ErrAlreadyActivePairing}

	NewSimulationHandler(nil, nil).writeSimulationConflict(w, "approve", err)

	if w.Code != 409 {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var body map[string]string
	if decodeErr := json.Unmarshal(w.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("invalid JSON body: %v", decodeErr)
	}
	if body["error"] != string(simulation.ReasonClientAlreadyPaired) {
		t.Errorf("error code = %q, want %q", body["error"], simulation.ReasonClientAlreadyPaired)
	}
}

func TestWriteSimulationConflict_UnrecognizedErrorMapsTo500(t *testing.T) {
	w := httptest.NewRecorder()
	NewSimulationHandler(nil, nil).writeSimulationConflict(w, "approve", errors.New("boom"))

	if w.Code != 500 {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
