package reconcile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func newRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	NewHTTPHandler(f.service).Register(router)
	return router
}

func TestCompareEndpoint(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	f.upsert(t, f.file(t, "a.csv", base), "K1", "Shirt", "10")
	f.upsert(t, f.file(t, "b.csv", base.Add(time.Second)), "K1", "Shirt", "11")
	router := newRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/K1/compare", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body Comparison
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Changed || body.Previous == nil {
		t.Fatalf("unexpected comparison: %+v", body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/missing/compare", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture()
	file := f.file(t, "a.csv", time.Now().UTC())
	f.upsert(t, file, "K1", "Shirt", "10")
	router := newRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+file.ID.String()+"/validate?keys=K1,K9", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		MissingKeys []string `json:"missing_keys"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body.MissingKeys) != 1 || body.MissingKeys[0] != "K9" {
		t.Fatalf("unexpected missing keys: %v", body.MissingKeys)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/not-a-uuid/validate", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
