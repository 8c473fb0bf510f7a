package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestPointUUID(t *testing.T) {
	a := pointUUID("Metformin Outcomes#0")
	if !uuidRe.MatchString(a) {
		t.Fatalf("not a v4-shaped uuid: %q", a)
	}
	if a != pointUUID("Metformin Outcomes#0") {
		t.Error("same key must hash to the same id")
	}
	if a == pointUUID("Metformin Outcomes#1") {
		t.Error("distinct keys must hash to distinct ids")
	}
}

func TestQdrantBackend_UpsertUsesUUIDIDs(t *testing.T) {
	var upserted struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/paper_content/points" {
			if err := json.NewDecoder(r.Body).Decode(&upserted); err != nil {
				t.Error(err)
			}
		}
		w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	b := NewQdrantBackend(srv.URL, "")
	err := b.Upsert(context.Background(), "paper_content", []Point{{
		ID:      "Metformin Outcomes#0",
		Vector:  []float32{1, 0},
		Payload: map[string]any{"doc_title": "Metformin Outcomes"},
	}})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if len(upserted.Points) != 1 {
		t.Fatalf("captured %d points", len(upserted.Points))
	}
	p := upserted.Points[0]
	if !uuidRe.MatchString(p.ID) {
		t.Errorf("point id must be a uuid, got %q", p.ID)
	}
	if p.Payload["point_key"] != "Metformin Outcomes#0" {
		t.Errorf("natural key missing from payload: %+v", p.Payload)
	}
	if p.Payload["doc_title"] != "Metformin Outcomes" {
		t.Errorf("caller payload lost: %+v", p.Payload)
	}
}

func TestQdrantBackend_GetRestoresNaturalKey(t *testing.T) {
	var requestedIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/paper_catalog/points" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			IDs []string `json:"ids"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		requestedIDs = req.IDs
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{{
				"id":      req.IDs[0],
				"payload": map[string]any{"point_key": "Metformin Outcomes", "title": "Metformin Outcomes"},
			}},
		})
	}))
	defer srv.Close()

	b := NewQdrantBackend(srv.URL, "")
	p, err := b.Get(context.Background(), "paper_catalog", "Metformin Outcomes")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(requestedIDs) != 1 || requestedIDs[0] != pointUUID("Metformin Outcomes") {
		t.Errorf("lookup should use the hashed id, got %v", requestedIDs)
	}
	if p == nil || p.ID != "Metformin Outcomes" {
		t.Errorf("natural key not restored: %+v", p)
	}
}
