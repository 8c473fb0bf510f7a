package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/medrag/internal/chunker"
	"github.com/dgallion1/medrag/internal/config"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/rag"
	"github.com/dgallion1/medrag/internal/session"
	"github.com/dgallion1/medrag/internal/store"
)

type fixedClient struct {
	text string
	err  error
}

func (c *fixedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: c.text}},
		StopReason: "end_turn",
	}, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func testServer(t *testing.T, client llm.Client, cfg config.Config) *Server {
	t.Helper()
	sessions, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), 5)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })

	system, err := rag.NewSystem(rag.Params{
		Store:         store.New(store.NewMemoryBackend(), fixedEmbedder{}),
		Sessions:      sessions,
		Client:        client,
		SearchLimit:   5,
		ChunkConfig:   chunker.Config{ChunkSize: 200, ChunkOverlap: 40},
		MaxToolRounds: 1,
		Logger:        slog.Default(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	return NewServer(system, nil, slog.Default(), cfg)
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "ok"}, config.Config{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "An evidence-based answer."}, config.Config{})

	body, _ := json.Marshal(map[string]string{"query": "What about metformin?"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Answer    string `json:"answer"`
		SessionID string `json:"session_id"`
		Sources   []any  `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "An evidence-based answer." {
		t.Errorf("answer: %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Error("expected minted session id")
	}
	if resp.Sources == nil {
		t.Error("sources should serialize as an empty array, not null")
	}
}

func TestQueryEndpoint_BlankQuery(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "x"}, config.Config{})

	body, _ := json.Marshal(map[string]string{"query": "  "})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestQueryEndpoint_GenerationFailure(t *testing.T) {
	srv := testServer(t, &fixedClient{err: llm.ErrGeneration}, config.Config{})

	body, _ := json.Marshal(map[string]string{"query": "q"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func multipartFile(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(fw, strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestIngestEndpoint(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "x"}, config.Config{})

	transcript := "Course Title: Trials\n\nLesson 0: Basics\nRandomization reduces bias.\n"
	body, contentType := multipartFile(t, "file", "course.txt", transcript)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", contentType)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Title    string `json:"title"`
		WasNew   bool   `json:"was_new"`
		ChunkCnt int    `json:"chunk_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Title != "Trials" || !resp.WasNew {
		t.Errorf("response: %s", rec.Body.String())
	}
}

func TestIngestEndpoint_UnsupportedType(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "x"}, config.Config{})

	body, contentType := multipartFile(t, "file", "image.png", "binary")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", contentType)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPapersEndpoint(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "x"}, config.Config{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/papers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TotalPapers int `json:"total_papers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalPapers != 0 {
		t.Errorf("expected empty catalog, got %d", resp.TotalPapers)
	}
}

func TestAuth(t *testing.T) {
	srv := testServer(t, &fixedClient{text: "x"}, config.Config{APIKey: "secret"})

	body, _ := json.Marshal(map[string]string{"query": "q"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct key: status %d: %s", rec.Code, rec.Body.String())
	}

	// Health stays public.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
}
