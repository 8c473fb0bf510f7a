package rag

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/medrag/internal/chunker"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/session"
	"github.com/dgallion1/medrag/internal/store"
)

type flatEmbedder struct{}

func (flatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func testSystem(t *testing.T, client llm.Client) *System {
	t.Helper()
	dir := t.TempDir()
	sessions, err := session.Open(filepath.Join(dir, "sessions.db"), 3)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })

	sys, err := NewSystem(Params{
		Store:         store.New(store.NewMemoryBackend(), flatEmbedder{}),
		Sessions:      sessions,
		Client:        client,
		SearchLimit:   5,
		ChunkConfig:   chunker.Config{ChunkSize: 200, ChunkOverlap: 40},
		MaxToolRounds: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

const transcriptFixture = `Course Title: Trial Design
Course Instructor: Dr. Rivera

Lesson 0: Basics
Randomized trials reduce bias. Blinding strengthens conclusions.
`

func TestSystem_IngestAndReingest(t *testing.T) {
	sys := testSystem(t, &scriptedClient{})
	ctx := context.Background()

	report, err := sys.Ingest(ctx, strings.NewReader(transcriptFixture), "course.txt")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !report.WasNew || report.Title != "Trial Design" || report.ChunkCount == 0 {
		t.Errorf("report: %+v", report)
	}

	again, err := sys.Ingest(ctx, strings.NewReader(transcriptFixture), "course.txt")
	if err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if again.WasNew || again.ChunkCount != 0 {
		t.Errorf("re-ingest should be a no-op: %+v", again)
	}

	analytics, err := sys.Analytics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if analytics.TotalPapers != 1 {
		t.Errorf("analytics: %+v", analytics)
	}
}

func TestSystem_IngestSkipsNoContent(t *testing.T) {
	sys := testSystem(t, &scriptedClient{})

	report, err := sys.Ingest(context.Background(), strings.NewReader("  \n"), "blank.txt")
	if err != nil {
		t.Fatalf("no-content document should skip, not fail: %v", err)
	}
	if !report.Skipped {
		t.Errorf("report: %+v", report)
	}

	analytics, err := sys.Analytics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if analytics.TotalPapers != 0 {
		t.Errorf("skipped document was indexed: %+v", analytics)
	}
}

func TestSystem_IngestDirContinuesPastFailures(t *testing.T) {
	sys := testSystem(t, &scriptedClient{})
	dir := t.TempDir()

	files := map[string]string{
		"good.txt":   "Course Title: A\n\nLesson 0: L\nbody text here.\n",
		"broken.xml": "<article><unclosed>",
		"skip.bin":   "not supported",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	docs, chunks, err := sys.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest dir failed: %v", err)
	}
	if docs != 1 || chunks == 0 {
		t.Errorf("got docs=%d chunks=%d", docs, chunks)
	}
}

func TestSystem_UnsectionedChunksCarryNoOrdinal(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), flatEmbedder{})
	sessions, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), 3)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })
	sys, err := NewSystem(Params{
		Store:         st,
		Sessions:      sessions,
		Client:        &scriptedClient{},
		SearchLimit:   5,
		ChunkConfig:   chunker.Config{ChunkSize: 200, ChunkOverlap: 40},
		MaxToolRounds: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := sys.Ingest(ctx, strings.NewReader("Plain notes with no structure."), "notes.txt"); err != nil {
		t.Fatal(err)
	}

	hits, err := st.Search(ctx, "notes", store.SearchFilter{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("expected indexed chunks")
	}
	if hits[0].SectionIndex != -1 {
		t.Errorf("unsectioned chunk stored ordinal %d, want -1", hits[0].SectionIndex)
	}

	section := 0
	filtered, err := st.Search(ctx, "notes", store.SearchFilter{Section: &section}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Errorf("unsectioned chunks matched section filter: %+v", filtered)
	}
}

func TestSystem_AskMintsSession(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("First answer.")}}
	sys := testSystem(t, client)

	ans, sessionID, err := sys.Ask(context.Background(), "", "What works?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if ans.Text != "First answer." {
		t.Errorf("answer: %q", ans.Text)
	}
	if sessionID == "" {
		t.Fatal("expected a minted session id")
	}
	if len(sessionID) != 26 {
		t.Errorf("session id should be a ULID, got %q", sessionID)
	}
}

func TestSystem_AskCarriesHistory(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		textResponse("First answer."),
		textResponse("Second answer."),
	}}
	sys := testSystem(t, client)
	ctx := context.Background()

	_, sessionID, err := sys.Ask(ctx, "", "First question?")
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = sys.Ask(ctx, sessionID, "Second question?")
	if err != nil {
		t.Fatal(err)
	}

	if len(client.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(client.requests))
	}
	second := client.requests[1].System
	if !strings.Contains(second, "Previous conversation:") {
		t.Errorf("second call should carry history, got %q", second)
	}
	if !strings.Contains(second, "User: First question?") || !strings.Contains(second, "Assistant: First answer.") {
		t.Errorf("history content missing: %q", second)
	}
	if strings.Contains(client.requests[0].System, "Previous conversation:") {
		t.Error("first call should not carry history")
	}
}

func TestSystem_AskWithEmptyIndex(t *testing.T) {
	search := &llm.Response{
		Content: []llm.ContentBlock{{
			Type:  "tool_use",
			ID:    "tu_1",
			Name:  "search_papers",
			Input: json.RawMessage(`{"query":"anything at all"}`),
		}},
		StopReason: "tool_use",
	}
	client := &scriptedClient{responses: []*llm.Response{
		search,
		textResponse("I could not find relevant papers."),
	}}
	sys := testSystem(t, client)

	ans, _, err := sys.Ask(context.Background(), "", "What does the literature say?")
	if err != nil {
		t.Fatalf("empty index should not fail the query: %v", err)
	}
	if ans.Text != "I could not find relevant papers." {
		t.Errorf("answer: %q", ans.Text)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", ans.Sources)
	}

	// The no-results message goes back to the model, not to the caller.
	if len(client.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(client.requests))
	}
	last := client.requests[1].Messages
	result := last[len(last)-1].Content[0]
	if result.Type != "tool_result" || !strings.Contains(result.Content, "No passages matching") {
		t.Errorf("tool result block: %+v", result)
	}
}

func TestSystem_EmptyQueryRejected(t *testing.T) {
	sys := testSystem(t, &scriptedClient{})
	if _, _, err := sys.Ask(context.Background(), "", "   "); err == nil {
		t.Fatal("expected error for blank query")
	}
}
