package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/tools"
)

// scriptedClient replays canned responses and records every request.
type scriptedClient struct {
	responses []*llm.Response
	requests  []llm.Request
	err       error
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type stubTool struct {
	name   string
	result tools.Result
	err    error
	calls  int
}

func (t *stubTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.name,
		Description: "stub",
		InputSchema: llm.Schema{Type: "object", Properties: map[string]llm.Property{}},
	}
}

func (t *stubTool) Execute(ctx context.Context, input json.RawMessage) (tools.Result, error) {
	t.calls++
	return t.result, t.err
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func toolUseResponse(id, name string) *llm.Response {
	return &llm.Response{
		Content: []llm.ContentBlock{
			{Type: "tool_use", ID: id, Name: name, Input: json.RawMessage(`{}`)},
		},
		StopReason: "tool_use",
	}
}

func registryWith(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, tool := range ts {
		if err := reg.Register(tool); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestLoop_DirectAnswerWithoutTools(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("Direct answer.")}}
	l := newLoop(client, registryWith(t, &stubTool{name: "search_papers"}), 1, slog.Default())

	ans, err := l.run(context.Background(), "system", "question")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ans.Text != "Direct answer." {
		t.Errorf("got %q", ans.Text)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", ans.Sources)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(client.requests))
	}
	if len(client.requests[0].Tools) == 0 {
		t.Error("first call should offer tools")
	}
}

func TestLoop_ToolRoundThenFinalAnswer(t *testing.T) {
	tool := &stubTool{
		name: "search_papers",
		result: tools.Result{
			Content: "passage text",
			Sources: []corpus.Source{{Text: "Paper A - 2021", URL: "https://doi.org/x"}},
		},
	}
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse("tu_1", "search_papers"),
		textResponse("Answer from evidence."),
	}}
	l := newLoop(client, registryWith(t, tool), 1, slog.Default())

	ans, err := l.run(context.Background(), "system", "question")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ans.Text != "Answer from evidence." {
		t.Errorf("got %q", ans.Text)
	}
	if tool.calls != 1 {
		t.Errorf("tool called %d times", tool.calls)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Text != "Paper A - 2021" {
		t.Errorf("sources: %+v", ans.Sources)
	}

	if len(client.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(client.requests))
	}
	// Round budget of 1 is spent, so the final call must disable tools.
	if client.requests[1].Tools != nil {
		t.Error("final call should not offer tools")
	}
	// Transcript: user question, assistant tool_use, user tool_result.
	msgs := client.requests[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 transcript messages, got %d", len(msgs))
	}
	last := msgs[2]
	if last.Role != "user" || len(last.Content) != 1 || last.Content[0].Type != "tool_result" {
		t.Errorf("last message should carry the tool result: %+v", last)
	}
	if last.Content[0].ToolUseID != "tu_1" || last.Content[0].Content != "passage text" {
		t.Errorf("tool result block: %+v", last.Content[0])
	}
}

func TestLoop_SourceDeduplicationAcrossCalls(t *testing.T) {
	tool := &stubTool{
		name: "search_papers",
		result: tools.Result{
			Content: "passage",
			Sources: []corpus.Source{{Text: "Paper A - 2021"}},
		},
	}
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse("tu_1", "search_papers"),
		toolUseResponse("tu_2", "search_papers"),
		textResponse("done"),
	}}
	l := newLoop(client, registryWith(t, tool), 2, slog.Default())

	ans, err := l.run(context.Background(), "system", "question")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tool.calls != 2 {
		t.Errorf("tool called %d times, want 2", tool.calls)
	}
	if len(ans.Sources) != 1 {
		t.Errorf("identical sources should deduplicate: %+v", ans.Sources)
	}
}

func TestLoop_RoundCapForcesFinalAnswer(t *testing.T) {
	tool := &stubTool{name: "search_papers", result: tools.Result{Content: "x"}}
	// The model wants tools every time; the loop must cut it off.
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse("tu_1", "search_papers"),
		textResponse("Forced final."),
	}}
	l := newLoop(client, registryWith(t, tool), 1, slog.Default())

	ans, err := l.run(context.Background(), "system", "question")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ans.Text != "Forced final." {
		t.Errorf("got %q", ans.Text)
	}
	if got := len(client.requests); got != 2 {
		t.Errorf("expected exactly 2 model calls, got %d", got)
	}
}

func TestLoop_EmptyAnswerFallback(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Content: nil, StopReason: "end_turn"},
	}}
	l := newLoop(client, registryWith(t), 1, slog.Default())

	ans, err := l.run(context.Background(), "system", "question")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ans.Text != fallbackAnswer {
		t.Errorf("got %q, want fallback", ans.Text)
	}
}

func TestLoop_GenerationErrorPropagates(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("%w: connection refused", llm.ErrGeneration)}
	l := newLoop(client, registryWith(t), 1, slog.Default())

	_, err := l.run(context.Background(), "system", "question")
	if !errors.Is(err, llm.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestLoop_UnknownToolFails(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolUseResponse("tu_1", "not_registered"),
	}}
	l := newLoop(client, registryWith(t, &stubTool{name: "search_papers"}), 1, slog.Default())

	_, err := l.run(context.Background(), "system", "question")
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestLoop_MinimumOneRound(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("ok")}}
	l := newLoop(client, registryWith(t, &stubTool{name: "search_papers"}), 0, slog.Default())

	if _, err := l.run(context.Background(), "system", "q"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(client.requests[0].Tools) == 0 {
		t.Error("a zero round budget should still allow one tool round")
	}
}
