// Package rag wires retrieval, generation and sessions into the query and
// ingestion surfaces of the service.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/tools"
)

// fallbackAnswer is returned when the model produced no usable text.
const fallbackAnswer = "I apologize, but I encountered an issue generating a response. Please try again."

type loopState int

const (
	stateAwaitingModel loopState = iota
	stateExecutingTools
	stateDone
	stateFailed
)

// Answer is the outcome of one loop run: the reply text and the deduplicated
// citations gathered from every tool execution along the way.
type Answer struct {
	Text    string
	Sources []corpus.Source
}

// loop drives one query through bounded tool-use rounds. Each round lets the
// model call tools once; after maxRounds the final call goes out with tools
// disabled so the model must answer from what it has.
type loop struct {
	client    llm.Client
	registry  *tools.Registry
	maxRounds int
	logger    *slog.Logger
}

func newLoop(client llm.Client, registry *tools.Registry, maxRounds int, logger *slog.Logger) *loop {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &loop{client: client, registry: registry, maxRounds: maxRounds, logger: logger}
}

// run executes the loop to completion. Model transport failures propagate
// wrapped in llm.ErrGeneration; tool failures fail the whole query.
func (l *loop) run(ctx context.Context, system, query string) (*Answer, error) {
	messages := []llm.Message{llm.TextMessage("user", query)}
	defs := l.registry.Definitions()

	var sources []corpus.Source
	seen := make(map[string]bool)
	state := stateAwaitingModel

	for round := 0; state != stateDone && state != stateFailed; round++ {
		toolsAllowed := round < l.maxRounds
		req := llm.Request{System: system, Messages: messages}
		if toolsAllowed {
			req.Tools = defs
		}

		resp, err := l.client.Generate(ctx, req)
		if err != nil {
			return nil, err
		}

		uses := resp.ToolUses()
		if !toolsAllowed || len(uses) == 0 {
			text := resp.Text()
			if text == "" {
				l.logger.Warn("model returned no text, using fallback answer")
				text = fallbackAnswer
			}
			return &Answer{Text: text, Sources: sources}, nil
		}

		state = stateExecutingTools
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})

		results := make([]llm.ContentBlock, 0, len(uses))
		for _, use := range uses {
			res, err := l.registry.Execute(ctx, use.Name, use.Input)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", use.Name, err)
			}
			l.logger.Debug("tool executed",
				"tool", use.Name,
				"sources", len(res.Sources))
			for _, src := range res.Sources {
				if !seen[src.Text] {
					seen[src.Text] = true
					sources = append(sources, src)
				}
			}
			results = append(results, llm.ContentBlock{
				Type:      "tool_result",
				ToolUseID: use.ID,
				Content:   res.Content,
			})
		}
		messages = append(messages, llm.Message{Role: "user", Content: results})
		state = stateAwaitingModel
	}

	return nil, fmt.Errorf("orchestration loop exited without an answer")
}
