// Package llm provides the language-model boundary: message and tool-schema
// types plus an Anthropic Messages API client.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrGeneration wraps transport-level failures calling the model. It
// propagates to the caller of a query; the orchestration loop does not retry.
var ErrGeneration = errors.New("llm generation failed")

// ToolDef declares one capability offered to the model.
type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Schema is a JSON-schema object describing tool input.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one field of a tool input schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ContentBlock is one element of a message: text, a tool-use request from the
// model, or a tool result sent back to it.
type ContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Message is one turn of the transcript.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// Request is one model call. A nil Tools slice disables tool use, which the
// loop relies on for the forced final answer.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDef
}

// Response is the model's reply.
type Response struct {
	Content    []ContentBlock
	StopReason string
}

// ToolUses extracts the tool invocation requests in order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			uses = append(uses, b)
		}
	}
	return uses
}

// Text returns the first text block, or empty when the response has none.
func (r *Response) Text() string {
	for _, b := range r.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}

// Client generates model responses. Implemented by ClaudeClient and by test
// fakes.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
