// Package llm defines the model-invocation contract the agents speak to.
// The core makes exactly one attempt per call; retries, if any, belong to
// the implementation behind the interface.
package llm

import (
	"context"
	"errors"
)

// ErrUpstream wraps hard failures from the model backend.
var ErrUpstream = errors.New("model invocation failed")

// Message is one turn of accumulated history.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// ToolDef describes a callable tool in JSON-schema terms.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolFunc executes a tool call and returns its textual result.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a definition with its implementation.
type Tool struct {
	Def ToolDef
	Run ToolFunc
}

// Request is a single model invocation.
type Request struct {
	System      string
	History     []Message
	Input       string
	Tools       []Tool
	Temperature float64
	MaxTokens   int
}

// Result is the final answer plus the trace of tools the model invoked on
// the way there.
type Result struct {
	Text      string
	ToolsUsed []string
}

// Invoker is the model backend. Implementations may perform nested tool
// invocations before returning a final answer.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Streamer is optionally implemented by backends that can deliver the answer
// incrementally. onChunk is called for each text fragment; the returned
// Result carries the assembled text.
type Streamer interface {
	InvokeStream(ctx context.Context, req Request, onChunk func(string) error) (*Result, error)
}
