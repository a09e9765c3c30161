package llm

import (
	"context"

	"github.com/eliamaps/elia/internal/domain"
)

// ToolParam describes one parameter of a callable tool
type ToolParam struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// ToolDefinition describes a callable tool as exposed to the LLM
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ToolParam
}

// ToolCall is a structured request emitted by the LLM naming a registered
// tool and its arguments. It never outlives the orchestration pass that
// received it.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Request contains one completion round trip. The provider is stateless
// across calls; History carries the full bounded conversation window every
// time, including in-flight tool results of the current turn.
type Request struct {
	SystemPrompt string
	History      []domain.Message
	Tools        []ToolDefinition
}

// Response contains the LLM result: either final text or tool calls
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// IsFinal reports whether the response is a final answer rather than a
// request to execute tools.
func (r *Response) IsFinal() bool {
	return len(r.ToolCalls) == 0
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Complete sends the conversation window and tool catalog to the model
	Complete(ctx context.Context, req Request, model string) (*Response, error)
}
