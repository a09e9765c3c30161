package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/llm"
)

// Invocation carries per-turn values injected by the orchestration loop. The
// LLM never supplies these directly; tools that need them declare so in their
// descriptions.
type Invocation struct {
	// ServerURL is the map server the conversation is anchored to.
	ServerURL string
	// MapData is the GeoJSON currently displayed on the caller's map.
	MapData string
}

// Handler executes one tool call and returns a structured result
type Handler func(ctx context.Context, inv Invocation, args map[string]any) (map[string]any, error)

// Tool couples a definition exposed to the LLM with its handler
type Tool struct {
	Definition llm.ToolDefinition
	// ClientSide marks tools whose result is a frontend map action rather
	// than a backend lookup.
	ClientSide bool
	Handler    Handler
}

// Registry is the closed tool catalog. It is assembled once at startup and
// never mutated afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the catalog. Duplicate names are a startup bug.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Definition.Name)
	}
	if _, exists := r.tools[t.Definition.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Definition.Name)
	}
	r.tools[t.Definition.Name] = t
	r.order = append(r.order, t.Definition.Name)
	return nil
}

// MustRegister registers a tool and panics on registration failure. Catalog
// assembly happens at startup, before the server accepts traffic.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Catalog returns all tool definitions in registration order
func (r *Registry) Catalog() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Resolve looks up a tool by name
func (r *Registry) Resolve(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch validates the call's parameters against the tool's schema and
// invokes the handler. Every failure comes back as a *domain.ToolError so the
// orchestration loop can feed it to the LLM instead of aborting the turn.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, call llm.ToolCall) (map[string]any, *domain.ToolError) {
	tool, ok := r.Resolve(call.Name)
	if !ok {
		return nil, &domain.ToolError{
			Tool:   call.Name,
			Reason: "unknown tool",
			Err:    domain.ErrToolNotFound,
		}
	}

	if reason := validateArgs(tool.Definition, call.Args); reason != "" {
		return nil, &domain.ToolError{
			Tool:   call.Name,
			Reason: reason,
			Err:    domain.ErrInvalidToolParameters,
		}
	}

	result, err := tool.Handler(ctx, inv, call.Args)
	if err != nil {
		if toolErr, ok := err.(*domain.ToolError); ok {
			return nil, toolErr
		}
		return nil, &domain.ToolError{
			Tool:   call.Name,
			Reason: "tool execution failed",
			Err:    err,
		}
	}

	return result, nil
}

// validateArgs checks presence and types before invocation. Arguments outside
// the declared schema are rejected rather than coerced.
func validateArgs(def llm.ToolDefinition, args map[string]any) string {
	for name := range args {
		if _, declared := def.Parameters[name]; !declared {
			return fmt.Sprintf("unexpected parameter %q", name)
		}
	}

	for name, param := range def.Parameters {
		value, present := args[name]
		if !present {
			if param.Required {
				return fmt.Sprintf("missing required parameter %q", name)
			}
			continue
		}

		if !typeMatches(param.Type, value) {
			return fmt.Sprintf("parameter %q must be of type %s", name, param.Type)
		}

		if len(param.Enum) > 0 && !enumContains(param.Enum, value) {
			return fmt.Sprintf("parameter %q must be one of: %s", name, strings.Join(param.Enum, ", "))
		}
	}

	return ""
}

func enumContains(allowed []string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return isNumeric(value)
	case "integer":
		f, ok := numericValue(value)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

func isNumeric(value any) bool {
	_, ok := numericValue(value)
	return ok
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
