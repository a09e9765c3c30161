package domain

import (
	"github.com/google/uuid"
)

// TurnRequest represents one inbound chat message
type TurnRequest struct {
	SessionID    uuid.UUID `json:"session_id,omitempty"`
	Message      string    `json:"message" validate:"required,max=4000"`
	MapServerURL string    `json:"map_server_url,omitempty" validate:"omitempty,url"`
	// MapData carries the GeoJSON currently displayed on the caller's map.
	// It is injected into tools that operate on the visible features.
	MapData  string `json:"map_data,omitempty"`
	LLMModel string `json:"llm_model,omitempty"`
}

// MapAction is a frontend instruction produced by a tool call, e.g. adding a
// marker or replacing the displayed GeoJSON. It is returned to the caller
// alongside the assistant text.
type MapAction struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// TurnResponse represents one completed chat turn
type TurnResponse struct {
	SessionID  uuid.UUID     `json:"session_id"`
	Reply      string        `json:"reply"`
	MapActions []MapAction   `json:"map_actions,omitempty"`
	Metadata   *TurnMetadata `json:"metadata,omitempty"`
}

// TurnMetadata contains turn execution metadata
type TurnMetadata struct {
	LLMProvider     string `json:"llm_provider"`
	LLMModel        string `json:"llm_model"`
	ToolRounds      int    `json:"tool_rounds"`
	ToolCalls       int    `json:"tool_calls"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	LLMLatencyMs    int64  `json:"llm_latency_ms"`
	TokensUsed      int    `json:"tokens_used"`
}
