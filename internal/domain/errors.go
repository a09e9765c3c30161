package domain

import (
	"errors"
	"fmt"
)

// Closed error taxonomy seen by the orchestration loop. External failures are
// classified at the component boundary (geo client, LLM provider, repositories)
// and wrapped around one of these sentinels.
var (
	ErrAuthentication        = errors.New("authentication failure")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrInvalidToolParameters = errors.New("invalid tool parameters")
	ErrToolNotFound          = errors.New("tool not found")
	ErrHistoryPersistence    = errors.New("history persistence failure")
	ErrLoopBoundExceeded     = errors.New("tool round-trip limit exceeded")
)

// ToolError carries a structured, machine-readable tool failure back into the
// conversation loop. It is fed to the LLM as a tool result, never raised to
// the caller.
type ToolError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Payload renders the error as a tool result the LLM can react to.
func (e *ToolError) Payload() map[string]any {
	return map[string]any{
		"error":  e.Reason,
		"tool":   e.Tool,
		"detail": errDetail(e.Err),
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
