package entity

import "time"

// AgentEventType identifies what an AgentEvent carries.
type AgentEventType string

const (
	EventTextDelta  AgentEventType = "text_delta"
	EventToolCall   AgentEventType = "tool_call"
	EventToolResult AgentEventType = "tool_result"
	EventStepDone   AgentEventType = "step_done"
	EventDone       AgentEventType = "done"
	EventError      AgentEventType = "error"
)

// AgentEvent is a single tool-progress event the orchestrator's
// generate_stream emits mid-turn (orchestrator.go's runStream), JSON-encoded
// into a StreamChunk's Text field for the websocket boundary to forward
// (spec §4.J generate_stream: "implementer's choice of format" for the
// tool-execution progress a mid-turn tool call yields on the stream).
type AgentEvent struct {
	Type       AgentEventType `json:"type"`
	Content    string         `json:"content,omitempty"`
	ToolCall   *ToolCall      `json:"tool_call,omitempty"`
	ToolResult *ToolResult    `json:"tool_result,omitempty"`
	StepInfo   *StepInfo      `json:"step_info,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// StepInfo describes the current iteration of the generate loop.
type StepInfo struct {
	Step         int    `json:"step"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason,omitempty"`
}
