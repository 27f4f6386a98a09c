package entity

import "time"

// FinishReasonKind classifies why generation stopped.
type FinishReasonKind string

const (
	FinishMaxTokens       FinishReasonKind = "max_tokens"
	FinishStopToken       FinishReasonKind = "stop_token"
	FinishEndOfSequence   FinishReasonKind = "end_of_sequence"
	FinishToolCall        FinishReasonKind = "tool_call"
	FinishStopped         FinishReasonKind = "stopped"
	FinishError           FinishReasonKind = "error"
)

// FinishReason is the tagged outcome of a generation run. Reason carries the
// human-readable detail for Stopped and Error kinds.
type FinishReason struct {
	Kind   FinishReasonKind
	Reason string
}

func (f FinishReason) IsToolCall() bool { return f.Kind == FinishToolCall }
func (f FinishReason) IsError() bool    { return f.Kind == FinishError }

// StoppingConfig enumerates the optional stop predicates for one request.
type StoppingConfig struct {
	MaxTokens           int
	EndOfSequence       bool
	RepetitionMinLen    int
	RepetitionMaxLen    int
	RepetitionMinReps   int
	RepetitionWindow    int
	ToolCallDetection   bool
}

// GenerationRequest is a caller's ask to continue a session's conversation.
type GenerationRequest struct {
	SessionID     SessionID
	MaxTokens     *int
	Temperature   *float64
	TopP          *float64
	StopTokens    []string
	Stopping      StoppingConfig
}

// GenerationResponse is the scheduler worker's reply to a batch request.
type GenerationResponse struct {
	GeneratedText   string
	TokensGenerated int
	GenerationTime  time.Duration
	FinishReason    FinishReason
}

// StreamChunk is one piece of a streaming generation reply.
type StreamChunk struct {
	Text       string
	IsComplete bool
	TokenCount int
	Err        error
}
