// Package stopper implements the composable stop-condition engine that the
// generation scheduler polls once per produced token.
package stopper

import (
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/domain/entity"
)

// State is the per-token context a StopCondition inspects.
type State struct {
	TokensGenerated int
	Token           int32
	Piece           string
}

// StopCondition is a stateful, single-method predicate. Implementations hold
// whatever state they need across calls (e.g. a sliding window); a fresh
// instance is built per generation request.
type StopCondition interface {
	// Poll inspects the latest produced token and either returns (false, "")
	// to continue, or (true, reason) to terminate generation.
	Poll(state State) (bool, string)
}

// Set is an ordered list of stop conditions queried in order; the first to
// fire wins.
type Set []StopCondition

// Poll runs every condition in order and returns the first that fires.
func (s Set) Poll(state State) (fired bool, reason string) {
	for _, c := range s {
		if stop, r := c.Poll(state); stop {
			return true, r
		}
	}
	return false, ""
}

// Build assembles the default stop-condition set for a request: MaxTokens
// is added when cfg.MaxTokens > 0 and EndOfSequence when cfg.EndOfSequence
// is set; Repetition and ToolCallDetected are added
// when the request's stopping config enables them; stopTokens (the
// request's literal stop strings) become a StopToken condition when
// non-empty. logger (may be nil) is threaded through to Repetition so an
// oversized config is warned about at construction rather than silently
// accepted.
func Build(cfg entity.StoppingConfig, stopTokens []string, isEOS func(token int32) bool, onToolCallDetected func(accumulated string) bool, logger *zap.Logger) Set {
	set := make(Set, 0, 5)
	if cfg.MaxTokens > 0 {
		set = append(set, NewMaxTokens(cfg.MaxTokens))
	}
	if cfg.EndOfSequence {
		set = append(set, NewEndOfSequence(isEOS))
	}
	if len(stopTokens) > 0 {
		set = append(set, NewStopToken(stopTokens))
	}
	if cfg.RepetitionMinReps >= 2 {
		minLen := cfg.RepetitionMinLen
		if minLen <= 0 {
			minLen = 10
		}
		maxLen := cfg.RepetitionMaxLen
		if maxLen < minLen {
			maxLen = 100
		}
		window := cfg.RepetitionWindow
		if window <= 0 {
			window = 1000
		}
		set = append(set, NewRepetition(RepetitionConfig{
			MinPatternLength: minLen,
			MaxPatternLength: maxLen,
			MinRepetitions:   cfg.RepetitionMinReps,
			WindowSize:       window,
		}, logger))
	}
	if cfg.ToolCallDetection && onToolCallDetected != nil {
		set = append(set, NewToolCallDetected(onToolCallDetected))
	}
	return set
}
