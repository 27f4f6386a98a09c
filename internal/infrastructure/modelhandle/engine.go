// Package modelhandle wraps the in-process inference engine behind a single
// exclusive accessor. The engine's model and context objects are not safe
// for concurrent use, so every interaction with them — tokenize, decode,
// sample, detokenize — must happen inside one WithModel critical section.
package modelhandle

import (
	"context"
	"sync"
)

// InferenceEngine is the boundary this runtime consumes from the underlying
// tensor library. The library itself is out of scope (spec §1); this is the
// complete surface the rest of the system needs from it.
type InferenceEngine interface {
	// Tokenize converts text to token ids. addBOS controls whether a
	// beginning-of-sequence token is prepended.
	Tokenize(text string, addBOS bool) ([]int32, error)
	// Decode runs one decode step over a batch of tokens, populating the
	// logits for the next token. It must be called with the full prompt
	// once to warm the KV cache, then once per newly sampled token.
	Decode(ctx context.Context, tokens []int32) error
	// Sample draws the next token from the logits produced by the last
	// Decode call, using the given temperature and top-p.
	Sample(temperature, topP float64) (int32, error)
	// Detokenize renders a single token as its UTF-8 piece.
	Detokenize(token int32) (string, error)
	// IsEndOfGeneration reports whether token conventionally ends a turn.
	IsEndOfGeneration(token int32) bool
	// VocabSize returns the size of the model's vocabulary.
	VocabSize() int
}

// Handle owns a loaded InferenceEngine and exposes it only through a single
// mutex-guarded accessor, matching the contract in spec §4.C: one request
// owns the engine for the whole decode loop, never interleaved with another.
type Handle struct {
	mu     sync.Mutex
	engine InferenceEngine
}

// New wraps an already-loaded engine.
func New(engine InferenceEngine) *Handle {
	return &Handle{engine: engine}
}

// WithModel runs f with exclusive access to the engine. f is expected to be
// either a short tokenize/decode/detokenize call or an entire single-request
// generation loop; it must not itself block on anything outside the engine,
// since it holds the lock for its whole duration.
func (h *Handle) WithModel(f func(engine InferenceEngine) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return f(h.engine)
}
