// Package refengine is a deterministic, dependency-free InferenceEngine used
// as the scheduler's default and in its own tests. Per spec §1 and §3, the
// real tensor/inference library is an external collaborator outside this
// repository's scope; no example in the retrieval pack binds one, so this
// reference implementation stands in for it rather than fabricating a
// dependency the pack never shows.
package refengine

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// EOSToken is the token id this engine treats as end-of-generation.
const EOSToken int32 = 0

// vocab is a tiny fixed vocabulary: token id i (i>=1) maps to the i-th rune
// of this alphabet, cycling. It exists only so Decode/Sample/Detokenize have
// something concrete and reproducible to operate over.
const vocab = " etaoinshrdlcumwfgypbvkjxqz.,!?\n"

// Engine is a trivial, deterministic stand-in for a real GGUF-backed model.
// Sample always returns the token following the last decoded token in a
// fixed cycle, so callers can write reproducible tests against it.
type Engine struct {
	lastToken int32
	eosAt     int // emit EOSToken once this many tokens have been sampled; 0 disables
	sampled   int
}

// New builds a reference engine. eosAfter, when > 0, makes the engine emit
// EOSToken after that many Sample calls — used to exercise the
// EndOfSequence stop condition deterministically in tests.
func New(eosAfter int) *Engine {
	return &Engine{eosAt: eosAfter}
}

func (e *Engine) Tokenize(text string, addBOS bool) ([]int32, error) {
	tokens := make([]int32, 0, len(text)+1)
	if addBOS {
		tokens = append(tokens, int32(len(vocab))+1)
	}
	for _, r := range text {
		tokens = append(tokens, tokenFor(r))
	}
	return tokens, nil
}

func (e *Engine) Decode(ctx context.Context, tokens []int32) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(tokens) == 0 {
		return errors.New("refengine: decode requires at least one token")
	}
	e.lastToken = tokens[len(tokens)-1]
	return nil
}

func (e *Engine) Sample(temperature, topP float64) (int32, error) {
	e.sampled++
	if e.eosAt > 0 && e.sampled >= e.eosAt {
		return EOSToken, nil
	}
	next := (e.lastToken + 1) % int32(len(vocab))
	if next == EOSToken {
		next = 1
	}
	e.lastToken = next
	return next, nil
}

func (e *Engine) Detokenize(token int32) (string, error) {
	if token == EOSToken {
		return "", nil
	}
	idx := int(token) % len(vocab)
	r, _ := utf8.DecodeRuneInString(vocab[idx:])
	return string(r), nil
}

func (e *Engine) IsEndOfGeneration(token int32) bool { return token == EOSToken }

func (e *Engine) VocabSize() int { return len(vocab) + 2 }

func tokenFor(r rune) int32 {
	if idx := strings.IndexRune(vocab, r); idx >= 0 {
		return int32(idx)
	}
	return 1
}
