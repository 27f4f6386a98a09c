package refengine

import (
	"context"
	"testing"
)

func TestTokenizeRoundTripsKnownRunes(t *testing.T) {
	e := New(0)
	tokens, err := e.Tokenize("eat", false)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
}

func TestTokenize_AddBOSPrependsToken(t *testing.T) {
	e := New(0)
	withBOS, _ := e.Tokenize("a", true)
	withoutBOS, _ := e.Tokenize("a", false)
	if len(withBOS) != len(withoutBOS)+1 {
		t.Fatalf("expected BOS to add exactly one token, got %d vs %d", len(withBOS), len(withoutBOS))
	}
}

func TestDecode_RequiresAtLeastOneToken(t *testing.T) {
	e := New(0)
	if err := e.Decode(context.Background(), nil); err == nil {
		t.Fatal("expected error decoding an empty token batch")
	}
}

func TestDecode_RespectsCancelledContext(t *testing.T) {
	e := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Decode(ctx, []int32{1}); err == nil {
		t.Fatal("expected error decoding with a cancelled context")
	}
}

func TestSample_EmitsEOSAfterConfiguredCount(t *testing.T) {
	e := New(3)
	_ = e.Decode(context.Background(), []int32{1})

	var lastTok int32
	for i := 0; i < 3; i++ {
		tok, err := e.Sample(0.7, 0.9)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		lastTok = tok
	}
	if !e.IsEndOfGeneration(lastTok) {
		t.Fatalf("expected EOS after 3 samples, got token %d", lastTok)
	}
}

func TestSample_NeverEmitsEOSWhenDisabled(t *testing.T) {
	e := New(0)
	_ = e.Decode(context.Background(), []int32{1})
	for i := 0; i < 50; i++ {
		tok, err := e.Sample(0.7, 0.9)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if e.IsEndOfGeneration(tok) {
			t.Fatalf("did not expect EOS with eosAfter=0, got it at iteration %d", i)
		}
	}
}

func TestDetokenize_EOSTokenIsEmptyString(t *testing.T) {
	e := New(0)
	s, err := e.Detokenize(EOSToken)
	if err != nil {
		t.Fatalf("Detokenize: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for EOS token, got %q", s)
	}
}

func TestVocabSize_Positive(t *testing.T) {
	e := New(0)
	if e.VocabSize() <= 0 {
		t.Fatalf("expected positive vocab size, got %d", e.VocabSize())
	}
}
