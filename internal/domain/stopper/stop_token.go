package stopper

import "strings"

// StopToken terminates generation when the accumulated generated text ends
// with one of a configured set of literal strings (spec §4.I step 1: the
// request's stop_tokens strings become a stop condition matching the most
// recent detokenized text suffix).
type StopToken struct {
	tokens      []string
	accumulated strings.Builder
}

func NewStopToken(tokens []string) *StopToken {
	return &StopToken{tokens: tokens}
}

func (s *StopToken) Poll(state State) (bool, string) {
	if len(s.tokens) == 0 {
		return false, ""
	}
	s.accumulated.WriteString(state.Piece)
	text := s.accumulated.String()
	for _, tok := range s.tokens {
		if tok != "" && strings.HasSuffix(text, tok) {
			return true, "stop token matched: " + tok
		}
	}
	return false, ""
}
