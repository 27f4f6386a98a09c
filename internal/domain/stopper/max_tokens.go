package stopper

import "fmt"

// MaxTokens terminates once the request has produced N tokens. N=0 fires on
// the very first token.
type MaxTokens struct {
	n int
}

func NewMaxTokens(n int) *MaxTokens {
	return &MaxTokens{n: n}
}

func (m *MaxTokens) Poll(state State) (bool, string) {
	if state.TokensGenerated >= m.n {
		return true, fmt.Sprintf("max tokens reached (%d)", m.n)
	}
	return false, ""
}
