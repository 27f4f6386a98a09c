package stopper

// EndOfSequence terminates when the most recent token is an end-of-generation
// token per the model vocabulary. isEOS is supplied by the Model Handle.
type EndOfSequence struct {
	isEOS func(token int32) bool
}

func NewEndOfSequence(isEOS func(token int32) bool) *EndOfSequence {
	return &EndOfSequence{isEOS: isEOS}
}

func (e *EndOfSequence) Poll(state State) (bool, string) {
	if e.isEOS != nil && e.isEOS(state.Token) {
		return true, "end of sequence token"
	}
	return false, ""
}
