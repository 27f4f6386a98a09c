package stopper

import (
	"fmt"

	"go.uber.org/zap"
)

// RepetitionConfig bounds the sliding-window repetition detector. Mirrors
// llama-agent's stopper/repetition.rs defaults: min/max pattern length 10 and
// 100, at least 3 repetitions, a 1000-char window.
type RepetitionConfig struct {
	MinPatternLength int
	MaxPatternLength int
	MinRepetitions   int
	WindowSize       int
}

func DefaultRepetitionConfig() RepetitionConfig {
	return RepetitionConfig{
		MinPatternLength: 10,
		MaxPatternLength: 100,
		MinRepetitions:   3,
		WindowSize:       1000,
	}
}

// Validate reports the first misconfiguration found, covering both hard
// errors (zero/inverted bounds) and the soft upper bounds that risk
// pathological scans. Mirrors llama-agent's
// stopper/repetition.rs RepetitionConfig::validate(): a non-nil error does
// not prevent construction, it only triggers a warning log in
// NewRepetition — the caller's values are used as given either way.
func (c RepetitionConfig) Validate() error {
	switch {
	case c.MinPatternLength <= 0:
		return fmt.Errorf("min_pattern_length must be greater than 0")
	case c.MaxPatternLength < c.MinPatternLength:
		return fmt.Errorf("max_pattern_length must be >= min_pattern_length")
	case c.MinRepetitions < 2:
		return fmt.Errorf("min_repetitions must be at least 2")
	case c.WindowSize <= 0:
		return fmt.Errorf("window_size must be greater than 0")
	case c.MinPatternLength > 500:
		return fmt.Errorf("min_pattern_length is too large (> 500), may cause performance issues")
	case c.MaxPatternLength > 2000:
		return fmt.Errorf("max_pattern_length is too large (> 2000), may cause performance issues")
	case c.WindowSize > 50000:
		return fmt.Errorf("window_size is too large (> 50000), may cause memory issues")
	default:
		return nil
	}
}

// Repetition maintains a bounded sliding character window of recently
// detokenized text pieces and, on each poll, searches for a suffix pattern
// (longest candidate length first) that repeats consecutively at least
// MinRepetitions times.
type Repetition struct {
	cfg RepetitionConfig

	window      []rune
	windowSize  int // rune count, kept in sync with window
}

// NewRepetition constructs a Repetition stopper from cfg, warning through
// logger (if non-nil) when cfg fails Validate rather than rejecting it —
// the same "log and proceed" behavior as the original's RepetitionStopper::new.
func NewRepetition(cfg RepetitionConfig, logger *zap.Logger) *Repetition {
	if err := cfg.Validate(); err != nil && logger != nil {
		logger.Warn("repetition stopper created with questionable config",
			zap.Int("min_pattern_length", cfg.MinPatternLength),
			zap.Int("max_pattern_length", cfg.MaxPatternLength),
			zap.Int("min_repetitions", cfg.MinRepetitions),
			zap.Int("window_size", cfg.WindowSize),
			zap.Error(err),
		)
	}
	return &Repetition{cfg: cfg}
}

// addPiece pushes a detokenized text piece into the window, then trims from
// the front until the window is back within WindowSize runes. Amortized O(1)
// per call since each rune is pushed and popped at most once.
func (r *Repetition) addPiece(piece string) {
	if piece == "" {
		return
	}
	runes := []rune(piece)
	r.window = append(r.window, runes...)
	r.windowSize += len(runes)

	for r.windowSize > r.cfg.WindowSize && len(r.window) > 0 {
		// Drop from the front one rune at a time; cheap because the window
		// is bounded and this only runs while strictly over budget.
		r.window = r.window[1:]
		r.windowSize--
	}
}

// detect scans pattern lengths from MaxPatternLength down to
// MinPatternLength (longest first) and, for the first length whose trailing
// pattern repeats consecutively at least MinRepetitions times walking
// backward from the end of the window, returns that pattern and its count.
func (r *Repetition) detect() (pattern []rune, count int, found bool) {
	n := len(r.window)
	if n < r.cfg.MinPatternLength {
		return nil, 0, false
	}

	for patLen := r.cfg.MaxPatternLength; patLen >= r.cfg.MinPatternLength; patLen-- {
		if patLen > n {
			continue
		}
		candidate := r.window[n-patLen:]

		reps := 0
		pos := n
		for pos >= patLen {
			slice := r.window[pos-patLen : pos]
			if runesEqual(slice, candidate) {
				reps++
				pos -= patLen
			} else {
				break
			}
		}

		if reps >= r.cfg.MinRepetitions {
			return candidate, reps, true
		}
	}
	return nil, 0, false
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *Repetition) Poll(state State) (bool, string) {
	r.addPiece(state.Piece)

	if len(r.window) == 0 || r.windowSize < r.cfg.MinPatternLength {
		return false, ""
	}

	pattern, count, found := r.detect()
	if !found {
		return false, ""
	}

	display := pattern
	truncated := len(pattern) > 50
	if truncated {
		display = pattern[:50]
	}

	var message string
	if truncated {
		message = fmt.Sprintf(
			"Repetition detected: '%s...' (pattern length: %d) repeated %d times",
			string(display), len(pattern), count,
		)
	} else {
		message = fmt.Sprintf(
			"Repetition detected: '%s' repeated %d times",
			string(display), count,
		)
	}
	return true, message
}
