// Package validation implements the three composable request/session/message
// validators plus tool-call validation, per message_validator.rs in the
// original implementation.
package validation

import (
	"fmt"
	"strings"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

const (
	defaultMaxContentLength = 100_000
	repetitionThreshold     = 5
	repetitionWindowLen     = 20
	repetitionPatternLen    = 4
	repetitionMinContentLen = 100
)

// suspiciousPatterns is the exact denylist from the original implementation:
// script/template/command/SQL-injection and path-traversal fragments.
var suspiciousPatterns = []string{
	"<script", "</script>", "javascript:", "eval(", "function(",
	"${{", "}}", "<%", "%>", "<?php", "?>",
	"rm -rf",
	"DELETE FROM", "DROP TABLE", "INSERT INTO",
	"../../../", `..\..\..\`,
}

// MessageContentValidator rejects oversized, suspicious, or spam-shaped
// message content.
type MessageContentValidator struct {
	maxLength           int
	repetitionThreshold int
}

func NewMessageContentValidator() *MessageContentValidator {
	return &MessageContentValidator{
		maxLength:           defaultMaxContentLength,
		repetitionThreshold: repetitionThreshold,
	}
}

func (v *MessageContentValidator) Validate(msg entity.Message) error {
	content := msg.Content

	if len(content) > v.maxLength {
		return pkgerrors.NewContentValidationError(fmt.Sprintf(
			"Message exceeds maximum length of %dKB (current: %dKB)",
			v.maxLength/1000, len(content)/1000,
		))
	}

	if containsSuspiciousContent(content) {
		return pkgerrors.NewSecurityViolationError("Message contains potentially unsafe content patterns")
	}

	if hasExcessiveRepetition(content, v.repetitionThreshold) {
		return pkgerrors.NewSecurityViolationError("Message contains excessive repetition patterns")
	}

	return nil
}

func containsSuspiciousContent(content string) bool {
	lower := strings.ToLower(content)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// hasExcessiveRepetition takes the 4-rune pattern at each starting rune and
// counts how many times it repeats back-to-back in the 4-rune blocks that
// follow; a run reaching threshold is rejected. Content under 100 bytes is
// always allowed.
func hasExcessiveRepetition(content string, threshold int) bool {
	if len(content) < repetitionMinContentLen {
		return false
	}

	runes := []rune(content)
	n := len(runes)
	if n < repetitionWindowLen {
		return false
	}

	for i := 0; i <= n-repetitionWindowLen; i++ {
		pattern := runes[i : i+repetitionPatternLen]
		count := 1
		for j := i + repetitionPatternLen; j <= n-repetitionPatternLen; j += repetitionPatternLen {
			if runesEqual(runes[j:j+repetitionPatternLen], pattern) {
				count++
				if count >= threshold {
					return true
				}
			} else {
				break
			}
		}
	}
	return false
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
