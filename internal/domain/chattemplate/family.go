package chattemplate

import "strings"

// Family is a model-template family tag.
type Family string

const (
	FamilyChatML   Family = "chatml"
	FamilyPhi3     Family = "phi3"
	FamilyFallback Family = "fallback"
)

// DetectFamily is a pure function from a model source descriptor (its
// configured repo/folder/filename, concatenated) to a family tag. "qwen"
// maps to ChatML (its native format); "phi" maps to Phi-3; anything else
// also resolves to ChatML. Matching is a case-insensitive
// substring test, same as the original implementation's detect_model_type,
// which itself only ever resolves to "qwen" or "phi3" — its own default arm
// defaults to "qwen" (original_source/llama-agent/src/chat_template.rs:283-285),
// so FamilyFallback is never reachable through detection alone in either
// implementation. ResolveFamily is the one reachable path to it here.
func DetectFamily(sourceDescriptor string) Family {
	lower := strings.ToLower(sourceDescriptor)
	switch {
	case strings.Contains(lower, "phi"):
		return FamilyPhi3
	case strings.Contains(lower, "qwen"):
		return FamilyChatML
	default:
		return FamilyChatML
	}
}

// ResolveFamily returns override when it names one of the three known
// families, otherwise falls back to auto-detecting from sourceDescriptor.
// This is how an operator reaches FamilyFallback: the original's own
// format_chat_template is documented in its source as "useful for testing"
// rather than wired into automatic detection, so this runtime exposes the
// same template as an explicit model.chat_template_family override
// (config.go) for models whose prompt format neither ChatML nor Phi-3 fits,
// rather than guessing at it via substring detection.
func ResolveFamily(sourceDescriptor string, override Family) Family {
	switch override {
	case FamilyChatML, FamilyPhi3, FamilyFallback:
		return override
	default:
		return DetectFamily(sourceDescriptor)
	}
}
