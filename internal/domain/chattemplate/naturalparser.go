package chattemplate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/localagent/runtime/internal/domain/entity"
)

var (
	naturalCallWithRe = regexp.MustCompile(`(?i)call\s+(\w+)\s+with\s+(?:arguments?\s+)?(.+)`)
	naturalFnCallRe    = regexp.MustCompile(`(\w+)\s*\(([^)]*)\)`)
)

// NaturalParser extracts tool calls expressed as natural-language-shaped
// directives: "call NAME with ARGS" or "NAME(ARGS)".
type NaturalParser struct{}

func NewNaturalParser() *NaturalParser { return &NaturalParser{} }

func (p *NaturalParser) Name() string { return "natural" }

func (p *NaturalParser) Parse(text string) ([]entity.ToolCall, error) {
	var calls []entity.ToolCall

	for _, m := range naturalCallWithRe.FindAllStringSubmatch(text, -1) {
		calls = append(calls, buildNaturalCall(m[1], m[2]))
	}
	if len(calls) > 0 {
		return calls, nil
	}

	for _, m := range naturalFnCallRe.FindAllStringSubmatch(text, -1) {
		calls = append(calls, buildNaturalCall(m[1], m[2]))
	}
	return calls, nil
}

func buildNaturalCall(name, argsStr string) entity.ToolCall {
	argsStr = strings.TrimSpace(argsStr)

	args := map[string]interface{}{}
	if strings.HasPrefix(argsStr, "{") && strings.HasSuffix(argsStr, "}") {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(argsStr), &parsed); err == nil {
			args = parsed
		} else {
			args = map[string]interface{}{"input": argsStr}
		}
	} else if argsStr != "" {
		args = map[string]interface{}{"input": argsStr}
	}

	return entity.ToolCall{ID: entity.NewToolCallID(), Name: name, Arguments: args}
}
