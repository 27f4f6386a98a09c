package chattemplate

import (
	"encoding/json"
	"strings"

	"github.com/localagent/runtime/internal/domain/entity"
)

// giveUpLength bounds a single balanced-brace scan so pathological input
// (an unterminated '{' near the start of a very long generation) cannot make
// extraction scan the whole remaining text.
const giveUpLength = 10000

// jsonStartPrefixes anchor the fallback pass: a '{' followed, after optional
// whitespace, by one of these keys, used when the text around a tool call is otherwise
// malformed (stray prose before/after the object).
var jsonStartPrefixes = []string{`"function_name"`, `"tool"`, `"name"`}

// JSONParser extracts tool calls expressed as a single JSON object, trying
// three recognized shapes: {function_name, arguments}, {tool, parameters},
// {name, args}.
type JSONParser struct{}

func NewJSONParser() *JSONParser { return &JSONParser{} }

func (p *JSONParser) Name() string { return "json" }

func (p *JSONParser) Parse(text string) ([]entity.ToolCall, error) {
	var calls []entity.ToolCall

	for _, candidate := range scanBalancedObjects(text) {
		if call, ok := parseCandidate(candidate); ok {
			calls = append(calls, call)
		}
	}
	if len(calls) > 0 {
		return calls, nil
	}

	calls = p.parseLineByLine(text)
	if len(calls) > 0 {
		return calls, nil
	}

	return p.parseAnchoredFallback(text), nil
}

func (p *JSONParser) parseLineByLine(text string) []entity.ToolCall {
	var calls []entity.ToolCall
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			continue
		}
		if call, ok := parseCandidate(trimmed); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func (p *JSONParser) parseAnchoredFallback(text string) []entity.ToolCall {
	var calls []entity.ToolCall
	for _, prefix := range jsonStartPrefixes {
		start := 0
		for {
			idx := strings.Index(text[start:], "{")
			if idx < 0 {
				break
			}
			pos := start + idx
			start = pos + 1

			after := strings.TrimLeft(text[pos+1:], " \t\r\n")
			if !strings.HasPrefix(after, prefix) {
				continue
			}
			if obj, ok := extractBalancedJSON(text[pos:]); ok {
				if call, ok := parseCandidate(obj); ok {
					calls = append(calls, call)
				}
			}
		}
	}
	return calls
}

// scanBalancedObjects walks the whole text once, using a brace-depth/string/
// escape state machine, and returns each top-level balanced `{...}` span it
// finds (nested braces inside are consumed as part of the outer object, not
// reported separately).
func scanBalancedObjects(text string) []string {
	var objects []string
	depth := 0
	inString := false
	escapeNext := false
	start := -1

	for i, ch := range text {
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escapeNext = true
		case ch == '"':
			inString = !inString
		case ch == '{' && !inString:
			if depth == 0 {
				start = i
			}
			depth++
		case ch == '}' && !inString:
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					objects = append(objects, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return objects
}

// extractBalancedJSON scans forward from the start of text (which must begin
// with '{') and returns the substring up to the matching closing brace,
// respecting quoted strings and escapes. Gives up past giveUpLength bytes.
func extractBalancedJSON(text string) (string, bool) {
	depth := 0
	inString := false
	escapeNext := false
	started := false

	for i, ch := range text {
		if i > giveUpLength {
			return "", false
		}
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escapeNext = true
		case ch == '"':
			inString = !inString
		case ch == '{' && !inString:
			depth++
			started = true
		case ch == '}' && !inString:
			depth--
			if started && depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

func parseCandidate(jsonText string) (entity.ToolCall, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return entity.ToolCall{}, false
	}

	if name, args, ok := shapeOf(obj, "function_name", "arguments"); ok {
		return buildCall(name, args), true
	}
	if name, args, ok := shapeOf(obj, "tool", "parameters"); ok {
		return buildCall(name, args), true
	}
	if name, args, ok := shapeOf(obj, "name", "args"); ok {
		return buildCall(name, args), true
	}
	return entity.ToolCall{}, false
}

func shapeOf(obj map[string]json.RawMessage, nameKey, argsKey string) (string, map[string]interface{}, bool) {
	rawName, hasName := obj[nameKey]
	rawArgs, hasArgs := obj[argsKey]
	if !hasName || !hasArgs {
		return "", nil, false
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return "", nil, false
	}
	var args map[string]interface{}
	_ = json.Unmarshal(rawArgs, &args)
	return name, args, true
}

func buildCall(name string, args map[string]interface{}) entity.ToolCall {
	if args == nil {
		args = map[string]interface{}{}
	}
	return entity.ToolCall{ID: entity.NewToolCallID(), Name: name, Arguments: args}
}
