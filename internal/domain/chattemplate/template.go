// Package chattemplate renders a session into a single prompt string for a
// detected model family, and extracts tool calls from generated text via an
// ordered registry of parsers.
package chattemplate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// ToolCallParser is a pure function from generated text to the tool calls it
// contains. A parser returning an empty, non-error result means "I found
// nothing"; the engine moves on to the next parser in the registry.
type ToolCallParser interface {
	Name() string
	Parse(text string) ([]entity.ToolCall, error)
}

// Engine renders sessions to prompts and extracts tool calls from generated
// text.
type Engine struct {
	parsers []ToolCallParser
}

// NewEngine builds the engine with the three required parsers, tried in
// order: JSON, XML, Natural.
func NewEngine() *Engine {
	return &Engine{
		parsers: []ToolCallParser{
			NewJSONParser(),
			NewXMLParser(),
			NewNaturalParser(),
		},
	}
}

// RegisterParser appends a custom parser to the end of the registry.
func (e *Engine) RegisterParser(p ToolCallParser) {
	e.parsers = append(e.parsers, p)
}

// RenderSession renders a session into a prompt string for the given model
// family.
func (e *Engine) RenderSession(session *entity.Session, family Family) (string, error) {
	var toolsContext string
	if len(session.AvailableTools) > 0 {
		var err error
		toolsContext, err = formatToolsForTemplate(session.AvailableTools)
		if err != nil {
			return "", err
		}
	}

	messages := make([]renderedMessage, 0, len(session.Messages)+1)
	if toolsContext != "" {
		messages = append(messages, renderedMessage{role: entity.RoleSystem, content: toolsContext})
	}
	for _, m := range session.Messages {
		content := m.Content
		if m.IsToolResult() {
			content = fmt.Sprintf("Tool result for call %s: %s", m.ToolCallID, m.Content)
		}
		messages = append(messages, renderedMessage{role: m.Role, content: content})
	}

	switch family {
	case FamilyPhi3:
		return renderPhi3(messages), nil
	case FamilyFallback:
		return renderFallback(messages), nil
	default:
		return renderChatML(messages), nil
	}
}

type renderedMessage struct {
	role    entity.Role
	content string
}

func renderChatML(messages []renderedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "<|im_start|>%s\n%s<|im_end|>\n", string(m.role), m.content)
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func renderPhi3(messages []renderedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "<|%s|>\n%s<|end|>\n", string(m.role), m.content)
	}
	b.WriteString("<|assistant|>\n")
	return b.String()
}

func renderFallback(messages []renderedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		label := fallbackLabel(m.role)
		fmt.Fprintf(&b, "### %s:\n%s\n\n", label, m.content)
	}
	b.WriteString("### Assistant:\n")
	return b.String()
}

func fallbackLabel(role entity.Role) string {
	switch role {
	case entity.RoleSystem:
		return "System"
	case entity.RoleUser:
		return "Human"
	case entity.RoleAssistant:
		return "Assistant"
	case entity.RoleTool:
		return "Tool Result"
	default:
		return string(role)
	}
}

func formatToolsForTemplate(tools []entity.ToolDefinition) (string, error) {
	type toolJSON struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	}
	rendered := make([]toolJSON, 0, len(tools))
	for _, t := range tools {
		rendered = append(rendered, toolJSON{Name: t.Name, Description: t.Description, Parameters: t.ParametersSchema})
	}
	formatted, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return "", pkgerrors.NewTemplateRenderingFailedError("failed to format tools JSON: " + err.Error())
	}

	return fmt.Sprintf(
		"You have access to the following tools:\n%s\n\n"+
			"To call a tool, respond with a single JSON object in this exact format, "+
			"with no other text before or after it:\n"+
			`{"function_name": "tool_name", "arguments": {"parameter": "value"}}`,
		string(formatted),
	), nil
}

// ExtractToolCalls tries each registered parser in order and returns the
// first non-empty result, deduplicated by call id.
func (e *Engine) ExtractToolCalls(generatedText string) ([]entity.ToolCall, error) {
	for _, parser := range e.parsers {
		calls, err := parser.Parse(generatedText)
		if err != nil {
			continue
		}
		if len(calls) == 0 {
			continue
		}
		return dedupe(calls), nil
	}
	return nil, nil
}

func dedupe(calls []entity.ToolCall) []entity.ToolCall {
	seen := make(map[entity.ToolCallID]bool, len(calls))
	out := make([]entity.ToolCall, 0, len(calls))
	for _, c := range calls {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
