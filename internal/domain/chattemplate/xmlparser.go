package chattemplate

import (
	"encoding/json"
	"regexp"

	"github.com/localagent/runtime/internal/domain/entity"
)

var (
	xmlFunctionCallRe = regexp.MustCompile(`(?s)<function_call[^>]*>(.*?)</function_call>`)
	xmlToolCallRe      = regexp.MustCompile(`(?s)<tool_call[^>]*>(.*?)</tool_call>`)
	xmlNameAttrRe      = regexp.MustCompile(`name="([^"]*)"`)
	xmlTagContentRe    = regexp.MustCompile(`(?s)<[^>]*>(.*)</[^>]*>`)
)

// XMLParser extracts tool calls wrapped in <function_call name="...">...
// </function_call> or <tool_call ...>...</tool_call> tags. The inner content
// is parsed as JSON when possible, otherwise carried as a plain string under
// an "input" argument key.
type XMLParser struct{}

func NewXMLParser() *XMLParser { return &XMLParser{} }

func (p *XMLParser) Name() string { return "xml" }

func (p *XMLParser) Parse(text string) ([]entity.ToolCall, error) {
	var calls []entity.ToolCall
	for _, match := range xmlFunctionCallRe.FindAllString(text, -1) {
		if call, ok := parseXMLTag(match); ok {
			calls = append(calls, call)
		}
	}
	for _, match := range xmlToolCallRe.FindAllString(text, -1) {
		if call, ok := parseXMLTag(match); ok {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

func parseXMLTag(tag string) (entity.ToolCall, bool) {
	nameMatch := xmlNameAttrRe.FindStringSubmatch(tag)
	if nameMatch == nil {
		return entity.ToolCall{}, false
	}
	name := nameMatch[1]

	args := map[string]interface{}{}
	if contentMatch := xmlTagContentRe.FindStringSubmatch(tag); contentMatch != nil {
		content := contentMatch[1]
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(content), &parsed); err == nil {
			args = parsed
		} else {
			args = map[string]interface{}{"input": content}
		}
	}

	return entity.ToolCall{ID: entity.NewToolCallID(), Name: name, Arguments: args}, true
}
