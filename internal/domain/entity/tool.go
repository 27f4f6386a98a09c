package entity

import "encoding/json"

// ToolDefinition describes a tool discovered from a tool server. It is owned
// by the session that discovered it.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
	ServerName       string
}

// ToolCall is one invocation parsed out of generated text.
type ToolCall struct {
	ID        ToolCallID
	Name      string
	Arguments map[string]interface{}
}

// ToolResult is the structured reply to a ToolCall. Error is populated
// instead of Result when the call failed; it is never both.
type ToolResult struct {
	CallID ToolCallID
	Result interface{}
	Error  string
}

// Failed reports whether this result represents a failure.
func (r ToolResult) Failed() bool { return r.Error != "" }

// Serialize renders the result for embedding into a tool message: the error
// string if the call failed, otherwise the JSON-encoded result.
func (r ToolResult) Serialize() string {
	if r.Failed() {
		return r.Error
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
