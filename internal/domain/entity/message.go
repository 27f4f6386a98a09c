package entity

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a session's conversation history. Tool result
// messages carry ToolCallID/ToolName so the chat template can pair them back
// up with the assistant's tool call when rendering a prompt.
type Message struct {
	Role       Role
	Content    string
	ToolCallID ToolCallID
	ToolName   string
	Timestamp  time.Time
}

// NewMessage builds a user/assistant/system message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewToolResultMessage builds the message representing a tool's output,
// to be appended to history after the tool call it answers.
func NewToolResultMessage(callID ToolCallID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
		Timestamp:  time.Now(),
	}
}

func (m Message) IsFromUser() bool      { return m.Role == RoleUser }
func (m Message) IsFromAssistant() bool { return m.Role == RoleAssistant }
func (m Message) IsToolResult() bool    { return m.Role == RoleTool }
