package entity

import "time"

// Session is a conversation's state: its message history and the tools it
// has discovered. Messages are append-only; callers never splice or remove.
type Session struct {
	ID              SessionID
	Messages        []Message
	AvailableTools  []ToolDefinition
	AvailablePrompts []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSession creates an empty session with both timestamps set to now.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        NewSessionID(),
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep-enough copy for safe hand-off outside the store's lock.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.AvailableTools = append([]ToolDefinition(nil), s.AvailableTools...)
	c.AvailablePrompts = append([]string(nil), s.AvailablePrompts...)
	return &c
}

// AddMessage appends a message and touches UpdatedAt.
func (s *Session) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now()
}

// SetAvailableTools replaces the tool set wholesale (full replacement per
// discovery semantics) and touches UpdatedAt.
func (s *Session) SetAvailableTools(tools []ToolDefinition) {
	s.AvailableTools = tools
	s.UpdatedAt = time.Now()
}

// HasTool reports whether a tool of the given name is available in this
// session.
func (s *Session) HasTool(name string) bool {
	for _, t := range s.AvailableTools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or false if there are none.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
