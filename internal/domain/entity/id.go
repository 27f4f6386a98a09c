package entity

import "github.com/google/uuid"

// SessionID identifies a Session. It is a UUIDv7 string: its lexicographic
// order matches creation order, which lets the session store and its tests
// sort or range over sessions without a separate timestamp index.
type SessionID string

// ToolCallID identifies a single tool invocation within a turn.
type ToolCallID string

// NewSessionID mints a new time-ordered session identifier.
func NewSessionID() SessionID {
	return SessionID(mustUUIDv7())
}

// NewToolCallID mints a new time-ordered tool-call identifier.
func NewToolCallID() ToolCallID {
	return ToolCallID(mustUUIDv7())
}

func mustUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global crypto/rand reader errors,
		// which is unrecoverable for the process anyway.
		panic("entity: failed to generate uuidv7: " + err.Error())
	}
	return id.String()
}
