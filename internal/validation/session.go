package validation

import (
	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// SessionStateValidator checks that a session is in a state generation can
// proceed from: it exists, has at least one message, and its last message
// is one generation can continue from (user or tool), never assistant.
type SessionStateValidator struct{}

func NewSessionStateValidator() *SessionStateValidator { return &SessionStateValidator{} }

func (v *SessionStateValidator) Validate(session *entity.Session) error {
	if session == nil {
		return pkgerrors.NewSessionInvalidStateError("session does not exist")
	}
	if len(session.Messages) == 0 {
		return pkgerrors.NewSessionInvalidStateError("session has no messages")
	}

	last, _ := session.LastMessage()
	if !last.IsFromUser() && !last.IsToolResult() {
		return pkgerrors.NewSessionInvalidStateError(
			"last message role must be user or tool to generate a response")
	}

	prev := session.Messages[0].Timestamp
	for _, m := range session.Messages[1:] {
		if m.Timestamp.Before(prev) {
			return pkgerrors.NewSessionInvalidStateError("message timestamps are not monotonic")
		}
		prev = m.Timestamp
	}

	return nil
}
