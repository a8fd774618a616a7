package history

import (
	"fmt"
	"strings"

	"github.com/fumbl3b/harryAi/internal/models"
)

// Verify checks the structural rules of a provider history: a leading block
// of system messages, non-empty content, and every assistant reply directly
// following a user message. Content is never compared against the display
// markers; a user may legitimately type "...".
func Verify(history []models.Message) error {
	if len(history) == 0 || history[0].Role != models.RoleSystem {
		return fmt.Errorf("history must start with a system message")
	}
	inPrefix := true
	for i, msg := range history {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has unknown role %q", i, msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("message %d (%s) is empty", i, msg.Role)
		}
		switch msg.Role {
		case models.RoleSystem:
			if !inPrefix {
				return fmt.Errorf("system message at %d after conversation started", i)
			}
		case models.RoleAssistant:
			inPrefix = false
			if history[i-1].Role != models.RoleUser {
				return fmt.Errorf("assistant message at %d does not follow a user message", i)
			}
		default:
			inPrefix = false
		}
	}
	return nil
}

func (s *Store) checkLocked() {
	if err := Verify(s.history); err != nil {
		panic(fmt.Sprintf("history: invariant violated: %v", err))
	}
	if s.turn != nil {
		if len(s.display) == 0 || s.display[len(s.display)-1].IsUser {
			panic("history: invariant violated: active turn without an assistant display record")
		}
	}
	// Typing markers belong to the active turn's record and nowhere else.
	for i, rec := range s.display {
		if rec.IsTyping && (s.turn == nil || i != len(s.display)-1) {
			panic(fmt.Sprintf("history: invariant violated: stray typing record at %d", i))
		}
	}
}
