package models

import (
	"strings"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
)

// Sanitize prepares a history for the completion provider. Entries with an
// unknown role or blank content are dropped, and the default system prompt is
// prepended when no system message survives. It fails only when nothing but
// system messages remain. The returned count is the number of dropped entries.
func Sanitize(messages []Message) ([]Message, int, error) {
	if messages == nil {
		return nil, 0, apperrors.NewValidationError("messages", "messages array is required")
	}

	clean := make([]Message, 0, len(messages)+1)
	hasSystem := false
	conversational := 0
	for _, msg := range messages {
		if !msg.Role.Valid() || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			hasSystem = true
		default:
			conversational++
		}
		clean = append(clean, msg)
	}
	dropped := len(messages) - len(clean)

	if conversational == 0 {
		return nil, dropped, apperrors.NewValidationError("messages", apperrors.ErrNoMessages.Error())
	}

	if !hasSystem {
		clean = append([]Message{{Role: RoleSystem, Content: DefaultSystemPrompt}}, clean...)
	}
	return clean, dropped, nil
}
