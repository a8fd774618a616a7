package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultSystemPrompt = "You are harryAI, a helpful and friendly assistant. You maintain context of your conversations with users and can reference previous messages."

	TypingPlaceholder   = "..."
	FetchingPlaceholder = "Getting response..."
	NoResponse          = "No response"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of the history sent to the completion provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsPlaceholder reports whether text is one of the transient display markers
// that must never reach the provider history.
func IsPlaceholder(text string) bool {
	return text == TypingPlaceholder || strings.HasPrefix(text, FetchingPlaceholder)
}

// DisplayRecord is a UI-facing entry. It may hold transient states.
type DisplayRecord struct {
	Text     string `json:"text"`
	IsUser   bool   `json:"isUser"`
	IsTyping bool   `json:"isTyping"`
	IsError  bool   `json:"isError,omitempty"`
}

type TurnID string

// TurnRecord summarizes a finished turn for the transcript.
type TurnRecord struct {
	ID         TurnID    `json:"id"`
	Outcome    string    `json:"outcome"` // complete, failed or abandoned
	UserText   string    `json:"user_text"`
	Reply      string    `json:"reply,omitempty"`
	Error      string    `json:"error,omitempty"`
	Fragments  int       `json:"fragments"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
