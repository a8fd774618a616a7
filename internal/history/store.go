// Package history owns the authoritative provider history and the UI-facing
// display list. It is the only write path for either.
package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStaleTurn is returned when a turn-scoped mutation names a turn that
	// is no longer active, e.g. after Clear. The mutation is not applied.
	ErrStaleTurn = errors.New("turn is no longer active")
	// ErrRevealOrder is returned when fragments arrive out of order for the
	// active turn.
	ErrRevealOrder = errors.New("fragment out of order")
)

type turnState struct {
	id       models.TurnID
	revealed bool
}

// Store holds both lists behind one mutex.
type Store struct {
	mu      sync.RWMutex
	history []models.Message
	display []models.DisplayRecord
	turn    *turnState
	logger  *zap.Logger
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store seeded with one system message. An empty prompt uses
// models.DefaultSystemPrompt.
func New(systemPrompt string, opts ...Option) *Store {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = models.DefaultSystemPrompt
	}
	s := &Store{
		history: []models.Message{{Role: models.RoleSystem, Content: systemPrompt}},
		display: []models.DisplayRecord{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendUser commits a user message to both lists. The caller validates that
// text is non-empty.
func (s *Store) AppendUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, models.Message{Role: models.RoleUser, Content: text})
	s.display = append(s.display, models.DisplayRecord{Text: text, IsUser: true})
	s.checkLocked()

	s.logger.Debug("Added user message", zap.Int("historyLen", len(s.history)))
}

// BeginAssistantTurn appends the typing placeholder to the display list and
// makes a new turn active. Any previous turn becomes stale and its record is
// taken over by the new one.
func (s *Store) BeginAssistantTurn() models.TurnID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.TurnID(uuid.NewString())
	placeholder := models.DisplayRecord{Text: models.TypingPlaceholder, IsTyping: true}
	if s.turn != nil {
		*s.lastLocked() = placeholder
	} else {
		s.display = append(s.display, placeholder)
	}
	s.turn = &turnState{id: id}
	s.checkLocked()
	return id
}

// MarkFetching switches the placeholder to the fetching status while the
// completion call is outstanding.
func (s *Store) MarkFetching(id models.TurnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeLocked(id)
	if err != nil {
		return err
	}
	if t.revealed {
		return ErrRevealOrder
	}
	last := s.lastLocked()
	last.Text = models.FetchingPlaceholder
	last.IsTyping = true
	return nil
}

// RevealFirstFragment replaces the placeholder with the first fragment.
func (s *Store) RevealFirstFragment(id models.TurnID, fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeLocked(id)
	if err != nil {
		return err
	}
	if t.revealed {
		return ErrRevealOrder
	}
	t.revealed = true
	last := s.lastLocked()
	last.Text = fragment
	last.IsTyping = false
	return nil
}

// AppendFragment concatenates a fragment onto the revealing record.
func (s *Store) AppendFragment(id models.TurnID, fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeLocked(id)
	if err != nil {
		return err
	}
	if !t.revealed {
		return ErrRevealOrder
	}
	last := s.lastLocked()
	last.Text += fragment
	last.IsTyping = false
	return nil
}

// CommitAssistant appends the final reply to the history, re-syncs the last
// display record with it and ends the turn.
func (s *Store) CommitAssistant(id models.TurnID, finalText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeLocked(id); err != nil {
		return err
	}
	s.history = append(s.history, models.Message{Role: models.RoleAssistant, Content: finalText})
	last := s.lastLocked()
	last.Text = finalText
	last.IsTyping = false
	last.IsError = false
	s.turn = nil
	s.checkLocked()

	s.logger.Debug("Committed assistant message", zap.Int("historyLen", len(s.history)))
	return nil
}

// RecordFailure overwrites the last display record with an error notice and
// ends the turn. The history is left untouched.
func (s *Store) RecordFailure(id models.TurnID, notice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeLocked(id); err != nil {
		return err
	}
	last := s.lastLocked()
	*last = models.DisplayRecord{Text: notice, IsError: true}
	s.turn = nil
	s.checkLocked()
	return nil
}

// ProviderMessages returns a copy of the history in conversational order.
func (s *Store) ProviderMessages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) Display() []models.DisplayRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DisplayRecord, len(s.display))
	copy(out, s.display)
	return out
}

// ActiveTurn returns the in-flight turn, or "" when none.
func (s *Store) ActiveTurn() models.TurnID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.turn == nil {
		return ""
	}
	return s.turn.id
}

// Clear empties the display list and keeps only system messages in the
// history, synthesizing the default one if none exist. The active turn, if
// any, becomes stale.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	system := make([]models.Message, 0, 1)
	for _, msg := range s.history {
		if msg.Role == models.RoleSystem {
			system = append(system, msg)
		}
	}
	if len(system) == 0 {
		system = append(system, models.Message{Role: models.RoleSystem, Content: models.DefaultSystemPrompt})
		s.logger.Debug("Added default system message to empty history")
	}
	s.history = system
	s.display = []models.DisplayRecord{}
	s.turn = nil
	s.checkLocked()

	s.logger.Debug("Cleared chat", zap.Int("systemMessages", len(system)))
}

func (s *Store) activeLocked(id models.TurnID) (*turnState, error) {
	if s.turn == nil || s.turn.id != id {
		return nil, fmt.Errorf("%w: %s", ErrStaleTurn, id)
	}
	return s.turn, nil
}

// lastLocked returns the record of the active turn. BeginAssistantTurn
// guarantees it exists while a turn is active.
func (s *Store) lastLocked() *models.DisplayRecord {
	return &s.display[len(s.display)-1]
}
