// Package reveal turns one complete response into a paced sequence of
// fragments.
package reveal

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"github.com/fumbl3b/harryAi/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultChunks    = 20
	DefaultThreshold = 100
	DefaultBudget    = 2500 * time.Millisecond

	// ErrorPrefix marks the terminal fragment emitted on a scheduling fault.
	ErrorPrefix = "Error: "
)

// Splitter cuts a non-empty text into ordered, non-empty pieces.
type Splitter func(text string) []string

// FixedChunks returns the fixed-budget policy: text shorter than threshold
// runes is one chunk, anything longer is cut into at most chunks equal
// slices on rune boundaries. Slices are taken from text's bytes, so invalid
// UTF-8 survives the round trip.
func FixedChunks(chunks, threshold int) Splitter {
	if chunks <= 0 {
		chunks = DefaultChunks
	}
	return func(text string) []string {
		n := utf8.RuneCountInString(text)
		if n < threshold {
			return []string{text}
		}
		size := (n + chunks - 1) / chunks
		out := make([]string, 0, chunks)
		start, count := 0, 0
		for i := range text {
			if count > 0 && count%size == 0 {
				out = append(out, text[start:i])
				start = i
			}
			count++
		}
		return append(out, text[start:])
	}
}

// Sentences returns a policy backed by Fragment. With target <= 0 the
// target is derived so the text lands in about chunks pieces.
func Sentences(target, chunks int) Splitter {
	if chunks <= 0 {
		chunks = DefaultChunks
	}
	return func(text string) []string {
		t := target
		if t <= 0 {
			t = (utf8.RuneCountInString(text) + chunks - 1) / chunks
		}
		return Fragment(text, t)
	}
}

type Scheduler struct {
	split  Splitter
	budget time.Duration
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Scheduler)

func WithSplitter(split Splitter) Option {
	return func(s *Scheduler) {
		s.split = split
	}
}

// WithBudget sets the total wall-clock time a reveal is spread over.
func WithBudget(budget time.Duration) Option {
	return func(s *Scheduler) {
		s.budget = budget
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		split:  FixedChunks(DefaultChunks, DefaultThreshold),
		budget: DefaultBudget,
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run emits text through emit, left to right, spreading the fragments over
// the budget. It returns once, after the last fragment or on failure.
//
// Empty text emits a single "No response" fragment. On a scheduling fault
// (cancellation, a misbehaving splitter) one terminal fragment prefixed with
// ErrorPrefix is emitted and a *SchedulingError is returned. An error from
// emit itself stops the reveal and is returned unchanged.
func (s *Scheduler) Run(ctx context.Context, text string, emit func(fragment string) error) error {
	if text == "" {
		return emit(models.NoResponse)
	}

	fragments, err := s.fragments(text)
	if err != nil {
		return s.fail(emit, err)
	}

	delay := s.budget / time.Duration(len(fragments))
	s.logger.Debug("Revealing response",
		zap.Int("fragments", len(fragments)),
		zap.Duration("delay", delay))

	for i, fragment := range fragments {
		if err := ctx.Err(); err != nil {
			return s.fail(emit, apperrors.NewSchedulingError("reveal interrupted", err))
		}
		if err := emit(fragment); err != nil {
			return err
		}
		if i < len(fragments)-1 {
			if err := s.sleep(ctx, delay); err != nil {
				return s.fail(emit, apperrors.NewSchedulingError("reveal interrupted", err))
			}
		}
	}
	return nil
}

func (s *Scheduler) fragments(text string) (fragments []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewSchedulingError("splitter panicked", fmt.Errorf("%v", r))
		}
	}()

	fragments = s.split(text)
	if len(fragments) == 0 {
		return nil, apperrors.NewSchedulingError("splitter produced no fragments", nil)
	}
	for _, f := range fragments {
		if f == "" {
			return nil, apperrors.NewSchedulingError("splitter produced an empty fragment", nil)
		}
	}
	if strings.Join(fragments, "") != text {
		return nil, apperrors.NewSchedulingError("fragments do not reproduce the response", nil)
	}
	return fragments, nil
}

func (s *Scheduler) fail(emit func(string) error, err error) error {
	s.logger.Warn("Reveal failed", zap.Error(err))
	if emitErr := emit(ErrorPrefix + apperrors.Detail(err)); emitErr != nil {
		s.logger.Debug("Terminal fragment not delivered", zap.Error(emitErr))
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
