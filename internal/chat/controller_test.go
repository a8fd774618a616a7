package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"github.com/fumbl3b/harryAi/internal/history"
	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/fumbl3b/harryAi/internal/reveal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]models.Message
	respond func(ctx context.Context, history []models.Message) (models.Message, error)
	ready   error
}

func (f *fakeCompleter) Complete(ctx context.Context, history []models.Message) (models.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]models.Message(nil), history...))
	f.mu.Unlock()
	return f.respond(ctx, history)
}

func (f *fakeCompleter) Ready() error {
	return f.ready
}

func (f *fakeCompleter) Calls() [][]models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func replyWith(text string) func(context.Context, []models.Message) (models.Message, error) {
	return func(context.Context, []models.Message) (models.Message, error) {
		return models.Message{Role: models.RoleAssistant, Content: text}, nil
	}
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []models.TurnRecord
}

func (r *recordingRecorder) RecordTurn(_ context.Context, rec models.TurnRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRecorder) Records() []models.TurnRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TurnRecord(nil), r.records...)
}

type scriptedRevealer struct {
	fragments []string
	err       error
}

func (s scriptedRevealer) Run(_ context.Context, _ string, emit func(string) error) error {
	for _, f := range s.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return s.err
}

// instantReveal is the production scheduler with no pacing delay.
func instantReveal() Revealer {
	return reveal.New(reveal.WithBudget(0), reveal.WithSplitter(reveal.FixedChunks(4, 10)))
}

func newTestController(t *testing.T, client Completer, opts ...Option) *Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts = append([]Option{WithLogger(logger), WithRevealer(instantReveal())}, opts...)
	c := New(history.New("", history.WithLogger(logger)), client, opts...)
	t.Cleanup(c.Close)
	return c
}

func TestSubmit_MultiTurnHistory(t *testing.T) {
	client := &fakeCompleter{respond: replyWith("Mock API response")}
	c := newTestController(t, client)
	ctx := context.Background()
	system := models.Message{Role: models.RoleSystem, Content: models.DefaultSystemPrompt}

	require.NoError(t, c.Submit(ctx, "First question"))
	assert.Equal(t, []models.Message{
		system,
		{Role: models.RoleUser, Content: "First question"},
		{Role: models.RoleAssistant, Content: "Mock API response"},
	}, c.History())

	require.NoError(t, c.Submit(ctx, "Follow-up question"))
	history := c.History()
	require.Len(t, history, 5)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "Follow-up question"}, history[3])
	assert.Equal(t, models.RoleAssistant, history[4].Role)

	require.NoError(t, c.Submit(ctx, "Third question"))
	require.Len(t, c.History(), 7)

	calls := client.Calls()
	require.Len(t, calls, 3)
	want := append(history[:5:5], models.Message{Role: models.RoleUser, Content: "Third question"})
	assert.Equal(t, want, calls[2], "third payload is the previous history plus the new user message")
	assert.Len(t, calls[0], 2)
	assert.Len(t, calls[1], 4)

	for i, msg := range c.History()[1:] {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, msg.Role)
		} else {
			assert.Equal(t, models.RoleAssistant, msg.Role)
		}
	}
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmit_DisplayAfterReveal(t *testing.T) {
	long := strings.Repeat("long reply ", 5)
	c := newTestController(t, &fakeCompleter{respond: replyWith(long)})

	require.NoError(t, c.Submit(context.Background(), "  hello  "))

	snap := c.Snapshot()
	assert.Equal(t, []models.DisplayRecord{
		{Text: "hello", IsUser: true},
		{Text: long},
	}, snap.Messages)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)
}

func TestSubmit_ObserversSeeEveryStage(t *testing.T) {
	long := strings.Repeat("x", 40)
	c := newTestController(t, &fakeCompleter{respond: replyWith(long)})

	var snaps []Snapshot
	c.OnChange(func(s Snapshot) { snaps = append(snaps, s) })

	require.NoError(t, c.Submit(context.Background(), "hi"))

	var states []State
	var lastTexts []string
	for i, s := range snaps {
		states = append(states, s.State)
		lastTexts = append(lastTexts, s.Messages[len(s.Messages)-1].Text)
		if i > 0 {
			assert.Greater(t, s.Seq, snaps[i-1].Seq)
		}
	}
	assert.Equal(t, StateUserMessageCommitted, states[0])
	assert.Equal(t, models.TypingPlaceholder, lastTexts[0])
	assert.Contains(t, states, StateAwaitingCompletion)
	assert.Contains(t, states, StateRevealing)
	assert.Contains(t, states, StateCommitted)
	assert.Equal(t, StateIdle, states[len(states)-1])
	assert.Contains(t, lastTexts, models.FetchingPlaceholder)
	assert.Contains(t, lastTexts, long[:10], "first fragment replaces the placeholder")
	assert.Equal(t, long, lastTexts[len(lastTexts)-1])
}

func TestSubmit_UpstreamFailure(t *testing.T) {
	client := &fakeCompleter{respond: func(context.Context, []models.Message) (models.Message, error) {
		return models.Message{}, apperrors.NewUpstreamError("network error", errors.New("dial tcp: connection refused"))
	}}
	c := newTestController(t, client)

	err := c.Submit(context.Background(), "First question")
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))

	history := c.History()
	require.Len(t, history, 2, "only the user message is added")
	assert.Equal(t, models.RoleUser, history[1].Role)

	snap := c.Snapshot()
	last := snap.Messages[len(snap.Messages)-1]
	assert.Equal(t, models.DisplayRecord{Text: UpstreamNotice, IsError: true}, last)
	assert.Equal(t, "network error", snap.Error)
	assert.Equal(t, StateIdle, snap.State)

	// The conversation keeps working after a failure.
	client.respond = replyWith("recovered")
	require.NoError(t, c.Submit(context.Background(), "Again"))
	history = c.History()
	require.Len(t, history, 4)
	assert.Equal(t, "recovered", history[3].Content)
	assert.Empty(t, c.LastError())
}

func TestSubmit_RevealFailureDiscardsPartialText(t *testing.T) {
	client := &fakeCompleter{respond: replyWith("a full answer")}
	rev := scriptedRevealer{
		fragments: []string{"a full", reveal.ErrorPrefix + "interrupted"},
		err:       apperrors.NewSchedulingError("interrupted", nil),
	}
	c := newTestController(t, client, WithRevealer(rev))

	err := c.Submit(context.Background(), "q")
	assert.ErrorIs(t, err, apperrors.ErrScheduling)

	assert.Len(t, c.History(), 2)
	snap := c.Snapshot()
	assert.Equal(t, models.DisplayRecord{Text: GenericNotice, IsError: true}, snap.Messages[1])
	assert.Equal(t, "interrupted", snap.Error)
}

func TestSubmit_MissingCredentialsNeverDispatched(t *testing.T) {
	client := &fakeCompleter{
		respond: replyWith("unused"),
		ready:   apperrors.NewConfigError("OPENAI_API_KEY", "missing API key"),
	}
	c := newTestController(t, client)

	err := c.Submit(context.Background(), "q")

	var cfgErr *apperrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, client.Calls())
	assert.Equal(t, UpstreamNotice, c.Snapshot().Messages[1].Text)
	assert.Len(t, c.History(), 2)
}

func TestSubmit_RejectsEmptyText(t *testing.T) {
	client := &fakeCompleter{respond: replyWith("unused")}
	c := newTestController(t, client)

	for _, text := range []string{"", "   ", "\n\t"} {
		err := c.Submit(context.Background(), text)
		assert.ErrorIs(t, err, apperrors.ErrInvalidMessage)
	}
	assert.Len(t, c.History(), 1)
	assert.Empty(t, c.Snapshot().Messages)
	assert.Empty(t, client.Calls())
}

func TestSubmit_RejectsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	client := &fakeCompleter{respond: func(ctx context.Context, _ []models.Message) (models.Message, error) {
		<-release
		return models.Message{Role: models.RoleAssistant, Content: "done"}, nil
	}}
	c := newTestController(t, client)

	require.NoError(t, c.Dispatch("first"))
	require.Eventually(t, func() bool { return c.State() == StateAwaitingCompletion }, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.Submit(context.Background(), "second"), ErrTurnInProgress)
	assert.ErrorIs(t, c.Dispatch("third"), ErrTurnInProgress)

	close(release)
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)

	assert.Equal(t, []models.Message{
		{Role: models.RoleSystem, Content: models.DefaultSystemPrompt},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "done"},
	}, c.History())
}

func TestSubmit_MarkerLikeTextIsOrdinaryContent(t *testing.T) {
	reply := models.FetchingPlaceholder + " done"
	client := &fakeCompleter{respond: replyWith(reply)}
	c := newTestController(t, client)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, models.TypingPlaceholder))
	assert.Equal(t, []models.Message{
		{Role: models.RoleSystem, Content: models.DefaultSystemPrompt},
		{Role: models.RoleUser, Content: models.TypingPlaceholder},
		{Role: models.RoleAssistant, Content: reply},
	}, c.History())
	assert.Equal(t, []models.DisplayRecord{
		{Text: models.TypingPlaceholder, IsUser: true},
		{Text: reply},
	}, c.Snapshot().Messages)

	// The controller stays usable afterwards.
	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, models.FetchingPlaceholder) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second submit blocked")
	}
	assert.Len(t, c.History(), 5)
	assert.Equal(t, StateIdle, c.State())
	assert.Len(t, client.Calls(), 2)
}

func TestSubmit_ReplyMatchingTypingMarker(t *testing.T) {
	c := newTestController(t, &fakeCompleter{respond: replyWith(models.TypingPlaceholder)})

	require.NoError(t, c.Submit(context.Background(), "say three dots"))
	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, models.TypingPlaceholder, history[2].Content)

	last := c.Snapshot().Messages[1]
	assert.Equal(t, models.TypingPlaceholder, last.Text)
	assert.False(t, last.IsTyping)
	assert.Equal(t, StateIdle, c.State())
}

func TestClearChat(t *testing.T) {
	c := newTestController(t, &fakeCompleter{respond: replyWith("answer")})
	require.NoError(t, c.Submit(context.Background(), "one"))
	require.NoError(t, c.Submit(context.Background(), "two"))
	require.Len(t, c.History(), 5)

	c.ClearChat()

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleSystem, history[0].Role)
	assert.Empty(t, c.Snapshot().Messages)
	assert.Equal(t, StateIdle, c.State())
}

func TestClearChat_AbandonsInFlightTurn(t *testing.T) {
	late := make(chan struct{})
	client := &fakeCompleter{respond: func(ctx context.Context, _ []models.Message) (models.Message, error) {
		<-late
		return models.Message{Role: models.RoleAssistant, Content: "late reply"}, nil
	}}
	rec := &recordingRecorder{}
	c := newTestController(t, client, WithRecorder(rec))

	require.NoError(t, c.Dispatch("question"))
	require.Eventually(t, func() bool { return c.State() == StateAwaitingCompletion }, time.Second, time.Millisecond)

	c.ClearChat()
	assert.Equal(t, StateIdle, c.State())

	close(late)

	require.Eventually(t, func() bool { return len(rec.Records()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "abandoned", rec.Records()[0].Outcome)
	assert.Len(t, c.History(), 1)
	assert.Empty(t, c.Snapshot().Messages)
}

func TestClearChat_DuringReveal(t *testing.T) {
	revealing := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	rev := revealerFunc(func(ctx context.Context, text string, emit func(string) error) error {
		if err := emit("par"); err != nil {
			return err
		}
		once.Do(func() { close(revealing) })
		<-proceed
		return emit("tial")
	})
	c := newTestController(t, &fakeCompleter{respond: replyWith("partial")}, WithRevealer(rev))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(context.Background(), "q") }()

	<-revealing
	c.ClearChat()
	close(proceed)

	assert.ErrorIs(t, <-errCh, ErrTurnAbandoned)
	assert.Len(t, c.History(), 1)
	assert.Empty(t, c.Snapshot().Messages)

	require.NoError(t, c.Submit(context.Background(), "fresh"))
	assert.Len(t, c.History(), 3)
}

func TestRecorder_CompleteAndFailed(t *testing.T) {
	rec := &recordingRecorder{}
	client := &fakeCompleter{respond: replyWith("fine")}
	c := newTestController(t, client, WithRecorder(rec))

	require.NoError(t, c.Submit(context.Background(), "ok?"))
	client.respond = func(context.Context, []models.Message) (models.Message, error) {
		return models.Message{}, apperrors.NewUpstreamError("boom", nil)
	}
	require.Error(t, c.Submit(context.Background(), "and now?"))

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "complete", records[0].Outcome)
	assert.Equal(t, "ok?", records[0].UserText)
	assert.Equal(t, "fine", records[0].Reply)
	assert.Equal(t, 1, records[0].Fragments)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, "failed", records[1].Outcome)
	assert.Contains(t, records[1].Error, "boom")
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestClose_CancelsBackgroundTurn(t *testing.T) {
	client := &fakeCompleter{respond: func(ctx context.Context, _ []models.Message) (models.Message, error) {
		<-ctx.Done()
		return models.Message{}, apperrors.NewUpstreamError("cancelled", ctx.Err())
	}}
	c := New(history.New(""), client, WithRevealer(instantReveal()))

	require.NoError(t, c.Dispatch("q"))
	c.Close()

	assert.ErrorIs(t, c.Dispatch("again"), ErrClosed)
	assert.Equal(t, StateIdle, c.State())
	assert.Len(t, c.History(), 2)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_completion", StateAwaitingCompletion.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.False(t, StateIdle.Busy())
	assert.True(t, StateRevealing.Busy())
}

type revealerFunc func(ctx context.Context, text string, emit func(string) error) error

func (f revealerFunc) Run(ctx context.Context, text string, emit func(string) error) error {
	return f(ctx, text, emit)
}
