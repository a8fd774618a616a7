// Package chat runs conversation turns: it commits the user message, calls
// the completion provider with the authoritative history, paces the reply
// into the display list and commits or repairs the history afterwards.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"github.com/fumbl3b/harryAi/internal/history"
	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/fumbl3b/harryAi/internal/reveal"
	"go.uber.org/zap"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrTurnAbandoned  = errors.New("turn abandoned")
	ErrClosed         = errors.New("controller closed")
)

// User-facing notices written to the display list when a turn fails.
const (
	UpstreamNotice = "Sorry, there was an error processing your request. Please check your API key and try again."
	GenericNotice  = "Sorry, there was an error processing your request."
)

const recordTimeout = 5 * time.Second

// Completer returns one complete assistant message for a history.
type Completer interface {
	Complete(ctx context.Context, history []models.Message) (models.Message, error)
}

// Revealer emits a complete text as paced fragments.
type Revealer interface {
	Run(ctx context.Context, text string, emit func(fragment string) error) error
}

// TurnRecorder receives a summary of every finished turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec models.TurnRecord) error
}

// readiness is implemented by completers that can tell up front whether a
// call could succeed, so a misconfigured turn is never dispatched.
type readiness interface {
	Ready() error
}

// Snapshot is what observers and the UI render.
type Snapshot struct {
	Messages []models.DisplayRecord `json:"messages"`
	State    State                  `json:"state"`
	Error    string                 `json:"error,omitempty"`
	// Seq increases with every snapshot taken; observers called from
	// different goroutines can use it to drop out-of-order deliveries.
	Seq uint64 `json:"seq"`
}

type turn struct {
	id        models.TurnID
	ctx       context.Context
	cancel    context.CancelFunc
	text      string
	started   time.Time
	fragments int
}

type Controller struct {
	store    *history.Store
	client   Completer
	reveal   Revealer
	recorder TurnRecorder
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	lastErr   string
	active    *turn
	closed    bool
	seq       uint64
	observers []func(Snapshot)

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

type Option func(*Controller)

func WithRevealer(r Revealer) Option {
	return func(c *Controller) {
		c.reveal = r
	}
}

func WithRecorder(r TurnRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(store *history.Store, client Completer, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:      store,
		client:     client,
		reveal:     reveal.New(),
		logger:     zap.NewNop(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to be called with a fresh snapshot after every
// display mutation. fn may be called from the goroutine running a turn.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// History returns the authoritative provider history.
func (c *Controller) History() []models.Message {
	return c.store.ProviderMessages()
}

// Submit runs a whole turn on the calling goroutine and returns when the
// reply is committed or the turn failed.
func (c *Controller) Submit(ctx context.Context, text string) error {
	t, err := c.admit(ctx, text, false)
	if err != nil {
		return err
	}
	return c.run(t)
}

// Dispatch admits a turn synchronously and runs the rest in the background.
// Admission errors (empty text, busy, closed) are returned directly.
func (c *Controller) Dispatch(text string) error {
	t, err := c.admit(c.baseCtx, text, true)
	if err != nil {
		return err
	}
	go func() {
		defer c.wg.Done()
		_ = c.run(t)
	}()
	return nil
}

// ClearChat resets the conversation. An in-flight turn is abandoned: its
// context is cancelled and its late mutations become no-ops.
func (c *Controller) ClearChat() {
	c.mu.Lock()
	if c.active != nil {
		c.logger.Info("Abandoning in-flight turn", zap.String("turn", string(c.active.id)))
		c.active.cancel()
		c.active = nil
	}
	c.store.Clear()
	c.state = StateIdle
	c.lastErr = ""
	c.mu.Unlock()

	c.notify()
}

// Close cancels any running turn and waits for background turns to return.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.active != nil {
		c.active.cancel()
	}
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()
}

func (c *Controller) admit(parent context.Context, text string, async bool) (*turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text", "message is empty")
	}

	t, err := c.begin(parent, text, async)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Turn started", zap.String("turn", string(t.id)))
	c.notify()
	return t, nil
}

// begin commits the user message and opens a turn while holding c.mu.
func (c *Controller) begin(parent context.Context, text string, async bool) (*turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		return nil, ErrTurnInProgress
	}

	c.store.AppendUser(text)
	id := c.store.BeginAssistantTurn()
	ctx, cancel := context.WithCancel(parent)
	t := &turn{id: id, ctx: ctx, cancel: cancel, text: text, started: time.Now()}
	c.active = t
	c.state = StateUserMessageCommitted
	c.lastErr = ""
	if async {
		c.wg.Add(1)
	}
	return t, nil
}

func (c *Controller) run(t *turn) error {
	defer t.cancel()

	if r, ok := c.client.(readiness); ok {
		if err := r.Ready(); err != nil {
			return c.fail(t, err)
		}
	}

	if err := c.store.MarkFetching(t.id); err != nil {
		return c.abandon(t, err)
	}
	if !c.transition(t, StateAwaitingCompletion) {
		return c.abandon(t, ErrTurnAbandoned)
	}

	payload, dropped, err := models.Sanitize(c.store.ProviderMessages())
	if err != nil {
		return c.fail(t, err)
	}
	if dropped > 0 {
		c.logger.Warn("Dropped invalid history entries", zap.Int("dropped", dropped))
	}

	reply, err := c.client.Complete(t.ctx, payload)
	if err != nil {
		return c.fail(t, err)
	}
	if !c.transition(t, StateRevealing) {
		return c.abandon(t, ErrTurnAbandoned)
	}

	first := true
	err = c.reveal.Run(t.ctx, reply.Content, func(fragment string) error {
		var err error
		if first {
			err = c.store.RevealFirstFragment(t.id, fragment)
			first = false
		} else {
			err = c.store.AppendFragment(t.id, fragment)
		}
		if err != nil {
			return err
		}
		t.fragments++
		c.notify()
		return nil
	})
	if err != nil {
		return c.fail(t, err)
	}

	if err := c.store.CommitAssistant(t.id, reply.Content); err != nil {
		return c.abandon(t, err)
	}
	c.finish(t, StateCommitted, nil)
	c.record(t, "complete", reply.Content, nil)
	return nil
}

func (c *Controller) fail(t *turn, err error) error {
	if errors.Is(err, history.ErrStaleTurn) || !c.isActive(t) {
		return c.abandon(t, err)
	}

	c.logger.Error("Turn failed", zap.String("turn", string(t.id)), zap.Error(err))
	if recErr := c.store.RecordFailure(t.id, userNotice(err)); recErr != nil {
		return c.abandon(t, err)
	}
	c.finish(t, StateFailed, err)
	c.record(t, "failed", "", err)
	return err
}

func (c *Controller) abandon(t *turn, cause error) error {
	c.logger.Debug("Turn abandoned", zap.String("turn", string(t.id)), zap.Error(cause))
	c.record(t, "abandoned", "", cause)
	return ErrTurnAbandoned
}

// finish passes through the outcome state and returns to Idle.
func (c *Controller) finish(t *turn, outcome State, err error) {
	c.mu.Lock()
	if c.active != t {
		c.mu.Unlock()
		return
	}
	c.state = outcome
	if err != nil {
		c.lastErr = apperrors.Detail(err)
	}
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	if c.active == t {
		c.active = nil
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Info("Turn finished",
		zap.String("turn", string(t.id)),
		zap.Stringer("outcome", outcome),
		zap.Int("fragments", t.fragments),
		zap.Duration("took", time.Since(t.started)))
}

func (c *Controller) transition(t *turn, next State) bool {
	c.mu.Lock()
	if c.active != t {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Controller) isActive(t *turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == t
}

func (c *Controller) record(t *turn, outcome, reply string, err error) {
	if c.recorder == nil {
		return
	}
	rec := models.TurnRecord{
		ID:         t.id,
		Outcome:    outcome,
		UserText:   t.text,
		Reply:      reply,
		Fragments:  t.fragments,
		StartedAt:  t.started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.RecordTurn(ctx, rec); err != nil {
		c.logger.Warn("Failed to record turn", zap.String("turn", string(t.id)), zap.Error(err))
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	observers := make([]func(Snapshot), len(c.observers))
	copy(observers, c.observers)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	c.seq++
	return Snapshot{
		Messages: c.store.Display(),
		State:    c.state,
		Error:    c.lastErr,
		Seq:      c.seq,
	}
}

func userNotice(err error) string {
	var cfgErr *apperrors.ConfigError
	if apperrors.IsUpstream(err) || errors.As(err, &cfgErr) {
		return UpstreamNotice
	}
	return GenericNotice
}
