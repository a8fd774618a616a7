package commands

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fumbl3b/harryAi/internal/chat"
	"github.com/fumbl3b/harryAi/internal/config"
	"github.com/fumbl3b/harryAi/internal/db"
	"github.com/fumbl3b/harryAi/internal/history"
	"github.com/fumbl3b/harryAi/internal/llm"
	"github.com/fumbl3b/harryAi/internal/reveal"
)

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// LLM replaces the OpenAI client built from the configuration.
	LLM llms.Model
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{}
}

// app is one wired conversation: completion client, history, reveal pacing,
// optional transcript and the controller tying them together.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	client     *llm.Service
	ctrl       *chat.Controller
	transcript *db.Database
}

func newApp(cfg config.Config, logger *zap.Logger, deps *Dependencies) (*app, error) {
	if deps == nil {
		deps = NewDependencies()
	}

	llmOpts := []llm.Option{
		llm.WithTemperature(cfg.Temperature),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTimeout(cfg.RequestTimeout),
		llm.WithTokenBudget(cfg.TokenBudget),
		llm.WithLogger(logger.Named("llm")),
	}
	if deps.LLM != nil {
		llmOpts = append(llmOpts, llm.WithLLM(deps.LLM))
	}
	client, err := llm.New(cfg.BaseURL, cfg.APIKey, cfg.Model, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	if err := client.Ready(); err != nil {
		logger.Warn("No API key configured; every message will fail until OPENAI_API_KEY is set")
	}

	a := &app{cfg: cfg, logger: logger, client: client}

	ctrlOpts := []chat.Option{
		chat.WithRevealer(newRevealer(cfg.Reveal, logger.Named("reveal"))),
		chat.WithLogger(logger.Named("chat")),
	}
	if cfg.TranscriptPath != "" {
		database, err := db.New(cfg.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript %s: %w", cfg.TranscriptPath, err)
		}
		a.transcript = database
		ctrlOpts = append(ctrlOpts, chat.WithRecorder(database))
	}

	store := history.New(cfg.SystemPrompt, history.WithLogger(logger.Named("history")))
	a.ctrl = chat.New(store, client, ctrlOpts...)
	return a, nil
}

func newRevealer(cfg config.RevealConfig, logger *zap.Logger) *reveal.Scheduler {
	split := reveal.FixedChunks(cfg.Chunks, cfg.Threshold)
	if cfg.Policy == config.PolicySentence {
		split = reveal.Sentences(cfg.TargetSize, cfg.Chunks)
	}
	return reveal.New(
		reveal.WithSplitter(split),
		reveal.WithBudget(cfg.Budget),
		reveal.WithLogger(logger),
	)
}

// Close stops running turns and releases the transcript.
func (a *app) Close() error {
	a.ctrl.Close()
	var err error
	if a.transcript != nil {
		err = multierr.Append(err, a.transcript.Close())
	}
	return err
}
