package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1500
	DefaultTimeout     = 30 * time.Second
)

// Service sends a conversation history to an OpenAI-compatible chat model and
// returns the single complete reply.
type Service struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	tokenBudget int
	tokens      *TokenCounter
	logger      *zap.Logger
}

type Option func(*Service)

// WithLLM replaces the OpenAI client, e.g. with a local fake.
func WithLLM(llm llms.Model) Option {
	return func(s *Service) {
		s.llm = llm
	}
}

func WithTemperature(temperature float64) Option {
	return func(s *Service) {
		s.temperature = temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(s *Service) {
		s.maxTokens = maxTokens
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// WithTokenBudget logs a warning whenever the estimated history size exceeds
// budget tokens. Zero disables the check.
func WithTokenBudget(budget int) Option {
	return func(s *Service) {
		s.tokenBudget = budget
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New builds the service. An empty token is not an error here: the client is
// left unconfigured and every Complete call fails with an UpstreamError.
func New(baseURL, token, model string, opts ...Option) (*Service, error) {
	if model == "" {
		model = DefaultModel
	}
	s := &Service{
		model:       model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
		tokens:      NewTokenCounter(model),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.llm == nil && token != "" {
		clientOpts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(model),
		}
		if baseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
		}
		llm, err := openai.New(clientOpts...)
		if err != nil {
			return nil, err
		}
		s.llm = llm
	}
	return s, nil
}

func (s *Service) Model() string {
	return s.model
}

// Ready reports whether credentials are configured.
func (s *Service) Ready() error {
	if s.llm == nil {
		return apperrors.NewConfigError("OPENAI_API_KEY", apperrors.ErrMissingAPIKey.Error())
	}
	return nil
}

// Complete sends history as-is and returns the assistant reply. It does not
// repair the history; callers sanitize it first.
func (s *Service) Complete(ctx context.Context, history []models.Message) (models.Message, error) {
	if len(history) == 0 {
		return models.Message{}, apperrors.NewValidationError("history", "at least one message is required")
	}
	if err := s.Ready(); err != nil {
		return models.Message{}, apperrors.NewUpstreamError("The API key is not set in environment variables", err)
	}

	s.logHistory(history)

	content := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}

	// Get response from LLM with timeout
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.GenerateContent(ctx, content,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		s.logger.Error("Failed to generate completion", zap.Error(err), zap.String("model", s.model))
		return models.Message{}, apperrors.NewUpstreamError(failureDetail(err), err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return models.Message{}, apperrors.NewUpstreamError("Invalid response format from API", apperrors.ErrInvalidResponse)
	}
	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return models.Message{}, apperrors.NewUpstreamError("Empty response from API", apperrors.ErrEmptyResponse)
	}

	s.logger.Info("Completion received",
		zap.String("model", s.model),
		zap.Int("historyLen", len(history)),
		zap.Int("replyLen", len(text)),
		zap.Duration("took", time.Since(start)))

	return models.Message{Role: models.RoleAssistant, Content: text}, nil
}

func (s *Service) logHistory(history []models.Message) {
	debug := s.logger.Core().Enabled(zap.DebugLevel)
	if !debug && s.tokenBudget <= 0 {
		return
	}

	estimate := s.tokens.Count(history)
	if s.tokenBudget > 0 && estimate > s.tokenBudget {
		s.logger.Warn("History exceeds token budget",
			zap.Int("tokens", estimate),
			zap.Int("budget", s.tokenBudget))
	}
	if !debug {
		return
	}
	s.logger.Debug("Sending conversation history",
		zap.Int("messages", len(history)),
		zap.Int("tokens", estimate))
	for i, msg := range history {
		s.logger.Debug("History entry",
			zap.Int("index", i),
			zap.String("role", string(msg.Role)),
			zap.String("content", truncate(msg.Content, 50)))
	}
}

func chatMessageType(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

func failureDetail(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The completion request timed out"
	case errors.Is(err, context.Canceled):
		return "The completion request was cancelled"
	case errors.Is(err, openai.ErrEmptyResponse):
		return "Empty response from API"
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
