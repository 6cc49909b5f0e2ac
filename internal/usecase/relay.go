package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finlitbot/internal/domain"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
)

type LLMClient interface {
	Chat(ctx context.Context, in domain.CompletionRequest) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// RelayConfig tunes the completion call. Zero values fall back to defaults,
// except Temperature which is taken as given when TemperatureSet is true.
type RelayConfig struct {
	Model          string
	MaxTokens      int
	Temperature    float64
	TemperatureSet bool
	Links          LinkTable
	Logger         *slog.Logger
}

// RelayService turns user text into an augmented completion.
type RelayService struct {
	llm         LLMClient
	links       LinkTable
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
	now         func() time.Time
}

func NewRelayService(llm LLMClient, cfg RelayConfig) (*RelayService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if !cfg.TemperatureSet {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("usecase: temperature %v out of range [0,2]", cfg.Temperature)
	}
	if len(cfg.Links) == 0 {
		cfg.Links = DefaultLinks()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RelayService{
		llm:         llm,
		links:       cfg.Links,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// Relay never fails: upstream and credential problems come back as a result
// of type "error" carrying a readable description.
func (s *RelayService) Relay(ctx context.Context, message string) domain.ChatResult {
	answer, err := s.complete(ctx, message)
	if err != nil {
		s.logger.WarnContext(ctx, "relay failed", "code", err.Code, "reason", err.Reason, "err", err.Err)
		return domain.ChatResult{
			Response:  fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", err.cause()),
			Type:      domain.ResultError,
			Timestamp: s.timestamp(),
		}
	}
	return domain.ChatResult{
		Response:  answer,
		Type:      domain.ResultAI,
		Timestamp: s.timestamp(),
	}
}

func (s *RelayService) complete(ctx context.Context, message string) (string, *Error) {
	answer, err := s.llm.Chat(ctx, domain.CompletionRequest{
		Model:       s.model,
		Messages:    buildPromptMessages(message),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if link, ok := s.links.Match(message); ok {
		answer += referenceLine(link)
	}
	return answer, nil
}

func classify(err error) *Error {
	if errors.Is(err, domain.ErrMissingCredential) {
		return newError(ErrorCredential, "missing_api_key", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, "openai_rate_limited", err)
	}
	return newError(ErrorUpstream, "openai_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func (s *RelayService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
