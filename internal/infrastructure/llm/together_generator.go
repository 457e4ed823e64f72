package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"codegen/internal/domain/entity"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/metrics"
)

const (
	DefaultBaseURL = "https://api.together.xyz/v1"
	DefaultModel   = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	DefaultTimeout = 2 * time.Minute
)

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// TogetherGenerator calls the Together AI chat completions API. It is built
// once and safe for concurrent use. Without an API key it still constructs,
// and every call fails with a configuration error.
type TogetherGenerator struct {
	client    *openai.Client
	model     string
	configErr error
	logger    zerolog.Logger
}

var _ repository.CodeGenerator = (*TogetherGenerator)(nil)

func NewTogetherGenerator(opts Options, logger zerolog.Logger) *TogetherGenerator {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	g := &TogetherGenerator{
		model:  opts.Model,
		logger: logger.With().Str("component", "llm").Str("model", opts.Model).Logger(),
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		g.configErr = entity.ErrMissingAPIKey
		return g
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	cfg.HTTPClient = opts.HTTPClient
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	g.client = openai.NewClientWithConfig(cfg)
	return g
}

func (g *TogetherGenerator) Model() string {
	return g.model
}

// ConfigError is non-nil when the generator was built without credentials.
func (g *TogetherGenerator) ConfigError() error {
	if g.configErr == nil {
		return nil
	}
	return entity.NewGenerationError(entity.ErrKindConfiguration, g.configErr)
}

func (g *TogetherGenerator) GenerateCode(ctx context.Context, description string) (string, error) {
	if g.configErr != nil {
		metrics.IncError("llm", "not_configured")
		return "", entity.NewGenerationError(entity.ErrKindConfiguration, g.configErr)
	}

	metrics.IncLLMRequest(g.model)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: entity.BuildPrompt(description),
			},
		},
	})
	if err != nil {
		metrics.IncError("llm", requestErrorType(err))
		return "", entity.NewGenerationError(entity.ErrKindTransport, err)
	}

	g.logger.Debug().
		Str("response_id", resp.ID).
		Int("choices", len(resp.Choices)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("completion received")

	if len(resp.Choices) == 0 {
		metrics.IncError("llm", "no_choices")
		return "", entity.NewGenerationError(entity.ErrKindMalformed, entity.ErrNoChoices)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		metrics.IncError("llm", "empty_content")
		return "", entity.NewGenerationError(entity.ErrKindMalformed, entity.ErrEmptyCompletion)
	}
	return content, nil
}

func requestErrorType(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("api_error_%d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("api_error_%d", reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "http_do"
}
