package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pharmaguard-server/internal/domain"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("completion contained no content")

// LLMConfig represents configuration for the chat-completions client
type LLMConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	Timeout     time.Duration `json:"timeout"`
	RateLimit   int           `json:"rate_limit"` // requests per second
	MaxRetries  int           `json:"max_retries"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// LLMConfigFromDomain converts explainer settings into client settings.
func LLMConfigFromDomain(cfg domain.ExplainerConfig) LLMConfig {
	return LLMConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		MaxRetries:  cfg.RetryCount,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// ChatMessage is one message in a chat-completions request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// statusError carries a non-2xx provider status so the retry policy can inspect it.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// LLMClient talks to an OpenAI-compatible chat-completions endpoint.
// Calls are paced by a token bucket, retried with exponential backoff on
// transient failures, and short-circuited while the provider is unhealthy.
type LLMClient struct {
	config     LLMConfig
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewLLMClient creates a new chat-completions client
func NewLLMClient(config LLMConfig, logger *logrus.Logger) *LLMClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LLM",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			}
		},
	})

	return &LLMClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   breaker,
		logger:    logger,
	}
}

// Model returns the configured model name.
func (c *LLMClient) Model() string {
	return c.config.Model
}

// Configured reports whether the client has credentials to call the provider.
func (c *LLMClient) Configured() bool {
	return c.config.APIKey != ""
}

// Complete sends a chat-completions request and returns the first choice's text.
func (c *LLMClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.completeWithRetry(ctx, messages)
	})
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}
	return result.(string), nil
}

func (c *LLMClient) completeWithRetry(ctx context.Context, messages []ChatMessage) (string, error) {
	var content string

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)),
		ctx,
	)

	operation := func() error {
		text, err := c.doRequest(ctx, messages)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrEmptyCompletion) {
				return backoff.Permanent(err)
			}
			return err
		}
		content = text
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.WithError(err).WithField("retry_in", wait).Debug("Retrying LLM request")
		}
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return content, nil
}

func (c *LLMClient) doRequest(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	return ExtractCompletionText(respBody)
}

// ExtractCompletionText pulls choices[0].message.content out of a provider reply.
func ExtractCompletionText(body []byte) (string, error) {
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	choice, err := parsed.S("choices").ArrayElement(0)
	if err != nil {
		return "", ErrEmptyCompletion
	}
	content, ok := choice.Path("message.content").Data().(string)
	if !ok || strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
