package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

const completionReply = `{
	"id": "chatcmpl-1",
	"choices": [
		{"index": 0, "message": {"role": "assistant", "content": "Codeine is not activated."}}
	]
}`

func TestLLMClient_Complete(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionReply))
	}))
	defer server.Close()

	client := NewLLMClient(LLMConfig{
		BaseURL:   server.URL + "/",
		APIKey:    "test-key",
		Model:     "test-model",
		RateLimit: 100,
		MaxTokens: 256,
	}, testLogger())

	text, err := client.Complete(context.Background(), []ChatMessage{
		{Role: "system", Content: "expert"},
		{Role: "user", Content: "explain"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Codeine is not activated.", text)
	assert.Equal(t, "test-model", received.Model)
	assert.Equal(t, 256, received.MaxTokens)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "user", received.Messages[1].Role)
}

func TestLLMClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionReply))
	}))
	defer server.Close()

	client := NewLLMClient(LLMConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		RateLimit:  100,
		MaxRetries: 2,
	}, testLogger())

	text, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "explain"}})
	require.NoError(t, err)
	assert.Equal(t, "Codeine is not activated.", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLLMClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewLLMClient(LLMConfig{
		BaseURL:    server.URL,
		APIKey:     "bad-key",
		RateLimit:  100,
		MaxRetries: 3,
	}, testLogger())

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "explain"}})
	require.Error(t, err)

	var se *statusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLLMClient_HonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(completionReply))
	}))
	defer server.Close()

	client := NewLLMClient(LLMConfig{BaseURL: server.URL, APIKey: "k", RateLimit: 100}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, []ChatMessage{{Role: "user", Content: "explain"}})
	assert.Error(t, err)
}

func TestNewLLMClient_Defaults(t *testing.T) {
	client := NewLLMClient(LLMConfig{}, nil)

	assert.Equal(t, "gpt-4", client.Model())
	assert.False(t, client.Configured())
	assert.Equal(t, "https://api.openai.com/v1", client.config.BaseURL)
	assert.Equal(t, 30*time.Second, client.config.Timeout)
	assert.Equal(t, 500, client.config.MaxTokens)
}

func TestLLMConfigFromDomain(t *testing.T) {
	cfg := LLMConfigFromDomain(domain.ExplainerConfig{
		BaseURL:     "http://localhost:11434/v1",
		APIKey:      "secret",
		Model:       "llama3",
		Timeout:     5 * time.Second,
		RateLimit:   4,
		RetryCount:  1,
		Temperature: 0.3,
		MaxTokens:   300,
	})

	assert.Equal(t, LLMConfig{
		BaseURL:     "http://localhost:11434/v1",
		APIKey:      "secret",
		Model:       "llama3",
		Timeout:     5 * time.Second,
		RateLimit:   4,
		MaxRetries:  1,
		Temperature: 0.3,
		MaxTokens:   300,
	}, cfg)
}

func TestExtractCompletionText(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		err      error
	}{
		{"valid", completionReply, "Codeine is not activated.", nil},
		{"no choices", `{"choices": []}`, "", ErrEmptyCompletion},
		{"missing choices", `{"id": "x"}`, "", ErrEmptyCompletion},
		{"blank content", `{"choices": [{"message": {"content": "  "}}]}`, "", ErrEmptyCompletion},
		{"non-string content", `{"choices": [{"message": {"content": 42}}]}`, "", ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := ExtractCompletionText([]byte(tt.body))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}

	_, err := ExtractCompletionText([]byte("not json"))
	assert.Error(t, err)
}
