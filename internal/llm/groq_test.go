package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/observability"
)

func newTestGroqClient(baseURL string, maxRetries int) *GroqClient {
	client := NewGroqClient(GroqConfig{
		APIKey:     "gsk-test",
		BaseURL:    baseURL,
		MaxRetries: maxRetries,
	})
	client.retryDelay = time.Millisecond
	return client
}

func TestGroqClient_Generate(t *testing.T) {
	t.Run("returns the completion content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-1",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"keywords\":[\"a\"]}"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`))
		}))
		defer server.Close()

		client := newTestGroqClient(server.URL, 0)
		content, err := client.Generate(context.Background(), "system", "user")
		require.NoError(t, err)
		assert.Equal(t, `{"keywords":["a"]}`, content)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}))
		defer server.Close()

		client := newTestGroqClient(server.URL, 2)
		content, err := client.Generate(context.Background(), "system", "user")
		require.NoError(t, err)
		assert.Equal(t, "ok", content)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		client := newTestGroqClient(server.URL, 3)
		_, err := client.Generate(context.Background(), "system", "user")
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "model not found", apiErr.Message)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("exhausts retries on persistent 5xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := newTestGroqClient(server.URL, 2)
		_, err := client.Generate(context.Background(), "system", "user")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exhausted 2 retries")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client := newTestGroqClient(server.URL, 0)
		_, err := client.Generate(context.Background(), "system", "user")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty choices")
	})
}

func TestGroqClient_Metrics(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"ok"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	metrics := observability.NewMetrics("test_groq")
	client := NewGroqClient(GroqConfig{
		APIKey:     "gsk-test",
		BaseURL:    server.URL,
		MaxRetries: 2,
		Metrics:    metrics,
	})
	client.retryDelay = time.Millisecond

	_, err := client.Generate(context.Background(), "system", "user")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMRequestsFailed.WithLabelValues("chat_completion", defaultGroqModel, "tokens")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues("chat_completion", defaultGroqModel)))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("chat_completion", defaultGroqModel, "input")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("chat_completion", defaultGroqModel, "output")))
}

func TestAPIError_IsTransient(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 0}).IsTransient())
	assert.True(t, (&APIError{StatusCode: 429}).IsTransient())
	assert.True(t, (&APIError{StatusCode: 503}).IsTransient())
	assert.False(t, (&APIError{StatusCode: 400}).IsTransient())
	assert.False(t, (&APIError{StatusCode: 404}).IsTransient())
}
