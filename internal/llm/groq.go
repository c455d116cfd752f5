package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/researchgpt/evidence-service/internal/observability"
)

// Default values for the Groq provider.
const (
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultGroqMaxTokens  = 4096
	defaultGroqRetryDelay = 2 * time.Second

	// chatOperation labels chat completion requests in metrics.
	chatOperation = "chat_completion"
)

// chatRequest represents the Chat Completions API request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the Chat Completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage contains token usage information.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// groqErrorResponse represents an error response from the Groq API.
type groqErrorResponse struct {
	Error groqErrorDetail `json:"error"`
}

// groqErrorDetail contains error details from the Groq API.
type groqErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// GroqConfig holds the parameters needed to create a Groq client.
type GroqConfig struct {
	// APIKey is the Groq API key.
	APIKey string
	// Model is the model identifier (e.g., "llama-3.3-70b-versatile").
	Model string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
	// Temperature is the sampling temperature.
	Temperature float64
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries on transient errors.
	MaxRetries int
	// Metrics receives request counters, durations, and token usage. Optional.
	Metrics *observability.Metrics
}

// GroqClient implements Generator using Groq's OpenAI-compatible Chat
// Completions API.
type GroqClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxRetries  int
	retryDelay  time.Duration
	metrics     *observability.Metrics
}

// Compile-time interface verification.
var _ Generator = (*GroqClient)(nil)

// NewGroqClient creates a new Groq chat completion client.
// Transient API errors (5xx and 429) are retried with linear backoff.
func NewGroqClient(cfg GroqConfig) *GroqClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultGroqModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &GroqClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		retryDelay:  defaultGroqRetryDelay,
		metrics:     cfg.Metrics,
	}
}

// Generate produces a completion from a system and user prompt.
func (c *GroqClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	chatReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   defaultGroqMaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("groq: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		content, err := c.doRequest(ctx, chatReq)
		if err == nil {
			return content, nil
		}

		// Only retry on transient errors (5xx, 429).
		if !isTransientError(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("groq: exhausted %d retries: %w", c.maxRetries, lastErr)
}

// Provider returns the name of the LLM provider.
func (c *GroqClient) Provider() string {
	return "groq"
}

// Model returns the model identifier being used.
func (c *GroqClient) Model() string {
	return c.model
}

// doRequest performs a single API request to the Chat Completions endpoint.
func (c *GroqClient) doRequest(ctx context.Context, chatReq chatRequest) (string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("groq: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure("connection_error")
		return "", fmt.Errorf("groq: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		c.recordFailure("read_error")
		return "", fmt.Errorf("groq: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := parseGroqAPIError(resp.StatusCode, respBody)
		c.recordFailure(apiErrorType(apiErr))
		return "", apiErr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		c.recordFailure("decode_error")
		return "", fmt.Errorf("groq: failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		c.recordFailure("empty_response")
		return "", fmt.Errorf("groq: empty choices in response")
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRequest(chatOperation, c.model, time.Since(start).Seconds(),
			chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (c *GroqClient) recordFailure(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordLLMRequestFailed(chatOperation, c.model, errorType)
	}
}

// apiErrorType maps an API error to a low-cardinality metric label.
func apiErrorType(apiErr *APIError) string {
	if apiErr.Type != "" {
		return apiErr.Type
	}
	return fmt.Sprintf("http_%d", apiErr.StatusCode)
}

// parseGroqAPIError parses a Groq API error from the response status code and body.
func parseGroqAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "groq",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp groqErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}
