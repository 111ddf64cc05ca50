package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketbot/internal/metrics"

	"github.com/cenkalti/backoff/v4"
)

const maxRetries = 3

// ErrStatus indicates the provider returned a non-retryable error status.
var ErrStatus = errors.New("ai provider error status")

// Client provides typed access to an OpenAI-compatible chat completion API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds generative content client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New creates a new generative content client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "ai"),
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

// CaptionFields carries the structured ad fields a caption is built from.
type CaptionFields struct {
	Title        string
	Description  string
	Price        float64
	BusinessName string
}

// ChatResult is the parsed outcome of a conversational reply.
type ChatResult struct {
	Reply   string
	NewFact string
}

const captionSystemPrompt = `You are a formatting assistant.
Your ONLY job is to take product details and format them into a clean vertical list with emojis.

STRICT RULES:
1. Start with a headline in this format: "🔥 [TITLE]"
2. Create 3 bullet points using these specific emojis if applicable:
   - 🔌 Product: [Name]
   - 📝 Details: [Description]
   - 🏢 Vendor: [Business Name]
3. DO NOT include Price.
4. DO NOT include Contact Info.
5. Skip any line whose detail is missing; never write "None".
6. Do not write any intro or outro text.`

// GenerateCaption produces an ad caption from the structured fields. The
// optional instruction carries vendor feedback for a refinement pass.
func (c *Client) GenerateCaption(ctx context.Context, fields CaptionFields, instruction string) (string, error) {
	desc := fields.Description
	if desc == "" {
		desc = "Available now"
	}
	user := fmt.Sprintf("Title: %s\nDescription: %s\nBusiness: %s\n", fields.Title, desc, fields.BusinessName)
	if instruction != "" {
		user += "\nInstruction: " + instruction
	}

	text, err := c.complete(ctx, captionSystemPrompt, user, 150, 0.5)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// FallbackCaption builds a templated caption when generation is unavailable.
// A promotion is never left without a caption.
func FallbackCaption(fields CaptionFields) string {
	return fmt.Sprintf("🔥 %s\n🔌 Product: %s\n📝 Details: %s", fields.Title, fields.Title, fields.Description)
}

const chatSystemPrompt = `You are a friendly shopping assistant for a WhatsApp marketplace.
Answer the customer's question using the inventory provided. Be brief and warm.
Respond with a JSON object of the form {"reply": "...", "new_fact": "..."}.
"new_fact" is one short remembered fact about the customer, or an empty string.`

// SmartChat produces a conversational reply and an optional extracted fact.
// The provider's output is arbitrary text; only the two named fields are
// trusted, and unparseable output is treated as a plain reply.
func (c *Client) SmartChat(ctx context.Context, name, memory, message, inventory string) (*ChatResult, error) {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Customer name: %s\n", name)
	}
	if memory != "" {
		fmt.Fprintf(&b, "Known facts: %s\n", memory)
	}
	fmt.Fprintf(&b, "%s\n\nCustomer says: %s", inventory, message)

	text, err := c.complete(ctx, chatSystemPrompt, b.String(), 300, 0.7)
	if err != nil {
		return nil, err
	}
	return parseChatResult(text), nil
}

func parseChatResult(text string) *ChatResult {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed struct {
		Reply   string `json:"reply"`
		NewFact string `json:"new_fact"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Reply != "" {
		return &ChatResult{Reply: parsed.Reply, NewFact: strings.TrimSpace(parsed.NewFact)}
	}
	return &ChatResult{Reply: strings.TrimSpace(text)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	started := time.Now()
	var content string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build chat request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("chat completion request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read chat response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("chat completion status %d: %w", resp.StatusCode, ErrStatus)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("chat completion status %d: %w", resp.StatusCode, ErrStatus))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat completion returned no choices: %w", ErrStatus))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	err = backoff.Retry(operation, policy)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.AIRequests.WithLabelValues(status).Inc()
		c.metrics.AILatency.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		c.logger.Warn("chat completion failed", "error", err)
		return "", err
	}
	return content, nil
}
