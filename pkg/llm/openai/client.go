// Package openai provides an LLM implementation backed by any
// OpenAI-compatible chat completion API, including Alibaba Cloud
// DashScope's compatible mode used for the Qwen models.
package openai

import (
	"context"
	"errors"
	"io"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
	openai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-compatible LLM client.
// It implements the llm.Provider interface for both one-shot generation and
// incremental streaming.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI-compatible LLM client.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// Model is the model name to use (default: "qwen-plus").
	Model string

	// BaseURL is the API base URL. Empty means DashScope's compatible-mode
	// endpoint; point it elsewhere for other OpenAI-compatible providers.
	BaseURL string
}

// DefaultBaseURL is DashScope's OpenAI-compatible endpoint, which serves the
// Qwen chat models.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// NewClient creates a new OpenAI-compatible LLM client.
//
// Parameters:
//   - cfg: configuration containing APIKey, Model, and BaseURL
//
// Returns:
//   - *Client: client instance
//   - error: error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = resolveBaseURL(cfg.BaseURL)

	model := cfg.Model
	if model == "" {
		model = "qwen-plus"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func resolveBaseURL(baseURL string) string {
	if baseURL == "" {
		return DefaultBaseURL
	}
	return baseURL
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text using message history.
// Supports multi-turn conversations and accepts complete message history
// (including system, user, and assistant messages).
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	req := c.buildRequest(messages, llm.ApplyGenerateOptions(opts))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams a chat completion, invoking onDelta for every text
// increment. The call blocks until the provider finishes or fails and
// returns the full concatenated response.
func (c *Client) GenerateStream(ctx context.Context, messages []llm.Message, onDelta func(delta string), opts ...llm.GenerateOption) (string, error) {
	req := c.buildRequest(messages, llm.ApplyGenerateOptions(opts))
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full, nil
		}
		if err != nil {
			return full, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if onDelta != nil {
			onDelta(delta)
		}
	}
}

// buildRequest converts messages and options into a chat completion request.
func (c *Client) buildRequest(messages []llm.Message, options *llm.GenerateOptions) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}

	if options.JSONResponse {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return req
}

// Close closes the client connection.
// The underlying SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
