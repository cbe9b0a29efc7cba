// Package openai provides an embedder implementation backed by any
// OpenAI-compatible embeddings API, including DashScope's compatible mode
// serving the text-embedding-v4 model used for avatar memories.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-compatible embedder client.
// It implements the embedder.Provider interface.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI-compatible embedder.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// Model is the embedding model name (default: "text-embedding-v4").
	Model string

	// BaseURL is the API base URL. Empty means DashScope's compatible-mode
	// endpoint, which serves text-embedding-v4.
	BaseURL string

	// Dimensions is the requested vector dimension (default: 768, the
	// dimension the memory file format was designed around).
	Dimensions int
}

// DefaultBaseURL is DashScope's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// NewClient creates a new OpenAI-compatible embedder client.
//
// Parameters:
//   - cfg: configuration containing APIKey, Model, BaseURL, and Dimensions
//
// Returns:
//   - *Client: embedder client instance
//   - error: error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v4"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts to vectors in a single request.
//
// Returns an error if the number of returned vectors does not match the
// number of input texts; partial results are never returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.model,
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results (got %d, expected %d)", len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embedding64 := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			embedding64[j] = float64(v)
		}
		embeddings[i] = embedding64
	}

	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client connection.
// The underlying SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
