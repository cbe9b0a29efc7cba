package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTokenURL is the DashScope temp token endpoint.
const defaultTokenURL = "https://dashscope.aliyuncs.com/api/v1/tokens"

// TempToken is a short-lived credential handed to browser clients so the
// long-lived API key never leaves the server. DashScope tokens expire after
// 60 seconds.
type TempToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// TokenMinter mints temp tokens for authenticated users.
type TokenMinter interface {
	MintTempToken(ctx context.Context) (*TempToken, error)
}

// DashScopeTokenClient mints temp tokens from the DashScope token API.
type DashScopeTokenClient struct {
	apiKey     string
	tokenURL   string
	httpClient *http.Client
}

// TokenConfig contains configuration for the DashScope token client.
type TokenConfig struct {
	// APIKey is the long-lived DashScope API key. Required.
	APIKey string

	// TokenURL overrides the token endpoint. Defaults to the public
	// DashScope endpoint.
	TokenURL string

	// Timeout bounds each request. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewDashScopeTokenClient creates a token client.
func NewDashScopeTokenClient(cfg *TokenConfig) (*DashScopeTokenClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("token: API key is required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &DashScopeTokenClient{
		apiKey:     cfg.APIKey,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// MintTempToken requests a fresh temp token.
func (c *DashScopeTokenClient) MintTempToken(ctx context.Context) (*TempToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var token TempToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("token: decode response: %w", err)
	}

	return &token, nil
}
