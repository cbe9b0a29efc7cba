package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, "sk-test", config.Embedder.APIKey)
	assert.Equal(t, "sqlite", config.Catalog.Provider)
	assert.Equal(t, 768, config.Embedder.Dimensions)
	assert.Equal(t, 100*time.Second, config.SessionTimeout)
	assert.Equal(t, 60*time.Second, config.CleanupInterval)
}

func TestLoadConfigFromEnvPostgres(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv("CATALOG_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Catalog.Provider)
	assert.Equal(t, "db.internal", config.Catalog.Host)
	assert.Equal(t, 5433, config.Catalog.Port)
	assert.Equal(t, "secret", config.Catalog.Password)
}

func TestValidateRejectsMissingKeys(t *testing.T) {
	config := &Config{Catalog: CatalogConfig{Provider: "sqlite"}}

	err := config.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidateAccepts(t *testing.T) {
	config := &Config{
		LLM:      LLMConfig{APIKey: "k"},
		Embedder: EmbedderConfig{APIKey: "k"},
		Catalog:  CatalogConfig{Provider: "sqlite"},
	}
	assert.NoError(t, config.Validate())
}

func TestServiceErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	err := NewServiceError("Op", inner)

	assert.EqualError(t, err, "avatarmem: Op: boom")
	assert.True(t, errors.Is(err, inner))
	assert.Nil(t, NewServiceError("Op", nil))
}
