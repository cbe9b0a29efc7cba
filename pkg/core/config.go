package core

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for the avatarmem service.
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        APIKey: "sk-...",
//	        Model:  "qwen-plus",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-v4",
//	        Dimensions: 768,
//	    },
//	    Catalog: core.CatalogConfig{
//	        Provider: "sqlite",
//	        SQLitePath: "./users.db",
//	    },
//	}
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `json:"listen_addr"`

	// HostURL is the externally reachable base URL of this service, used
	// by the HTTP blob store to address memory files.
	HostURL string `json:"host_url"`

	// AssetsDir is the directory holding memory files and other assets.
	AssetsDir string `json:"assets_dir"`

	// WebDir is the directory of static client files (optional).
	WebDir string `json:"web_dir,omitempty"`

	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Catalog contains role catalog configuration.
	Catalog CatalogConfig `json:"catalog"`

	// BlobProvider selects where memory files live: "local" (under
	// AssetsDir) or "http" (a remote asset host at HostURL).
	BlobProvider string `json:"blob_provider"`

	// SessionTimeout is the inactivity threshold for session eviction.
	SessionTimeout time.Duration `json:"session_timeout"`

	// CleanupInterval is the time between sweeper runs.
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// LLMConfig contains configuration for the chat model.
type LLMConfig struct {
	// APIKey is the API key for the model provider.
	APIKey string `json:"api_key"`

	// Model is the model name, e.g. "qwen-plus".
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses the DashScope
	// compatible-mode endpoint if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding model.
type EmbedderConfig struct {
	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name, e.g. "text-embedding-v4".
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses the DashScope
	// compatible-mode endpoint if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector dimension.
	Dimensions int `json:"dimensions,omitempty"`
}

// CatalogConfig contains configuration for the role catalog.
//
// Supported providers: sqlite, postgres, mysql
type CatalogConfig struct {
	// Provider is the catalog backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// SQLitePath is the SQLite database path (sqlite provider).
	SQLitePath string `json:"sqlite_path,omitempty"`

	// Host, Port, User, Password, Database configure the server-backed
	// providers (postgres, mysql).
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`

	// SSLMode is the sslmode parameter (postgres provider).
	SSLMode string `json:"ssl_mode,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - LISTEN_ADDR, HOST_URL, ASSETS_DIR, WEB_DIR
//   - DASHSCOPE_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - CATALOG_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - BLOB_PROVIDER (local, http)
//   - SESSION_TIMEOUT_SECONDS, CLEANUP_INTERVAL_SECONDS
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	apiKey := os.Getenv("DASHSCOPE_API_KEY")

	catalogCfg := CatalogConfig{Provider: getEnvOrDefault("CATALOG_PROVIDER", "sqlite")}
	switch catalogCfg.Provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		catalogCfg.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		catalogCfg.Port = port
		catalogCfg.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		catalogCfg.Password = os.Getenv("POSTGRES_PASSWORD")
		catalogCfg.Database = getEnvOrDefault("POSTGRES_DATABASE", "avatarmem")
		catalogCfg.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		catalogCfg.Host = getEnvOrDefault("MYSQL_HOST", "localhost")
		catalogCfg.Port = port
		catalogCfg.User = getEnvOrDefault("MYSQL_USER", "root")
		catalogCfg.Password = os.Getenv("MYSQL_PASSWORD")
		catalogCfg.Database = getEnvOrDefault("MYSQL_DATABASE", "avatarmem")
	default:
		catalogCfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", "./users.db")
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "768"))
	sessionTimeout, _ := strconv.Atoi(getEnvOrDefault("SESSION_TIMEOUT_SECONDS", "100"))
	cleanupInterval, _ := strconv.Atoi(getEnvOrDefault("CLEANUP_INTERVAL_SECONDS", "60"))

	config := &Config{
		ListenAddr: getEnvOrDefault("LISTEN_ADDR", ":8000"),
		HostURL:    getEnvOrDefault("HOST_URL", "http://localhost:8000"),
		AssetsDir:  getEnvOrDefault("ASSETS_DIR", "./assets"),
		WebDir:     os.Getenv("WEB_DIR"),
		LLM: LLMConfig{
			APIKey:  apiKey,
			Model:   getEnvOrDefault("LLM_MODEL", "qwen-plus"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
		},
		Embedder: EmbedderConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-v4"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		Catalog:         catalogCfg,
		BlobProvider:    getEnvOrDefault("BLOB_PROVIDER", "local"),
		SessionTimeout:  time.Duration(sessionTimeout) * time.Second,
		CleanupInterval: time.Duration(cleanupInterval) * time.Second,
	}

	return config, nil
}

// Validate validates the configuration.
//
// Returns an error if any required field is missing, nil otherwise.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewServiceError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.APIKey == "" {
		return NewServiceError("Validate", ErrInvalidConfig)
	}
	if c.Catalog.Provider == "" {
		return NewServiceError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
