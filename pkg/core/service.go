package core

import (
	"fmt"
	"net/http"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
	"github.com/companionlabs/avatarmem-go/pkg/blob/httpblob"
	"github.com/companionlabs/avatarmem-go/pkg/blob/localblob"
	"github.com/companionlabs/avatarmem-go/pkg/catalog"
	"github.com/companionlabs/avatarmem-go/pkg/catalog/mysql"
	"github.com/companionlabs/avatarmem-go/pkg/catalog/postgres"
	"github.com/companionlabs/avatarmem-go/pkg/catalog/sqlite"
	"github.com/companionlabs/avatarmem-go/pkg/embedder"
	openaiembedder "github.com/companionlabs/avatarmem-go/pkg/embedder/openai"
	"github.com/companionlabs/avatarmem-go/pkg/llm"
	openaillm "github.com/companionlabs/avatarmem-go/pkg/llm/openai"
	"github.com/companionlabs/avatarmem-go/pkg/memory"
	"github.com/companionlabs/avatarmem-go/pkg/server"
	"github.com/companionlabs/avatarmem-go/pkg/session"
)

// Service wires the catalog, blob store, model providers, session layer,
// sweeper, and HTTP server into one runnable unit.
type Service struct {
	config   *Config
	catalog  catalog.Store
	blobs    blob.Store
	llm      llm.Provider
	embedder embedder.Provider
	sessions *session.Store
	locks    *session.LockTable
	sweeper  *session.Sweeper
	server   *server.Server
}

// NewService builds a service from configuration.
//
// Parameters:
//   - config: Service configuration, typically from LoadConfigFromEnv
//
// Returns:
//   - *Service: The assembled service
//   - error: Error if configuration is invalid or a backend fails to open
func NewService(config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cat, err := newCatalog(&config.Catalog)
	if err != nil {
		return nil, NewServiceError("NewService", err)
	}

	blobs, err := newBlobStore(config)
	if err != nil {
		return nil, NewServiceError("NewService", err)
	}

	llmClient, err := openaillm.NewClient(&openaillm.Config{
		APIKey:  config.LLM.APIKey,
		Model:   config.LLM.Model,
		BaseURL: config.LLM.BaseURL,
	})
	if err != nil {
		return nil, NewServiceError("NewService", err)
	}

	embedderClient, err := openaiembedder.NewClient(&openaiembedder.Config{
		APIKey:     config.Embedder.APIKey,
		Model:      config.Embedder.Model,
		BaseURL:    config.Embedder.BaseURL,
		Dimensions: config.Embedder.Dimensions,
	})
	if err != nil {
		return nil, NewServiceError("NewService", err)
	}

	sessions := session.NewStore(cat)
	locks := session.NewLockTable()
	bridge := session.NewStreamBridge(sessions, locks, llmClient)

	consolidator := memory.NewConsolidator(blobs, cat, llmClient, embedderClient)

	sweeper := session.NewSweeper(sessions, consolidator)
	sweeper.Interval = config.CleanupInterval
	sweeper.IdleTimeout = config.SessionTimeout

	tokens, err := server.NewDashScopeTokenClient(&server.TokenConfig{APIKey: config.LLM.APIKey})
	if err != nil {
		return nil, NewServiceError("NewService", err)
	}

	srv := server.New(cat, blobs, sessions, locks, bridge, tokens)
	srv.WebDir = config.WebDir
	srv.AssetsDir = config.AssetsDir

	return &Service{
		config:   config,
		catalog:  cat,
		blobs:    blobs,
		llm:      llmClient,
		embedder: embedderClient,
		sessions: sessions,
		locks:    locks,
		sweeper:  sweeper,
		server:   srv,
	}, nil
}

// newCatalog opens the configured catalog backend.
func newCatalog(cfg *CatalogConfig) (catalog.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{DBPath: cfg.SQLitePath})
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			SSLMode:  cfg.SSLMode,
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
		})
	default:
		return nil, fmt.Errorf("unsupported catalog provider: %s", cfg.Provider)
	}
}

// newBlobStore opens the configured blob backend.
func newBlobStore(config *Config) (blob.Store, error) {
	switch config.BlobProvider {
	case "http":
		return httpblob.NewClient(&httpblob.Config{HostURL: config.HostURL})
	case "local", "":
		return localblob.New(config.AssetsDir)
	default:
		return nil, fmt.Errorf("unsupported blob provider: %s", config.BlobProvider)
	}
}

// Handler returns the HTTP route table.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Start launches the background sweeper.
func (s *Service) Start() {
	s.sweeper.Start()
}

// Close stops the sweeper, waits for in-flight consolidations, and closes
// the backends.
func (s *Service) Close() error {
	s.sweeper.Stop()

	var firstErr error
	if err := s.llm.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.blobs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
