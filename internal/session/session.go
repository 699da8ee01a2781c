// Package session owns the lifecycle of an open context index.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spetr/codectx/internal/config"
	"github.com/spetr/codectx/internal/index"
	"github.com/spetr/codectx/internal/search"
	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// Session is an open context index over a project directory. All
// indexing and search operations go through a session, and Close must
// be called when done.
type Session struct {
	projectDir string
	cfg        *config.Config
	logger     *slog.Logger

	store     provider.ContextStore
	embedding provider.EmbeddingProvider
	extractor provider.ReferenceExtractor

	indexer   *index.Indexer
	retriever *search.Retriever
}

// Options controls session creation.
type Options struct {
	ProjectDir string
	Config     *config.Config
	Registry   *provider.Registry // nil means provider.DefaultRegistry
	Logger     *slog.Logger
}

// Open creates the providers named in the configuration and
// initializes the store under .codectx/.
func Open(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing config", types.ErrInvalidConfig)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, errs[0])
	}

	registry := opts.Registry
	if registry == nil {
		registry = provider.DefaultRegistry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	projectDir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}

	embedding, err := registry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Model:    cfg.Embedding.Model,
		Endpoint: cfg.Embedding.Endpoint,
		APIKey:   cfg.Embedding.APIKey,
		TimeoutS: int(cfg.Embedding.Timeout.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	extractor, err := registry.CreateExtractor("treesitter")
	if err != nil {
		return nil, err
	}

	store, err := registry.CreateStore(cfg.Store.Provider)
	if err != nil {
		return nil, err
	}

	dbPath := config.IndexDBPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	if err := store.Init(dbPath); err != nil {
		return nil, err
	}

	s := &Session{
		projectDir: projectDir,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		embedding:  embedding,
		extractor:  extractor,
	}
	s.indexer = index.New(store, embedding, extractor, cfg, logger)
	s.retriever = search.NewRetriever(store, embedding, logger)

	logger.Debug("session opened",
		"project", projectDir,
		"embedding", embedding.Name(),
		"store", store.Name())

	return s, nil
}

// ProjectDir returns the absolute project directory.
func (s *Session) ProjectDir() string {
	return s.projectDir
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Indexer returns the session's indexer.
func (s *Session) Indexer() *index.Indexer {
	return s.indexer
}

// IndexTree indexes every indexable file under root. When root is
// empty the project directory is used.
func (s *Session) IndexTree(ctx context.Context, root string) (*index.Report, error) {
	if root == "" {
		root = s.projectDir
	}
	return s.indexer.Run(ctx, root)
}

// IndexFile indexes a single file.
func (s *Session) IndexFile(ctx context.Context, path string) error {
	return s.indexer.IndexFile(ctx, path)
}

// Search returns the limit most similar documents to query.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]*types.SearchResult, error) {
	if limit < 1 {
		limit = s.cfg.Search.DefaultLimit
	}
	return s.retriever.Search(ctx, query, limit)
}

// Stats returns store statistics.
func (s *Session) Stats(ctx context.Context) (*types.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Watch blocks and re-indexes files as they change, until the context
// is cancelled.
func (s *Session) Watch(ctx context.Context) error {
	w, err := index.NewWatcher(index.WatcherConfig{
		ProjectDir: s.projectDir,
		Indexer:    s.indexer,
		Logger:     s.logger,
	})
	if err != nil {
		return err
	}
	return w.Watch(ctx)
}

// Close releases the store and embedding provider. Safe to call once.
func (s *Session) Close() error {
	var firstErr error
	if err := s.store.Close(); err != nil {
		firstErr = err
	}
	if err := s.embedding.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
