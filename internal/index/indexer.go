// Package index builds and maintains the context index for a source tree.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spetr/codectx/internal/config"
	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// FileError records a single file that failed to index.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Report summarizes an indexing run.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
	Errors    []*FileError
	Duration  time.Duration
}

// Indexer walks a source tree and writes documents into the context store.
type Indexer struct {
	store     provider.ContextStore
	embedding provider.EmbeddingProvider
	extractor provider.ReferenceExtractor
	walker    *Walker
	workers   int
	logger    *slog.Logger

	// Store writes are serialized so a failed file never interleaves
	// with another file's transaction.
	storeMu sync.Mutex
}

// New creates an indexer over the given providers.
func New(store provider.ContextStore, embedding provider.EmbeddingProvider, extractor provider.ReferenceExtractor, cfg *config.Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Index.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}
	return &Indexer{
		store:     store,
		embedding: embedding,
		extractor: extractor,
		walker:    NewWalker(cfg.Index.Extensions, cfg.Index.ExcludeDirs, cfg.Index.MaxFileSize),
		workers:   workers,
		logger:    logger,
	}
}

// Walker returns the file walker used by this indexer.
func (ix *Indexer) Walker() *Walker {
	return ix.walker
}

// Run indexes every indexable file under root. Individual file
// failures are recorded in the report and do not abort the run.
func (ix *Indexer) Run(ctx context.Context, root string) (*Report, error) {
	start := time.Now()

	files, err := ix.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	ix.logger.Info("indexing started", "root", root, "files", len(files), "workers", ix.workers)

	report := &Report{}
	var reportMu sync.Mutex

	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < ix.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				skipped, err := ix.indexOne(ctx, path)
				reportMu.Lock()
				switch {
				case err != nil:
					report.Failed++
					report.Errors = append(report.Errors, &FileError{Path: path, Err: err})
				case skipped:
					report.Skipped++
				default:
					report.Processed++
				}
				reportMu.Unlock()
			}
		}()
	}

	for _, path := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			report.Duration = time.Since(start)
			return report, ctx.Err()
		case jobs <- path:
		}
	}
	close(jobs)
	wg.Wait()

	report.Duration = time.Since(start)
	ix.logger.Info("indexing finished",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration.Round(time.Millisecond))

	for _, fe := range report.Errors {
		ix.logger.Warn("file failed to index", "path", fe.Path, "error", fe.Err)
	}

	return report, nil
}

// IndexFile indexes a single file, replacing any previous entry.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	_, err := ix.indexOne(ctx, path)
	return err
}

// indexOne reads, embeds, extracts and stores one file. Returns
// skipped=true when the stored hash matches the current content.
func (ix *Indexer) indexOne(ctx context.Context, path string) (skipped bool, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read file: %w", err)
	}

	doc := &types.Document{
		Path:        path,
		Content:     string(content),
		LastUpdated: time.Now().UTC(),
	}
	doc.Hash = doc.ComputeHash()

	stored, err := ix.store.GetHash(ctx, path)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return false, err
	}
	if stored == doc.Hash {
		ix.logger.Debug("file unchanged", "path", path)
		return true, nil
	}

	embedding, err := ix.embedding.Embed(ctx, doc.Content)
	if err != nil {
		return false, err
	}
	doc.Embedding = embedding

	refs := ix.extractor.Extract(content, path)

	ix.storeMu.Lock()
	defer ix.storeMu.Unlock()
	if err := ix.store.Upsert(ctx, doc, refs); err != nil {
		return false, err
	}

	ix.logger.Debug("file indexed", "path", path, "refs", len(refs))
	return false, nil
}

// Remove deletes a file's document and references from the store.
func (ix *Indexer) Remove(ctx context.Context, path string) error {
	ix.storeMu.Lock()
	defer ix.storeMu.Unlock()
	return ix.store.Delete(ctx, path)
}
