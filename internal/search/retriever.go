package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// refDenylist filters out names inherited from Object.prototype that
// show up as spurious usage references in nearly every file.
var refDenylist = map[string]bool{
	"constructor":          true,
	"toString":             true,
	"toLocaleString":       true,
	"valueOf":              true,
	"hasOwnProperty":       true,
	"isPrototypeOf":        true,
	"propertyIsEnumerable": true,
	"__proto__":            true,
	"__defineGetter__":     true,
	"__defineSetter__":     true,
	"__lookupGetter__":     true,
	"__lookupSetter__":     true,
}

// Retriever answers similarity queries over the context store.
type Retriever struct {
	store     provider.ContextStore
	embedding provider.EmbeddingProvider
	logger    *slog.Logger
}

// NewRetriever creates a retriever over the given store and
// embedding provider.
func NewRetriever(store provider.ContextStore, embedding provider.EmbeddingProvider, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:     store,
		embedding: embedding,
		logger:    logger,
	}
}

// Search returns the limit most similar documents to query, each with
// its variable references aggregated by name. An empty store yields an
// empty result, not an error. A failed query embedding aborts the
// search.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*types.SearchResult, error) {
	docs, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(docs) == 0 {
		return []*types.SearchResult{}, nil
	}

	queryEmbedding, err := r.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]*types.SearchResult, 0, len(docs))
	for _, dr := range docs {
		score, ok := CosineSimilarity(queryEmbedding, dr.Document.Embedding)
		if !ok {
			r.logger.Debug("skipping document with unusable embedding", "path", dr.Document.Path)
			continue
		}
		results = append(results, &types.SearchResult{
			Document:   dr.Document,
			Path:       dr.Document.Path,
			Score:      score,
			References: aggregateRefs(dr.References),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit < 1 {
		limit = 1
	}
	if limit > len(results) {
		limit = len(results)
	}
	results = results[:limit]

	r.logger.Debug("search complete", "query_len", len(query), "results", len(results))
	return results, nil
}

// aggregateRefs groups a file's references by variable name, dropping
// denylisted names.
func aggregateRefs(refs []*types.VariableReference) map[string][]types.RefOccurrence {
	if len(refs) == 0 {
		return map[string][]types.RefOccurrence{}
	}
	grouped := make(map[string][]types.RefOccurrence)
	for _, ref := range refs {
		if refDenylist[ref.VariableName] {
			continue
		}
		grouped[ref.VariableName] = append(grouped[ref.VariableName], types.RefOccurrence{
			Line:   ref.LineNumber,
			Type:   ref.RefType,
			Source: ref.SourcePath,
		})
	}
	return grouped
}
