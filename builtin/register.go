// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	"time"

	ollamaEmbed "github.com/spetr/codectx/builtin/embedding/ollama"
	openaiEmbed "github.com/spetr/codectx/builtin/embedding/openai"
	"github.com/spetr/codectx/builtin/extract/treesitter"
	"github.com/spetr/codectx/builtin/vectorstore/sqlitevec"
	"github.com/spetr/codectx/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			Timeout:  time.Duration(cfg.TimeoutS) * time.Second,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
		}), nil
	})

	// Register context stores
	provider.RegisterStore("sqlitevec", func() (provider.ContextStore, error) {
		return sqlitevec.New(), nil
	})

	// Register reference extractors
	provider.RegisterExtractor("treesitter", func() (provider.ReferenceExtractor, error) {
		return treesitter.New(), nil
	})
}
