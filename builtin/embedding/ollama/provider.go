// Package ollama implements EmbeddingProvider using Ollama's API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// Default values
const (
	DefaultModel    = "nomic-embed-text"
	DefaultEndpoint = "http://localhost:11434"
	DefaultTimeout  = 30 * time.Second
	MaxPromptChars  = 8000 // Safe limit for most embedding models
)

// Config contains Ollama provider configuration.
type Config struct {
	Model      string
	Endpoint   string
	Timeout    time.Duration
	Dimensions int // Set to 0 to auto-detect from first embedding
}

// Provider implements the EmbeddingProvider interface for Ollama.
type Provider struct {
	config     Config
	client     *http.Client
	dimensions int
	mu         sync.RWMutex
}

// embedRequest is the wire format of the embedding call. Temperature is
// pinned to zero so the same prompt always yields the same vector.
type embedRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Options embedOptions `json:"options"`
}

type embedOptions struct {
	Temperature float32 `json:"temperature"`
}

// New creates a new Ollama embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		dimensions: cfg.Dimensions,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
}

// Embed generates an embedding for the given text. Failures, including
// timeouts, surface as ErrEmbeddingUnavailable; retry policy belongs to
// the caller.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	// Truncate text if too long to avoid context length errors
	if len(text) > MaxPromptChars {
		text = text[:MaxPromptChars]
	}

	jsonBody, err := json.Marshal(embedRequest{
		Model:  p.config.Model,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrEmbeddingUnavailable, resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", types.ErrEmbeddingUnavailable, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", types.ErrEmbeddingUnavailable)
	}

	// Convert float64 to float32
	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}

	// Auto-detect dimensions from first embedding
	p.mu.Lock()
	if p.dimensions == 0 {
		p.dimensions = len(embedding)
	}
	p.mu.Unlock()

	return embedding, nil
}

// Dimensions returns the embedding dimensions, 0 before the first call when
// not configured.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dimensions
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Available checks if Ollama is reachable.
func (p *Provider) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Endpoint+"/api/version", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama not available at %s: %v", types.ErrEmbeddingUnavailable, p.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", types.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
