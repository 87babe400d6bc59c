// Package embedding provides text embeddings over an OpenAI-compatible API
// plus the small vector-math helpers the local theme ranker needs.
package embedding

import (
	"context"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel works against both OpenAI and Gemini-compatible endpoints.
const DefaultModel = "text-embedding-004"

// Service is the embedding contract the ranker depends on.
type Service interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects the upstream provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is the production Service backed by go-openai.
type Client struct {
	api   *openai.Client
	model string
}

func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(apiCfg), model: model}
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty or zero-length in magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Index holds pre-computed vectors for a fixed label set, built once at
// startup and queried per request.
type Index struct {
	labels  []string
	vectors [][]float32
}

// BuildIndex embeds one text per label. labels and texts run in lockstep.
func BuildIndex(ctx context.Context, svc Service, labels, texts []string) (*Index, error) {
	if len(labels) != len(texts) {
		return nil, errors.New("labels and texts length mismatch")
	}
	vectors, err := svc.Embed(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "build index")
	}
	slog.Info("embedding: index built", "entries", len(labels))
	return &Index{labels: labels, vectors: vectors}, nil
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.labels) }

// Similarities scores every indexed entry against the query vector,
// returned keyed by label.
func (ix *Index) Similarities(query []float32) map[string]float64 {
	scores := make(map[string]float64, len(ix.labels))
	for i, label := range ix.labels {
		scores[label] = Cosine(query, ix.vectors[i])
	}
	return scores
}
