package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrDimensionMismatch is returned when the provider produces a vector
// of the wrong length. Mismatched vectors must never be padded or
// truncated silently: a corrupted centroid cannot be repaired later.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Embedder turns free text into a fixed-dimension vector. Empty or
// whitespace-only text yields a nil vector and no error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Dim     int
}

type openaiEmbedder struct {
	openai openai.Client
	model  string
	dim    int
}

func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Callers wrap requests in retry.Do; the SDK must not stack
		// its own backoff on top.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &openaiEmbedder{
		openai: openai.NewClient(opts...),
		model:  model,
		dim:    cfg.Dim,
	}, nil
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	start := time.Now()
	resp, err := e.openai.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Dimensions: openai.Int(int64(e.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), e.dim)
	}

	vec := make([]float32, e.dim)
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("embedding component %d is not finite", i)
		}
		vec[i] = float32(v)
	}

	slog.DebugContext(ctx, "embedding generated",
		"model", e.model,
		"dim", e.dim,
		"duration_ms", time.Since(start).Milliseconds())

	return vec, nil
}

func (e *openaiEmbedder) Dimension() int {
	return e.dim
}
