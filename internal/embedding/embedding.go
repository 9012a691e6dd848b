// Package embedding generates vectors for chunk texts through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dgallion1/bookrag/internal/llm"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAIEmbedder uses the embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
	stats  *llm.Stats
}

// NewOpenAIEmbedder creates an embedder that requests dim-dimensional vectors.
func NewOpenAIEmbedder(client *openai.Client, model string, dim int, stats *llm.Stats) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  model,
		dim:    dim,
		stats:  stats,
	}
}

// Embed generates embeddings for texts in a single request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.dim,
	})
	e.stats.Since(llm.OpEmbedding, start)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// EmbedQuery embeds a single text.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchResult reports the outcome of EmbedBatches.
type BatchResult struct {
	Vectors       [][]float32 // One per input text, zero vectors for failed batches.
	FailedBatches int
	FailedTexts   int
}

// EmbedBatches embeds texts in batches of batchSize, retrying transient
// failures. A batch that still fails gets zero vectors so the run can
// continue; only context cancellation aborts.
func EmbedBatches(ctx context.Context, e Embedder, texts []string, batchSize int, log *slog.Logger) (BatchResult, error) {
	if batchSize <= 0 {
		batchSize = 5
	}
	res := BatchResult{Vectors: make([][]float32, 0, len(texts))}

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := llm.Retry(ctx, log, "embed", func(ctx context.Context) ([][]float32, error) {
			return e.Embed(ctx, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error("embedding batch failed", "start", start, "size", len(batch), "error", err)
			res.FailedBatches++
			res.FailedTexts += len(batch)
			for range batch {
				res.Vectors = append(res.Vectors, make([]float32, e.Dimension()))
			}
			continue
		}
		res.Vectors = append(res.Vectors, vecs...)
		log.Debug("embedded batch", "done", end, "total", len(texts))
	}
	return res, nil
}
