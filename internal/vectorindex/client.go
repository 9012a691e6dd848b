// Package vectorindex talks to a managed approximate-nearest-neighbour index
// over its REST API (Vertex AI Vector Search wire format).
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/llm"
)

const (
	// BookNamespace is the restrict namespace carrying the book title.
	BookNamespace = "book"
	// UpsertBatchSize is the number of datapoints sent per upsert call.
	UpsertBatchSize = 100
)

// Config locates the index and its deployed endpoint.
type Config struct {
	APIURL          string // e.g. https://us-central1-aiplatform.googleapis.com/v1
	Index           string // projects/{p}/locations/{l}/indexes/{id}
	EndpointURL     string // Full URL of the index endpoint resource.
	DeployedIndexID string
	AccessToken     string
	BatchDelay      time.Duration // Pause between upsert batches.
}

// Client communicates with the vector index HTTP API.
type Client struct {
	cfg        Config
	log        *slog.Logger
	httpClient *http.Client
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Restriction limits a datapoint or query to values in a namespace.
type Restriction struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allowList,omitempty"`
}

// Datapoint is one stored vector.
type Datapoint struct {
	ID            string        `json:"datapointId"`
	FeatureVector []float32     `json:"featureVector,omitempty"`
	Restricts     []Restriction `json:"restricts,omitempty"`
}

// Neighbor is one search hit.
type Neighbor struct {
	DatapointID string  `json:"datapoint_id"`
	Distance    float64 `json:"distance"`
}

// Datapoints pairs chunks with their vectors using the chunk datapoint IDs.
func Datapoints(chunks []book.Chunk, vectors [][]float32) ([]Datapoint, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("number of chunks (%d) must match number of vectors (%d)", len(chunks), len(vectors))
	}
	out := make([]Datapoint, len(chunks))
	for i, c := range chunks {
		out[i] = Datapoint{
			ID:            c.DatapointID(),
			FeatureVector: vectors[i],
			Restricts:     []Restriction{{Namespace: BookNamespace, AllowList: []string{c.BookTitle}}},
		}
	}
	return out, nil
}

// Upsert writes datapoints in batches of UpsertBatchSize. Transient failures
// are retried; the first permanent failure stops the upload.
func (c *Client) Upsert(ctx context.Context, points []Datapoint) error {
	batches := (len(points) + UpsertBatchSize - 1) / UpsertBatchSize
	for b := 0; b < batches; b++ {
		start := b * UpsertBatchSize
		end := min(start+UpsertBatchSize, len(points))
		body := map[string]any{"datapoints": points[start:end]}

		_, err := llm.Retry(ctx, c.log, "upsert", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.post(ctx, c.cfg.APIURL+"/"+c.cfg.Index+":upsertDatapoints", body, nil)
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d/%d: %w", b+1, batches, err)
		}
		c.log.Info("upserted batch", "batch", b+1, "batches", batches, "datapoints", end-start)

		if c.cfg.BatchDelay > 0 && b < batches-1 {
			select {
			case <-time.After(c.cfg.BatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Remove deletes datapoints by ID.
func (c *Client) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"datapointIds": ids}
	_, err := llm.Retry(ctx, c.log, "remove", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.post(ctx, c.cfg.APIURL+"/"+c.cfg.Index+":removeDatapoints", body, nil)
	})
	if err != nil {
		return fmt.Errorf("remove datapoints: %w", err)
	}
	return nil
}

type findRequest struct {
	DeployedIndexID string      `json:"deployedIndexId"`
	Queries         []findQuery `json:"queries"`
}

type findQuery struct {
	Datapoint     Datapoint `json:"datapoint"`
	NeighborCount int       `json:"neighborCount"`
}

type findResponse struct {
	NearestNeighbors []struct {
		Neighbors []struct {
			Datapoint struct {
				ID string `json:"datapointId"`
			} `json:"datapoint"`
			Distance float64 `json:"distance"`
		} `json:"neighbors"`
	} `json:"nearestNeighbors"`
}

// FindNeighbors returns the nearest datapoints to vector, optionally limited
// to the given book titles.
func (c *Client) FindNeighbors(ctx context.Context, vector []float32, topK int, books []string) ([]Neighbor, error) {
	q := findQuery{
		Datapoint:     Datapoint{ID: "query", FeatureVector: vector},
		NeighborCount: topK,
	}
	if len(books) > 0 {
		q.Datapoint.Restricts = []Restriction{{Namespace: BookNamespace, AllowList: books}}
	}
	req := findRequest{DeployedIndexID: c.cfg.DeployedIndexID, Queries: []findQuery{q}}

	resp, err := llm.Retry(ctx, c.log, "find_neighbors", func(ctx context.Context) (findResponse, error) {
		var out findResponse
		err := c.post(ctx, c.cfg.EndpointURL+":findNeighbors", req, &out)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("find neighbors: %w", err)
	}

	var neighbors []Neighbor
	for _, nn := range resp.NearestNeighbors {
		for _, n := range nn.Neighbors {
			neighbors = append(neighbors, Neighbor{DatapointID: n.Datapoint.ID, Distance: n.Distance})
		}
	}
	return neighbors, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return llm.StatusError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
