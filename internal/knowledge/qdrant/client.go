// Package qdrant is a minimal REST client for the Qdrant vector database,
// covering the four operations the knowledge store needs.
package qdrant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to one Qdrant collection over HTTP.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.VectorBackend = (*Client)(nil)

func NewClient(baseURL, collection string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("qdrant"),
	}
}

type collectionSpec struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
}

// EnsureCollection creates the collection if it does not exist yet.
// Creation is idempotent from the caller's view.
func (c *Client) EnsureCollection(ctx context.Context, size int) error {
	status, _, err := c.do(ctx, http.MethodGet, c.collectionURL(""), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	var spec collectionSpec
	spec.Vectors.Size = size
	spec.Vectors.Distance = "Cosine"

	status, body, err := c.do(ctx, http.MethodPut, c.collectionURL(""), spec)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant create collection returned %d: %s", status, body)
	}
	c.logger.Info("Created knowledge collection.",
		zap.String("collection", c.collection), zap.Int("vector_size", size))
	return nil
}

type upsertRequest struct {
	Points []pointRecord `json:"points"`
}

type pointRecord struct {
	ID      string               `json:"id"`
	Vector  []float32            `json:"vector,omitempty"`
	Payload schemas.KnowledgeItem `json:"payload"`
}

// Upsert writes one point, waiting for the write to be applied so a
// subsequent retrieve sees it.
func (c *Client) Upsert(ctx context.Context, point schemas.VectorPoint) error {
	req := upsertRequest{Points: []pointRecord{{
		ID:      point.ID,
		Vector:  point.Vector,
		Payload: point.Payload,
	}}}

	status, body, err := c.do(ctx, http.MethodPut, c.collectionURL("/points?wait=true"), req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert returned %d: %s", status, body)
	}
	return nil
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *searchFilter `json:"filter,omitempty"`
}

type searchFilter struct {
	Must []fieldMatch `json:"must"`
}

type fieldMatch struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type searchResponse struct {
	Result []struct {
		ID      string                `json:"id"`
		Score   float64               `json:"score"`
		Payload schemas.KnowledgeItem `json:"payload"`
	} `json:"result"`
}

// Search runs a similarity query, optionally constrained to one knowledge
// type.
func (c *Client) Search(ctx context.Context, vector []float32, filterType schemas.KnowledgeType, topK int) ([]schemas.VectorPoint, error) {
	req := searchRequest{Vector: vector, Limit: topK, WithPayload: true}
	if filterType != "" {
		match := fieldMatch{Key: "type"}
		match.Match.Value = string(filterType)
		req.Filter = &searchFilter{Must: []fieldMatch{match}}
	}

	status, body, err := c.do(ctx, http.MethodPost, c.collectionURL("/points/search"), req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned %d: %s", status, body)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	points := make([]schemas.VectorPoint, 0, len(resp.Result))
	for _, hit := range resp.Result {
		points = append(points, schemas.VectorPoint{
			ID:      hit.ID,
			Score:   hit.Score,
			Payload: hit.Payload,
		})
	}
	return points, nil
}

type retrieveRequest struct {
	IDs         []string `json:"ids"`
	WithPayload bool     `json:"with_payload"`
	WithVector  bool     `json:"with_vector"`
}

type retrieveResponse struct {
	Result []struct {
		ID      string                `json:"id"`
		Vector  []float32             `json:"vector"`
		Payload schemas.KnowledgeItem `json:"payload"`
	} `json:"result"`
}

// Retrieve fetches a single point with its vector, returning nil when the
// id is unknown.
func (c *Client) Retrieve(ctx context.Context, id string) (*schemas.VectorPoint, error) {
	req := retrieveRequest{IDs: []string{id}, WithPayload: true, WithVector: true}

	status, body, err := c.do(ctx, http.MethodPost, c.collectionURL("/points"), req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant retrieve returned %d: %s", status, body)
	}

	var resp retrieveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode retrieve response: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	hit := resp.Result[0]
	return &schemas.VectorPoint{ID: hit.ID, Vector: hit.Vector, Payload: hit.Payload}, nil
}

func (c *Client) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, suffix)
}

// do issues one request with a JSON body and returns the status and raw
// response bytes.
func (c *Client) do(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read qdrant response: %w", err)
	}
	return resp.StatusCode, body, nil
}
