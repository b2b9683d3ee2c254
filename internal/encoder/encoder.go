// Package encoder adapts the external CLIP encoder service. Both branches
// return L2-normalized vectors of the model's native dimensionality; image
// and text embeddings share one vector space, which is what makes
// text-to-frame retrieval work.
package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the encoder service cannot be reached or
// returns an error. Callers must treat it as fatal for the piece of work
// that needed the embedding; a zero vector is never substituted.
var ErrUnavailable = errors.New("encoder: service unavailable")

// DefaultDimension is the output width of the reference model
// (CLIP ViT-B/32).
const DefaultDimension = 512

// Client talks to an HTTP embedding service exposing image and text
// encoder branches.
type Client struct {
	baseURL   string
	model     string
	dimension int
	http      *http.Client
}

// New builds a client for the encoder service at baseURL. A dimension of 0
// falls back to DefaultDimension.
func New(baseURL, model string, dimension int) *Client {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Client{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Dimension returns the expected embedding width.
func (c *Client) Dimension() int { return c.dimension }

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image,omitempty"` // base64-encoded JPEG
	Text  string `json:"text,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ImageEmbedding encodes a JPEG image into a normalized vector.
func (c *Client) ImageEmbedding(ctx context.Context, jpegData []byte) ([]float32, error) {
	if len(jpegData) == 0 {
		return nil, fmt.Errorf("encoder: empty image data")
	}
	return c.embed(ctx, "/embed/image", embedRequest{
		Model: c.model,
		Image: base64.StdEncoding.EncodeToString(jpegData),
	})
}

// TextEmbedding encodes a text query into a normalized vector in the same
// space as the image embeddings.
func (c *Client) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("encoder: empty text")
	}
	return c.embed(ctx, "/embed/text", embedRequest{Model: c.model, Text: text})
}

func (c *Client) embed(ctx context.Context, path string, reqBody embedRequest) ([]float32, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("encoder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(data))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(out.Embedding) != c.dimension {
		return nil, fmt.Errorf("encoder: got %d-dimensional embedding, want %d", len(out.Embedding), c.dimension)
	}

	normalized, err := Normalize(out.Embedding)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// Normalize scales a vector to unit Euclidean norm. A zero vector is an
// error: it carries no direction and would poison cosine search.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, fmt.Errorf("encoder: zero-norm embedding")
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
