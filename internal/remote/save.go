package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SaveRequest is the body of POST /save-image.
type SaveRequest struct {
	ImageURL string `json:"imageUrl"`
}

// SaveResponse is the answer of POST /save-image.
type SaveResponse struct {
	FilePath string `json:"filePath"`
}

// SaveClient posts flattened pages to a save-image endpoint.
type SaveClient struct {
	endpoint string
	client   *http.Client
}

// NewSaveClient creates a client for the save-image endpoint at endpoint.
// A nil client uses http.DefaultClient.
func NewSaveClient(endpoint string, client *http.Client) *SaveClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SaveClient{endpoint: endpoint, client: client}
}

// Save uploads a data URL and returns the stored file path.
func (c *SaveClient) Save(ctx context.Context, dataURL string) (string, error) {
	payload, err := json.Marshal(SaveRequest{ImageURL: dataURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("save request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read save response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: save-image answered %d: %s", ErrBackendStatus, resp.StatusCode, snippet(data))
	}

	var out SaveResponse
	if err := json.Unmarshal(data, &out); err != nil || out.FilePath == "" {
		return "", fmt.Errorf("%w: save-image response has no filePath", ErrMalformedResponse)
	}
	return out.FilePath, nil
}
