package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// HTTPFetcher reads authoritative state from the /v1 API with a bearer token.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the API rooted at baseURL. A nil client
// uses http.DefaultClient.
func NewHTTPFetcher(baseURL, token string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

func (f *HTTPFetcher) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found, err := f.get(ctx, "/v1/sync", &snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("sync endpoint not found")
	}
	return &snap, nil
}

func (f *HTTPFetcher) Request(ctx context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error) {
	var req servicerequest.ServiceRequest
	found, err := f.get(ctx, "/v1/requests/"+id.String(), &req)
	if err != nil || !found {
		return nil, err
	}
	return &req, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
