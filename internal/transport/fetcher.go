// Package transport implements the SDK's external collaborators: the HTTP
// flag fetch and the server-push prompt channel. The evaluation cache and
// prompt scheduler consume these through narrow interfaces, so hosts can
// substitute their own transports.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
)

// Client fetches evaluated flags from the flagship API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	log zerolog.Logger
}

// NewClient creates an API client.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger,
	}
}

type flagsResponse struct {
	Flags flags.FlagSet `json:"flags"`
	ETag  string        `json:"etag"`
}

// FetchFlags requests the evaluated flag set for ectx. etag, when non-empty,
// is sent as If-None-Match; a 304 response reports NotModified with an empty
// set (the cache keeps its data). Any non-2xx status or malformed body is a
// fetch failure.
func (c *Client) FetchFlags(ctx context.Context, ectx fingerprint.Context, etag string) (*flags.FetchResult, error) {
	u, err := url.Parse(c.BaseURL + "/v1/flags/evaluated")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	serialized, err := json.Marshal(ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize context: %w", err)
	}
	q := u.Query()
	q.Set("context", base64.RawURLEncoding.EncodeToString(serialized))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &flags.FetchResult{ETag: etag, NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result flagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Flags == nil {
		result.Flags = flags.FlagSet{}
	}
	if result.ETag == "" {
		result.ETag = resp.Header.Get("ETag")
	}
	return &flags.FetchResult{Flags: result.Flags, ETag: result.ETag}, nil
}
