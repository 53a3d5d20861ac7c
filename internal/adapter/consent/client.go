package consent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"
)

// Checker answers whether a recipient opted out of notifications.
type Checker interface {
	IsSuppressed(ctx context.Context, recipient string) (bool, error)
}

// HTTPClient implements Checker against the consent service API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates HTTP consent client with default timeout.
func NewHTTPClient(baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse consent url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("consent url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

// IsSuppressed queries the suppression list for the recipient.
func (c *HTTPClient) IsSuppressed(ctx context.Context, recipient string) (bool, error) {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/suppressions/", url.PathEscape(recipient))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("consent request failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return false, fmt.Errorf("consent error: %s", resp.Status)
	}
}

// AllowAll is the Checker used when no consent service is configured.
type AllowAll struct{}

// IsSuppressed always reports the recipient as deliverable.
func (AllowAll) IsSuppressed(context.Context, string) (bool, error) {
	return false, nil
}
