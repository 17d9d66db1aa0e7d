package signed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Public performs unauthenticated GET requests against an exchange's
// public market data API. Responses follow the same envelope rule as the
// signed endpoint but carry no signature.
type Public struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPublic creates a public endpoint rooted at baseURL.
func NewPublic(baseURL string, logger *zap.Logger) *Public {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Public{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Get requests the given path relative to the base URL and unwraps the
// response envelope.
func (p *Public) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	reqURL := p.baseURL
	if path != "" {
		reqURL += "/" + strings.TrimPrefix(path, "/")
	}
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	p.logger.Debug("sending public request", zap.String("url", reqURL))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseEnvelope(body)
}
