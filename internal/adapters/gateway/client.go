// Package gateway talks to the upstream token and dataset endpoints and
// returns validated, typed batches.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

// Upstream endpoints, relative to the base URL.
const (
	PathToken       = "/mapbox-token/create"
	PathPackageShow = "/toronto/package-show"
	PathDatastore   = "/toronto/datastore"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 20
	maxErrorBody   = 512
)

// Client issues requests against the upstream service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// New validates baseURL and returns a Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: empty base url", ErrInvalidConfig)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url scheme must be http or https", ErrInvalidConfig)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("gateway")
	}
	return c, nil
}

type queryBody struct {
	Query string `json:"query"`
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}
	return c.do(ctx, req, path)
}

func (c *Client) postQuery(ctx context.Context, path, query string) ([]byte, error) {
	payload, err := json.Marshal(queryBody{Query: query})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: encode query: %w", ErrTransport, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, path)
}

func (c *Client) do(ctx context.Context, req *http.Request, endpoint string) ([]byte, error) {
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("gateway", "transport")
		metrics.RecordErrorLatency("gateway", "transport", float64(time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordErrorByComponent("gateway", "read_body")
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrTransport, endpoint, err)
	}

	c.log.Debug(ctx, "upstream response",
		logger.String("endpoint", endpoint),
		logger.String("request_id", requestID),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordErrorByComponent("gateway", "status")
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return body, nil
}

// envelope accepts both {"result": ...} and {"data": {"result": ...}}.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Data   *struct {
		Result json.RawMessage `json:"result"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeResult(endpoint string, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.RecordErrorByComponent("gateway", "parse")
		return nil, &ParseError{Endpoint: endpoint, Err: err}
	}
	raw := env.Result
	if isNull(raw) && env.Data != nil {
		raw = env.Data.Result
	}
	if isNull(raw) {
		metrics.RecordErrorByComponent("gateway", "parse")
		if len(env.Errors) > 0 {
			return nil, &ParseError{Endpoint: endpoint, Field: "result", Err: fmt.Errorf("upstream error: %s", env.Errors[0].Message)}
		}
		return nil, missing(endpoint, "result")
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
