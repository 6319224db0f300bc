// Package httpnode implements the retrying HTTP GET/POST/PUT/PATCH/DELETE
// processors. Requests go through internal/httpkit's shared client
// construction; the retry loop here is per-request-attempt bookkeeping
// on top of that, matching the source engine's linear retry_delay model.
package httpnode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/eventgraph/internal/engine"
	"github.com/nugget/eventgraph/internal/httpkit"
)

// Method is the closed set of HTTP verbs this package's processors
// support.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// Config holds the per-processor request settings recognized by the
// engine's configuration surface for HTTP nodes.
type Config struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Headers    map[string]string
}

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = time.Second
)

// Processor is a retrying request/response processor for one HTTP verb.
type Processor struct {
	method     Method
	client     *http.Client
	retries    int
	retryDelay time.Duration
	headers    map[string]string
	logger     *slog.Logger
}

// New builds a Processor for method using the shared httpkit client
// construction (consistent timeouts, User-Agent, connection pooling).
func New(method Method, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = defaultRetryDelay
	}

	return &Processor{
		method:     method,
		client:     httpkit.NewClient(httpkit.WithTimeout(timeout), httpkit.WithLogger(logger)),
		retries:    retries,
		retryDelay: retryDelay,
		headers:    cfg.Headers,
		logger:     logger,
	}
}

// CanHandle matches data_change events, mirroring the source design's
// HTTP processors.
func (p *Processor) CanHandle(event *engine.Event) bool {
	return event.Type == engine.EventDataChange
}

// Process issues the configured request, retrying transient failures up
// to p.retries times with a fixed retryDelay between attempts. A success
// yields a computation_result event; exhausting retries is converted to
// an ERROR event by the owning node.
func (p *Processor) Process(ctx context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	data, ok := event.DataMap()
	if !ok {
		return nil, fmt.Errorf("httpnode: invalid request data: expected an object")
	}

	url, _ := data["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("httpnode: invalid request data: url must start with http:// or https://")
	}

	var body []byte
	if hasBody(p.method) {
		if payload, ok := data["data"]; ok {
			encoded, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("httpnode: encode request body: %w", err)
			}
			body = encoded
		}
	}

	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		status, content, err := p.attempt(ctx, url, body)
		if err == nil {
			meta := map[string]any{"status": status, "attempt": attempt}
			for k, v := range event.Metadata {
				if _, exists := meta[k]; !exists {
					meta[k] = v
				}
			}
			return (&engine.Event{
				Type: engine.EventComputationResult,
				Data: map[string]any{"content": content, "status": status},
			}).WithMetadata(meta), nil
		}

		lastErr = err
		p.logger.Warn("http request attempt failed", "method", p.method, "url", url, "attempt", attempt, "retries", p.retries, "error", err)

		if attempt < p.retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
	}

	return nil, fmt.Errorf("httpnode: request failed after %d attempts: %w", p.retries, lastErr)
}

func hasBody(m Method) bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

func (p *Processor) attempt(ctx context.Context, url string, body []byte) (int, any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, string(p.method), url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return resp.StatusCode, nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errBody)
	}

	content, err := convertResponse(resp)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, content, nil
}

// convertResponse decodes the body according to Content-Type: JSON is
// parsed into Go values, text is returned as a string, everything else
// is base64-encoded so it stays JSON-serializable downstream.
func convertResponse(resp *http.Response) (any, error) {
	contentType := resp.Header.Get("Content-Type")

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case strings.Contains(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode json response: %w", err)
		}
		return v, nil
	case strings.Contains(contentType, "text/"):
		return string(data), nil
	default:
		return base64.StdEncoding.EncodeToString(data), nil
	}
}
