// Package lorawannode implements the LoRaWAN downlink sink: a processor
// that accepts a payload (hex or UTF-8 text), base64-encodes it, and
// POSTs a provider-shaped body to a network server's downlink API.
// Request construction and retry follow internal/httpnode's shared
// client-and-retry idiom (httpkit construction, linear retry delay).
package lorawannode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/eventgraph/internal/engine"
	"github.com/nugget/eventgraph/internal/httpkit"
)

// Provider is the closed set of LoRaWAN network servers this sink knows
// how to shape a downlink request for.
type Provider string

const (
	ProviderTTN        Provider = "ttn"
	ProviderChirpStack Provider = "chirpstack"
	ProviderHelium     Provider = "helium"
)

// Config holds the per-processor downlink settings.
type Config struct {
	Provider Provider
	Endpoint string
	APIKey   string
	DeviceID string // TTN device_id / ChirpStack devEui / Helium device_id
	FPort    int

	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Headers    map[string]string
}

const (
	defaultFPort      = 1
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = time.Second
)

// Processor is a retrying downlink-enqueue processor for one provider.
type Processor struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New builds a Processor for cfg.Provider.
func New(cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPort == 0 {
		cfg.FPort = defaultFPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Processor{
		cfg:    cfg,
		client: httpkit.NewClient(httpkit.WithTimeout(cfg.Timeout), httpkit.WithLogger(logger)),
		logger: logger,
	}
}

// CanHandle matches data_change events, consistent with the other sink
// processors in this engine.
func (p *Processor) CanHandle(event *engine.Event) bool {
	return event.Type == engine.EventDataChange
}

// Process encodes the event's payload, builds the provider-shaped
// request body, and POSTs it with a linear retry loop. Success yields a
// computation_result event; exhausting retries returns an error,
// converted by the owning node into an ERROR event.
func (p *Processor) Process(ctx context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	data, ok := event.DataMap()
	if !ok {
		return nil, fmt.Errorf("lorawannode: invalid request data: expected an object")
	}

	payload, err := decodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("lorawannode: %w", err)
	}

	body, err := p.buildBody(data, payload)
	if err != nil {
		return nil, fmt.Errorf("lorawannode: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		status, err := p.attempt(ctx, body)
		if err == nil {
			return engine.NewEvent(engine.EventComputationResult, map[string]any{
				"status":     "queued",
				"provider":   p.cfg.Provider,
				"device_id":  p.cfg.DeviceID,
				"http_status": status,
			}), nil
		}

		lastErr = err
		p.logger.Warn("lorawan downlink attempt failed", "provider", p.cfg.Provider, "device_id", p.cfg.DeviceID, "attempt", attempt, "retries", p.cfg.Retries, "error", err)

		if attempt < p.cfg.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("lorawannode: downlink failed after %d attempts: %w", p.cfg.Retries, lastErr)
}

// decodePayload accepts either a "payload_hex" field (hex-encoded bytes)
// or a "payload" field (UTF-8 text sent as-is) and returns the raw
// bytes to transmit.
func decodePayload(data map[string]any) ([]byte, error) {
	if hexStr, ok := data["payload_hex"].(string); ok && hexStr != "" {
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("decode payload_hex: %w", err)
		}
		return b, nil
	}
	if text, ok := data["payload"].(string); ok {
		return []byte(text), nil
	}
	return nil, fmt.Errorf("request data must set payload_hex or payload")
}

// buildBody shapes the downlink request body for the configured
// provider. fPort and confirmed may be overridden per-event.
func (p *Processor) buildBody(data map[string]any, payload []byte) ([]byte, error) {
	fPort := p.cfg.FPort
	if v, ok := data["f_port"].(float64); ok {
		fPort = int(v)
	}
	confirmed, _ := data["confirmed"].(bool)
	encoded := base64.StdEncoding.EncodeToString(payload)

	var body any
	switch p.cfg.Provider {
	case ProviderTTN:
		body = map[string]any{
			"downlinks": []map[string]any{
				{
					"f_port":      fPort,
					"frm_payload": encoded,
					"confirmed":   confirmed,
				},
			},
		}
	case ProviderChirpStack:
		body = map[string]any{
			"queueItem": map[string]any{
				"confirmed": confirmed,
				"data":      encoded,
				"fPort":     fPort,
			},
		}
	case ProviderHelium:
		body = map[string]any{
			"payload_raw": encoded,
			"port":        fPort,
			"confirmed":   confirmed,
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", p.cfg.Provider)
	}

	encodedBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return encodedBody, nil
}

func (p *Processor) attempt(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errBody)
	}

	return resp.StatusCode, nil
}
