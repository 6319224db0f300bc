package lorawannode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

func TestTTNDownlinkBodyShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{Provider: ProviderTTN, Endpoint: srv.URL, DeviceID: "dev-1", Retries: 1}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"payload": "hi"})

	result, err := p.Process(context.Background(), event, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Type != engine.EventComputationResult {
		t.Errorf("result.Type = %v, want computation_result", result.Type)
	}

	downlinks, ok := gotBody["downlinks"].([]any)
	if !ok || len(downlinks) != 1 {
		t.Fatalf("downlinks = %v, want one-element array", gotBody["downlinks"])
	}
	entry := downlinks[0].(map[string]any)
	if entry["frm_payload"] != "aGk=" {
		t.Errorf("frm_payload = %v, want base64(hi)", entry["frm_payload"])
	}
}

func TestChirpStackDownlinkBodyShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{Provider: ProviderChirpStack, Endpoint: srv.URL, Retries: 1}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"payload_hex": "cafe"})

	if _, err := p.Process(context.Background(), event, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	item, ok := gotBody["queueItem"].(map[string]any)
	if !ok {
		t.Fatalf("queueItem missing from body: %v", gotBody)
	}
	if item["data"] != "yv4=" {
		t.Errorf("data = %v, want base64(0xcafe)", item["data"])
	}
}

func TestMissingPayloadRejected(t *testing.T) {
	p := New(Config{Provider: ProviderHelium, Endpoint: "http://example.com", Retries: 1}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{})

	if _, err := p.Process(context.Background(), event, nil); err == nil {
		t.Errorf("Process() error = nil, want error when payload is missing")
	}
}

func TestExhaustsRetriesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{Provider: ProviderHelium, Endpoint: srv.URL, Retries: 2, RetryDelay: 0}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"payload": "x"})

	if _, err := p.Process(context.Background(), event, nil); err == nil {
		t.Errorf("Process() error = nil, want error after exhausting retries")
	}
}
