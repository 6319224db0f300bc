package httpnode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

func TestGetSuccessOnSecondAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := New(MethodGet, Config{Retries: 3, RetryDelay: 0}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"url": srv.URL})

	result, err := p.Process(context.Background(), event, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Type != engine.EventComputationResult {
		t.Errorf("result.Type = %v, want computation_result", result.Type)
	}
	if result.Metadata["attempt"] != 2 {
		t.Errorf("attempt = %v, want 2", result.Metadata["attempt"])
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(MethodGet, Config{Retries: 3, RetryDelay: 0}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"url": srv.URL})

	_, err := p.Process(context.Background(), event, nil)
	if err == nil {
		t.Fatalf("Process() error = nil, want error after exhausting retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server received %d calls, want 3", got)
	}
}

func TestInvalidURLRejected(t *testing.T) {
	p := New(MethodGet, Config{Retries: 1, RetryDelay: 0}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"url": "ftp://example.com"})

	if _, err := p.Process(context.Background(), event, nil); err == nil {
		t.Errorf("Process() error = nil, want validation error for non-http url")
	}
}

func TestPostSendsBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := New(MethodPost, Config{Retries: 1, RetryDelay: 0}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{
		"url":  srv.URL,
		"data": map[string]any{"x": 1.0},
	})

	if _, err := p.Process(context.Background(), event, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if gotBody == "" {
		t.Errorf("server did not receive a request body")
	}
}
