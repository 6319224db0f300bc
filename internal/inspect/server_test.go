package inspect

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/eventgraph/internal/opsbus"
)

func TestServerStreamsPublishedEvents(t *testing.T) {
	bus := opsbus.New()
	srv := New(bus, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the subscription
	// before we publish, since Subscribe happens inside ServeHTTP.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(opsbus.Event{Source: opsbus.SourceGraph, Kind: opsbus.KindGraphStarted, Data: map[string]any{"node_count": 3}})

	var got opsbus.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Kind != opsbus.KindGraphStarted {
		t.Errorf("Kind = %q, want %q", got.Kind, opsbus.KindGraphStarted)
	}
}
