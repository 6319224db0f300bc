package mqttnode

import (
	"testing"
	"time"
)

func TestReconnectDelaysMatchesExponentialBackoffWithCap(t *testing.T) {
	retry := RetrySettings{
		RetryDelay:    time.Second,
		Backoff:       2.0,
		MaxRetryDelay: 10 * time.Second,
		MaxRetries:    5,
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}

	got := ReconnectDelays(retry, len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v (full sequence: %v)", i, got[i], want[i], got)
		}
	}
}

func TestReconnectDelaysAppliesDefaultsWhenUnset(t *testing.T) {
	got := ReconnectDelays(RetrySettings{}, 1)
	want := defaultRetrySettings().RetryDelay
	if got[0] != want {
		t.Errorf("delay[0] = %v, want default retry_delay %v", got[0], want)
	}
}
