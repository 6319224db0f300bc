package emailnode

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/eventgraph/internal/engine"
)

// ValidationMiddleware rejects data_change events whose address fields
// are obviously malformed before a Processor ever dials SMTP.
type ValidationMiddleware struct{}

func (ValidationMiddleware) BeforeProcess(ctx context.Context, event *engine.Event, nodeID string) (*engine.Event, error) {
	if event.Type != engine.EventDataChange {
		return event, nil
	}
	data, ok := event.DataMap()
	if !ok {
		return event, nil
	}

	for _, field := range []string{"from", "to", "cc", "bcc"} {
		v, ok := stringSlice(data[field])
		if !ok {
			continue
		}
		for _, addr := range v {
			if !looksLikeAddress(addr) {
				return nil, fmt.Errorf("emailnode: %s address %q is not a valid email address", field, addr)
			}
		}
	}

	return event, nil
}

func (ValidationMiddleware) AfterProcess(ctx context.Context, original, result *engine.Event, nodeID string) (*engine.Event, error) {
	return result, nil
}

func looksLikeAddress(addr string) bool {
	bare := extractAddress(addr)
	at := strings.IndexByte(bare, '@')
	return at > 0 && at < len(bare)-1
}
