package emailnode

import (
	"context"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

func TestResolveOptionsEventOverridesDefaults(t *testing.T) {
	p := New(SMTPConfig{Host: "smtp.example.com"}, Defaults{
		From:    "default@example.com",
		To:      []string{"default-to@example.com"},
		Subject: "default subject",
	}, RetrySettings{}, nil)

	data := map[string]any{
		"to":      []any{"override@example.com"},
		"subject": "override subject",
		"body":    "hello",
	}

	opts := p.resolveOptions(data)
	if opts.From != "default@example.com" {
		t.Errorf("From = %q, want default fallback", opts.From)
	}
	if len(opts.To) != 1 || opts.To[0] != "override@example.com" {
		t.Errorf("To = %v, want event override", opts.To)
	}
	if opts.Subject != "override subject" {
		t.Errorf("Subject = %q, want event override", opts.Subject)
	}
}

func TestProcessRejectsMissingRecipients(t *testing.T) {
	p := New(SMTPConfig{Host: "smtp.example.com"}, Defaults{From: "a@example.com"}, RetrySettings{}, nil)
	event := engine.NewEvent(engine.EventDataChange, map[string]any{"subject": "x", "body": "y"})

	if _, err := p.Process(context.Background(), event, nil); err == nil {
		t.Errorf("Process() error = nil, want error when no recipients are configured")
	}
}

func TestValidationMiddlewareRejectsMalformedAddress(t *testing.T) {
	mw := ValidationMiddleware{}
	event := engine.NewEvent(engine.EventDataChange, map[string]any{
		"to": []any{"not-an-address"},
	})

	if _, err := mw.BeforeProcess(context.Background(), event, "node"); err == nil {
		t.Errorf("BeforeProcess() error = nil, want rejection of malformed address")
	}
}

func TestValidationMiddlewareAllowsGoodAddress(t *testing.T) {
	mw := ValidationMiddleware{}
	event := engine.NewEvent(engine.EventDataChange, map[string]any{
		"to": []any{"Ada Lovelace <ada@example.com>"},
	})

	if _, err := mw.BeforeProcess(context.Background(), event, "node"); err != nil {
		t.Errorf("BeforeProcess() error = %v, want nil for well-formed address", err)
	}
}

func TestStringSliceCoercion(t *testing.T) {
	if v, ok := stringSlice([]any{"a", "b"}); !ok || len(v) != 2 {
		t.Errorf("stringSlice([]any) = %v, %v", v, ok)
	}
	if v, ok := stringSlice("a"); !ok || len(v) != 1 {
		t.Errorf("stringSlice(string) = %v, %v", v, ok)
	}
	if _, ok := stringSlice(42); ok {
		t.Errorf("stringSlice(int) ok = true, want false")
	}
}
