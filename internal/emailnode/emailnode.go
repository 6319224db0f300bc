package emailnode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/eventgraph/internal/engine"
)

// Processor is the email sink: it merges an incoming event's fields
// over the configured defaults (the event always wins), composes a
// multipart message, and delivers it over SMTP with a linear retry
// loop matching the HTTP sink's retry model.
type Processor struct {
	smtp     SMTPConfig
	defaults Defaults
	retry    RetrySettings
	logger   *slog.Logger
}

// New builds a Processor. smtp and retry settings are deep-merged over
// built-in defaults.
func New(smtp SMTPConfig, defaults Defaults, retry RetrySettings, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		smtp:     mergeSMTPConfig(smtp),
		defaults: defaults,
		retry:    mergeRetrySettings(retry),
		logger:   logger,
	}
}

// CanHandle matches data_change events, consistent with the other
// sink processors in this engine.
func (p *Processor) CanHandle(event *engine.Event) bool {
	return event.Type == engine.EventDataChange
}

// Process composes and sends the message described by event, merged
// over configured defaults. Success yields a computation_result event;
// exhausting retries returns an error, converted by the owning node
// into an ERROR event.
func (p *Processor) Process(ctx context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	data, ok := event.DataMap()
	if !ok {
		return nil, fmt.Errorf("emailnode: invalid request data: expected an object")
	}

	opts := p.resolveOptions(data)
	if opts.From == "" {
		return nil, fmt.Errorf("emailnode: no from address configured or provided")
	}
	if len(opts.To) == 0 {
		return nil, fmt.Errorf("emailnode: no recipients configured or provided")
	}

	msg, err := composeMessage(opts)
	if err != nil {
		return nil, fmt.Errorf("emailnode: compose message: %w", err)
	}
	recipients := collectRecipients(opts.To, opts.Cc, opts.Bcc)

	var lastErr error
	for attempt := 1; attempt <= p.retry.Retries; attempt++ {
		if err := sendMail(ctx, p.smtp, extractAddress(opts.From), recipients, msg); err != nil {
			lastErr = err
			p.logger.Warn("smtp send attempt failed", "host", p.smtp.Host, "attempt", attempt, "retries", p.retry.Retries, "error", err)

			if attempt < p.retry.Retries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(p.retry.RetryDelay):
				}
			}
			continue
		}

		return engine.NewEvent(engine.EventComputationResult, map[string]any{
			"status":     "sent",
			"to":         opts.To,
			"subject":    opts.Subject,
			"recipients": recipients,
		}), nil
	}

	return nil, fmt.Errorf("emailnode: send failed after %d attempts: %w", p.retry.Retries, lastErr)
}

func (p *Processor) resolveOptions(data map[string]any) composeOptions {
	opts := composeOptions{
		From:    p.defaults.From,
		To:      p.defaults.To,
		Cc:      p.defaults.Cc,
		Bcc:     p.defaults.Bcc,
		Subject: p.defaults.Subject,
	}

	if v, ok := data["from"].(string); ok && v != "" {
		opts.From = v
	}
	if v, ok := stringSlice(data["to"]); ok {
		opts.To = v
	}
	if v, ok := stringSlice(data["cc"]); ok {
		opts.Cc = v
	}
	if v, ok := stringSlice(data["bcc"]); ok {
		opts.Bcc = v
	}
	if v, ok := data["subject"].(string); ok && v != "" {
		opts.Subject = v
	}
	if v, ok := data["body"].(string); ok {
		opts.Body = v
	}
	if v, ok := data["in_reply_to"].(string); ok {
		opts.InReplyTo = v
	}
	if v, ok := stringSlice(data["references"]); ok {
		opts.References = v
	}

	return opts
}

// stringSlice coerces a decoded JSON/YAML value into a []string. Arrays
// decode as []any with string elements; a bare string is treated as a
// single-element list for convenience.
func stringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		if t == "" {
			return nil, false
		}
		return []string{t}, true
	default:
		return nil, false
	}
}
