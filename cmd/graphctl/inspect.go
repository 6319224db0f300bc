package main

import (
	"context"
	"log/slog"

	"github.com/nugget/eventgraph/internal/inspect"
	"github.com/nugget/eventgraph/internal/opsbus"
)

// runInspectServer hosts the opsbus websocket feed until ctx is
// cancelled. Errors are logged rather than fatal: a dashboard feed
// failing to bind shouldn't take the graph down with it.
func runInspectServer(ctx context.Context, bus *opsbus.Bus, logger *slog.Logger, addr string) {
	srv := inspect.New(bus, logger)
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error("inspect server stopped", "error", err)
	}
}
