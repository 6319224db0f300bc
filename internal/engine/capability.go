package engine

import "context"

// Processor is a pure transform: given an event and a snapshot of the
// owning node's context, it produces an optional replacement event.
// Implementations must not mutate the node's own collections; the
// Context passed in is a read-only snapshot for exactly this reason.
type Processor interface {
	// CanHandle reports whether this processor applies to event. The
	// owning node calls CanHandle on each of its processors in
	// registration order and runs the first match.
	CanHandle(event *Event) bool

	// Process runs the transform. A nil *Event with a nil error means
	// "no output, suppress fan-out". A non-nil error is converted by the
	// owning node into an ERROR event.
	Process(ctx context.Context, event *Event, nodeCtx *Context) (*Event, error)
}

// Middleware wraps every processor call with a before/after hook pair.
// Middleware runs in registration order for before_process and the same
// order for after_process (not reversed), matching the source engine's
// behavior.
type Middleware interface {
	// BeforeProcess runs ahead of processor selection. It may return a
	// replaced event that is threaded into the next middleware and
	// eventually into the processor.
	BeforeProcess(ctx context.Context, event *Event, nodeID string) (*Event, error)

	// AfterProcess runs once the processor has produced result (which may
	// be nil). It may substitute a different result event.
	AfterProcess(ctx context.Context, original *Event, result *Event, nodeID string) (*Event, error)
}

// Lifecycle is implemented by nodes that own a long-lived external
// resource (a broker connection, an HTTP poller) and need explicit
// start/stop management by the graph.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Observer is anything that can receive an event pushed by an upstream
// subject. Every GraphNode is an Observer.
type Observer interface {
	ID() string
	Update(ctx context.Context, event *Event) error
}

// FilterFunc decides whether an incoming event should be processed at
// all. Returning false drops the event with no side effects, before any
// middleware or processor runs.
type FilterFunc func(event *Event) bool

// Context is the read-only snapshot handed to a Processor. It is rebuilt
// on every update() call from the node's current state.
type Context struct {
	NodeID        string
	NodeType      string
	Config        map[string]any
	CurrentData   any
	IncomingNodes []string
	OutgoingNodes []string
	Metrics       Metrics
	History       []*Event // most recent entries, oldest first, capped at 10
}

// Metrics is a point-in-time copy of a node's counters.
type Metrics struct {
	EventsProcessed uint64
	EventsSent      uint64
	Errors          uint64
	LastActivity    string
}
