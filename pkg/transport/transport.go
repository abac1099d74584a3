package transport

import (
    "context"
    "errors"
)

var (
    ErrLinkClosed = errors.New("transport: link closed")
    ErrQueueFull  = errors.New("transport: outbound queue exceeded")
)

// Hello identifies a server at the start of a link. Both ends exchange one
// before any command line flows.
type Hello struct {
    ID          string `json:"id"`
    Name        string `json:"name"`
    Description string `json:"description,omitempty"`
}

// Link is one established server-to-server connection. Send enqueues a single
// protocol line and never blocks on the network; ordering is preserved per link.
type Link interface {
    Send(line string) error
    // Remote returns the identity the peer presented during the hello exchange.
    Remote() Hello
    Close() error
}

// BatchLink is a Link that can queue a run of lines as one unit, beyond its
// usual queue bound.
type BatchLink interface {
    Link
    SendBatch(lines []string) error
}

// LinkHandler receives link lifecycle events and inbound lines. Calls for one
// link arrive in order: LinkUp, zero or more Receive, LinkDown.
type LinkHandler interface {
    LinkUp(l Link)
    Receive(l Link, line string)
    LinkDown(l Link, err error)
}

// LinkTransport accepts and establishes peer links.
type LinkTransport interface {
    // Start begins accepting links, presenting local as our identity.
    Start(ctx context.Context, local Hello, h LinkHandler) error
    // Connect dials addr and completes the hello exchange. The resulting
    // link is reported through the handler passed to Start.
    Connect(ctx context.Context, addr string) error
    Addr() string
    Stop(ctx context.Context) error
}
