package daemon

import (
    "context"
    "sync"
    "time"
)

type EventType string

const (
    // EventServerLinked is a new direct peer.
    EventServerLinked EventType = "server_linked"
    // EventServerIntroduced is a server announced by a peer.
    EventServerIntroduced EventType = "server_introduced"
    // EventServerSplit is a server removed by link loss or SQUIT.
    EventServerSplit EventType = "server_split"
    // EventLinkRejected is a link closed during registration.
    EventLinkRejected EventType = "link_rejected"
)

// Event describes one topology change.
type Event struct {
    Type     EventType
    At       time.Time
    ServerID string
    Name     string
    Via      string // direct peer the change arrived through
    Reason   string
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring the event loop.
func (d *Daemon) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    d.eb.add(ch)
    go func() {
        <-ctx.Done()
        d.eb.remove(ch)
        close(ch)
    }()
    return ch
}

type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    if ev.At.IsZero() { ev.At = time.Now() }
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
        }
    }
    e.mu.Unlock()
}
