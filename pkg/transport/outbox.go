package transport

import (
    "sync"
)

// DefaultQueueSize is the per-link outbound buffer used when none is given.
const DefaultQueueSize = 1024

// Outbox is a Link backed by a bounded queue drained by a single writer
// goroutine. Transports supply the write function that puts one line on the
// wire; Send itself never blocks. A peer that falls more than the queue size
// behind is disconnected, so it resynchronises through a fresh burst instead
// of silently missing lines.
type Outbox struct {
    remote  Hello
    size    int
    wake    chan struct{}
    done    chan struct{}
    write   func(line string) error
    mu      sync.Mutex
    pending []string
    // lines queued by SendBatch that do not count against size
    credit  int
    onClose []func(err error)
    started bool
    closed  bool
    full    bool
    err     error
}

// NewOutbox creates a link for remote. The writer is not running until Start
// is called, so lines sent earlier are held in the queue.
func NewOutbox(remote Hello, size int, write func(line string) error) *Outbox {
    if size <= 0 { size = DefaultQueueSize }
    return &Outbox{remote: remote, size: size, wake: make(chan struct{}, 1), done: make(chan struct{}), write: write}
}

// OnClose registers fn to run once when the link closes. The error is the
// write failure that closed it, or nil for an explicit Close.
func (o *Outbox) OnClose(fn func(err error)) {
    o.mu.Lock()
    defer o.mu.Unlock()
    if o.closed {
        go fn(o.err)
        return
    }
    o.onClose = append(o.onClose, fn)
}

// Start launches the writer goroutine. It is safe to call more than once.
func (o *Outbox) Start() {
    o.mu.Lock()
    if o.started || o.closed { o.mu.Unlock(); return }
    o.started = true
    o.mu.Unlock()
    go o.run()
}

func (o *Outbox) Remote() Hello { return o.remote }

// Send queues line. When the queue is already full the link is failed with
// ErrQueueFull; the close hooks run on their own goroutine so Send is safe to
// call from a link handler.
func (o *Outbox) Send(line string) error {
    o.mu.Lock()
    switch {
    case o.closed:
        o.mu.Unlock()
        return ErrLinkClosed
    case o.full:
        o.mu.Unlock()
        return ErrQueueFull
    case len(o.pending) >= o.size+o.credit:
        o.full = true
        o.mu.Unlock()
        go o.closeWith(ErrQueueFull)
        return ErrQueueFull
    }
    o.pending = append(o.pending, line)
    o.mu.Unlock()
    o.signal()
    return nil
}

// SendBatch queues lines in order as one unit. The batch is not limited by
// the queue size; it is meant for the state burst at link-up, whose length
// depends on the size of the network.
func (o *Outbox) SendBatch(lines []string) error {
    o.mu.Lock()
    if o.closed || o.full {
        o.mu.Unlock()
        return ErrLinkClosed
    }
    o.pending = append(o.pending, lines...)
    o.credit += len(lines)
    o.mu.Unlock()
    o.signal()
    return nil
}

func (o *Outbox) signal() {
    select {
    case o.wake <- struct{}{}:
    default:
    }
}

// Done is closed once the link has been closed.
func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) Close() error {
    o.closeWith(nil)
    return nil
}

// Fail closes the link because the underlying connection broke.
func (o *Outbox) Fail(err error) { o.closeWith(err) }

func (o *Outbox) closeWith(err error) {
    o.mu.Lock()
    if o.closed { o.mu.Unlock(); return }
    o.closed = true
    o.err = err
    o.pending = nil
    hooks := o.onClose
    o.onClose = nil
    close(o.done)
    o.mu.Unlock()
    for _, fn := range hooks { fn(err) }
}

func (o *Outbox) run() {
    for {
        select {
        case <-o.done:
            return
        case <-o.wake:
        }
        o.mu.Lock()
        batch := o.pending
        o.pending, o.credit = nil, 0
        o.mu.Unlock()
        for _, line := range batch {
            select {
            case <-o.done:
                return
            default:
            }
            if err := o.write(line); err != nil {
                o.closeWith(err)
                return
            }
        }
    }
}

var (
    _ Link      = (*Outbox)(nil)
    _ BatchLink = (*Outbox)(nil)
)
