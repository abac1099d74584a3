// Package mem is an in-process LinkTransport used by tests and embedded
// multi-daemon setups. Transports find each other by address on a Network.
package mem

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/transport"
)

var (
    ErrAddrInUse  = errors.New("mem: address in use")
    ErrNoListener = errors.New("mem: nothing listening")
    ErrNotStarted = errors.New("mem: transport not started")
)

// Network is a namespace of in-memory listeners.
type Network struct {
    mu        sync.Mutex
    listeners map[string]*Transport
}

func NewNetwork() *Network { return &Network{listeners: make(map[string]*Transport)} }

// Transport is one endpoint on a Network.
type Transport struct {
    net       *Network
    addr      string
    queueSize int

    mu      sync.Mutex
    local   transport.Hello
    handler transport.LinkHandler
    links   map[*transport.Outbox]struct{}
}

// Listen reserves addr on the network. The endpoint accepts links once started.
func (n *Network) Listen(addr string) *Transport {
    return &Transport{net: n, addr: addr, links: make(map[*transport.Outbox]struct{})}
}

func (t *Transport) Start(ctx context.Context, local transport.Hello, h transport.LinkHandler) error {
    if h == nil { return fmt.Errorf("mem: link handler is required") }
    t.net.mu.Lock()
    if _, ok := t.net.listeners[t.addr]; ok {
        t.net.mu.Unlock()
        return fmt.Errorf("%w: %s", ErrAddrInUse, t.addr)
    }
    t.net.listeners[t.addr] = t
    t.net.mu.Unlock()
    t.mu.Lock()
    t.local, t.handler = local, h
    t.mu.Unlock()
    go func() {
        <-ctx.Done()
        _ = t.Stop(context.Background())
    }()
    return nil
}

func (t *Transport) endpoint() (transport.Hello, transport.LinkHandler) {
    t.mu.Lock(); defer t.mu.Unlock()
    return t.local, t.handler
}

// Connect links t to the transport listening on addr.
func (t *Transport) Connect(ctx context.Context, addr string) error {
    if err := ctx.Err(); err != nil { return err }
    localHello, localH := t.endpoint()
    if localH == nil { return ErrNotStarted }
    t.net.mu.Lock()
    peer, ok := t.net.listeners[addr]
    t.net.mu.Unlock()
    if !ok {
        metrics.LinkDials.WithLabelValues("error").Inc()
        return fmt.Errorf("%w: %s", ErrNoListener, addr)
    }
    peerHello, peerH := peer.endpoint()
    if peerH == nil { return ErrNotStarted }

    var ours, theirs *transport.Outbox
    ours = transport.NewOutbox(peerHello, t.queueSize, func(line string) error {
        peerH.Receive(theirs, line)
        return nil
    })
    theirs = transport.NewOutbox(localHello, peer.queueSize, func(line string) error {
        localH.Receive(ours, line)
        return nil
    })
    t.track(ours, theirs, localH)
    peer.track(theirs, ours, peerH)
    metrics.LinkDials.WithLabelValues("ok").Inc()

    localH.LinkUp(ours)
    peerH.LinkUp(theirs)
    ours.Start()
    theirs.Start()
    return nil
}

func (t *Transport) track(ob, other *transport.Outbox, h transport.LinkHandler) {
    t.mu.Lock()
    t.links[ob] = struct{}{}
    t.mu.Unlock()
    metrics.LinksActive.Inc()
    ob.OnClose(func(err error) {
        t.mu.Lock()
        delete(t.links, ob)
        t.mu.Unlock()
        metrics.LinksActive.Dec()
        if err == nil { err = transport.ErrLinkClosed }
        other.Fail(err)
        h.LinkDown(ob, err)
    })
}

func (t *Transport) Addr() string { return t.addr }

// Stop closes every link and releases the address.
func (t *Transport) Stop(ctx context.Context) error {
    t.net.mu.Lock()
    if t.net.listeners[t.addr] == t { delete(t.net.listeners, t.addr) }
    t.net.mu.Unlock()
    t.mu.Lock()
    links := make([]*transport.Outbox, 0, len(t.links))
    for ob := range t.links { links = append(links, ob) }
    t.mu.Unlock()
    for _, ob := range links { _ = ob.Close() }
    return nil
}

var _ transport.LinkTransport = (*Transport)(nil)
