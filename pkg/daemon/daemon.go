// Package daemon runs one server of the network: it owns the spanning tree,
// executes commands arriving from peers or local callers, and hands every
// completed command to the propagation engine.
//
// All state is confined to a single event loop goroutine. Transport
// callbacks, local commands and status queries are posted to that loop, so
// the tree never changes while a routing decision is in progress.
package daemon

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/delivery"
    "github.com/amirimatin/go-spantree/pkg/discovery"
    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
    "github.com/amirimatin/go-spantree/pkg/membership"
    obsmetrics "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/observability/tracing"
    "github.com/amirimatin/go-spantree/pkg/propagate"
    "github.com/amirimatin/go-spantree/pkg/route"
    "github.com/amirimatin/go-spantree/pkg/transport"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

// Daemon is one server on the network.
type Daemon struct {
    opts   Options
    logger *zap.Logger

    mu  sync.Mutex
    run struct {
        started bool
        closed  bool
    }
    reqs chan func()
    done chan struct{}
    wg   sync.WaitGroup
    eb   eventBus

    // loop-owned
    reg    *tree.Registry
    users  *membership.Directory
    send   *delivery.Sender
    engine *propagate.Engine
    cmds   *route.Table
    origin *tree.ServerNode // peer of the inbound line being executed
}

// New constructs a Daemon from validated options. It performs no network
// activity; call Start to launch it.
func New(opts Options) (*Daemon, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.Users == nil { opts.Users = membership.NewDirectory() }
    if opts.QueueSize <= 0 { opts.QueueSize = 1024 }
    if opts.ConnectRetry <= 0 { opts.ConnectRetry = 2 * time.Second }
    logger := logutil.Named(opts.Logger, "daemon").With(zap.String("server", opts.Name))
    d := &Daemon{
        opts:   opts,
        logger: logger,
        reqs:   make(chan func(), opts.QueueSize),
        done:   make(chan struct{}),
        reg:    tree.New(opts.ServerID, opts.Name, opts.Description),
        users:  opts.Users,
        cmds:   route.NewTable(),
    }
    d.send = delivery.New(d.reg, d.users, logger)
    engine, err := propagate.New(propagate.Options{
        Registry: d.reg,
        Sender:   d.send,
        Users:    d.users,
        Module:   SpanningTree,
        Exempts:  opts.Exempts,
        Logger:   logger.Named("propagate"),
    })
    if err != nil { return nil, err }
    d.engine = engine
    for _, c := range d.builtins() {
        if err := d.cmds.Register(c); err != nil { return nil, err }
    }
    return d, nil
}

// Register adds a command to the table. Commands registered after Start are
// picked up by the next line that names them.
func (d *Daemon) Register(cmd route.Command) error {
    return d.do(context.Background(), func() error { return d.cmds.Register(cmd) }, false)
}

// Start launches the event loop, the link transport, the management endpoint
// and the initial dials to discovery targets.
func (d *Daemon) Start(ctx context.Context) error {
    d.mu.Lock()
    if d.run.started {
        d.mu.Unlock()
        return nil
    }
    d.run.started = true
    d.mu.Unlock()

    obsmetrics.Register()
    d.wg.Add(1)
    go d.loop()

    local := transport.Hello{ID: d.opts.ServerID, Name: d.opts.Name, Description: d.opts.Description}
    if err := d.opts.Links.Start(ctx, local, d); err != nil { return fmt.Errorf("daemon: start links: %w", err) }
    logutil.Infof(d.logger, "accepting links at %s", d.opts.Links.Addr())

    if d.opts.RPCServer != nil {
        if err := d.opts.RPCServer.Start(ctx, d.StatusJSON); err != nil { return err }
        logutil.Infof(d.logger, "management endpoint listening at %s (status/metrics/healthz)", d.opts.RPCServer.Addr())
    }
    if d.opts.Discovery != nil {
        if targets := d.opts.Discovery.Targets(); len(targets) > 0 {
            logutil.Infof(d.logger, "linking to %v", targets)
            for _, t := range targets {
                d.wg.Add(1)
                go d.autoconnect(ctx, t)
            }
        }
    }
    return nil
}

// autoconnect dials t until a link is up or the server named by t is already
// in the tree.
func (d *Daemon) autoconnect(ctx context.Context, t discovery.Target) {
    defer d.wg.Done()
    for attempt := 0; ; attempt++ {
        if t.Name != "" {
            if _, known := d.FindServer(ctx, t.Name); known { return }
        }
        err := d.opts.Links.Connect(ctx, t.Addr)
        if err == nil { return }
        logutil.Warnf(d.logger, "link to %s failed (attempt %d): %v", t, attempt+1, err)
        select {
        case <-ctx.Done():
            return
        case <-d.done:
            return
        case <-time.After(d.opts.ConnectRetry):
        }
    }
}

// Connect dials a peer directly.
func (d *Daemon) Connect(ctx context.Context, addr string) error {
    if !d.running() { return ErrNotStarted }
    return d.opts.Links.Connect(ctx, addr)
}

// Disconnect closes the link to a direct peer; the peer's subtree is split.
func (d *Daemon) Disconnect(ctx context.Context, server string) error {
    var link transport.Link
    err := d.do(ctx, func() error {
        n, ok := d.reg.Find(server)
        if !ok { return fmt.Errorf("%w: %s", ErrUnknownServer, server) }
        if !n.Direct() { return fmt.Errorf("%w: %s", ErrNotDirect, server) }
        link = n.Link()
        return nil
    }, true)
    if err != nil { return err }
    return link.Close()
}

// Stop closes every link and the management endpoint and stops the loop.
func (d *Daemon) Stop(ctx context.Context) error {
    d.mu.Lock()
    if !d.run.started || d.run.closed {
        d.mu.Unlock()
        return nil
    }
    d.run.closed = true
    d.mu.Unlock()

    if err := d.opts.Links.Stop(ctx); err != nil { logutil.Warnf(d.logger, "stop links: %v", err) }
    if d.opts.RPCServer != nil { _ = d.opts.RPCServer.Stop(ctx) }
    close(d.done)
    d.wg.Wait()
    return nil
}

// ID is the local server id.
func (d *Daemon) ID() string { return d.opts.ServerID }

// Name is the local server name.
func (d *Daemon) Name() string { return d.opts.Name }

// LinkAddr is the address peers link to.
func (d *Daemon) LinkAddr() string { return d.opts.Links.Addr() }

// MgmtAddr is the management endpoint address, or "" without one.
func (d *Daemon) MgmtAddr() string {
    if d.opts.RPCServer == nil { return "" }
    return d.opts.RPCServer.Addr()
}

// Close is a convenience alias for Stop with a background context.
func (d *Daemon) Close() error { return d.Stop(context.Background()) }

func (d *Daemon) running() bool {
    d.mu.Lock(); defer d.mu.Unlock()
    return d.run.started && !d.run.closed
}

func (d *Daemon) loop() {
    defer d.wg.Done()
    for {
        select {
        case <-d.done:
            return
        case fn := <-d.reqs:
            fn()
        }
    }
}

// post queues fn on the loop without waiting for it.
func (d *Daemon) post(fn func()) {
    select {
    case d.reqs <- fn:
    case <-d.done:
    }
}

// do runs fn on the loop and waits for its result. Before Start, when
// requireStarted is false, fn runs inline.
func (d *Daemon) do(ctx context.Context, fn func() error, requireStarted bool) error {
    _, err := call(ctx, d, func() (struct{}, error) { return struct{}{}, fn() }, requireStarted)
    return err
}

// call is do for functions with a result. The value travels back over the
// reply channel, so a caller that gives up early never shares memory with
// the loop.
func call[T any](ctx context.Context, d *Daemon, fn func() (T, error), requireStarted bool) (T, error) {
    var zero T
    d.mu.Lock()
    started, closed := d.run.started, d.run.closed
    d.mu.Unlock()
    if closed { return zero, ErrStopped }
    if !started {
        if requireStarted { return zero, ErrNotStarted }
        return fn()
    }
    type reply struct {
        v   T
        err error
    }
    res := make(chan reply, 1)
    run := func() {
        v, err := fn()
        res <- reply{v, err}
    }
    select {
    case d.reqs <- run:
    case <-d.done:
        return zero, ErrStopped
    case <-ctx.Done():
        return zero, ctx.Err()
    }
    select {
    case r := <-res:
        return r.v, r.err
    case <-d.done:
        return zero, ErrStopped
    case <-ctx.Done():
        return zero, ctx.Err()
    }
}

// Execute runs a command on behalf of actor as if a local client issued it,
// then propagates it when it succeeds.
func (d *Daemon) Execute(ctx context.Context, actor, command string, params ...string) (route.Result, error) {
    res, err := call(ctx, d, func() (route.Result, error) {
        cmd, ok := d.cmds.Lookup(command)
        if !ok { return route.Invalid, fmt.Errorf("%w: %s", ErrUnknownCommand, command) }
        d.origin = nil
        res := d.execute(cmd, actor, params)
        line := wire.Line{Source: actor, Command: cmd.Name(), Params: params}.String()
        d.engine.OnCommandCompleted(ctx, cmd, params, actor, res, line)
        return res, nil
    }, true)
    if err != nil { return route.Invalid, err }
    return res, nil
}

func (d *Daemon) execute(cmd route.Command, actor string, params []string) route.Result {
    h, ok := cmd.(route.Handler)
    if !ok { return route.Success }
    return h.Handle(actor, params)
}

// LinkUp registers a new direct peer, sends it our view of the network and
// announces it to the other peers.
func (d *Daemon) LinkUp(l transport.Link) { d.post(func() { d.linkUp(l) }) }

// Receive executes and propagates one line from a peer.
func (d *Daemon) Receive(l transport.Link, line string) { d.post(func() { d.receive(l, line) }) }

// LinkDown splits the peer behind l from the tree.
func (d *Daemon) LinkDown(l transport.Link, err error) { d.post(func() { d.linkDown(l, err) }) }

func (d *Daemon) receive(l transport.Link, text string) {
    peer, ok := d.reg.ByLink(l)
    if !ok { return }
    line, err := wire.Parse(text)
    if err != nil {
        logutil.Warnf(d.logger, "protocol violation from %s: %v", peer.Name, err)
        return
    }
    ctx, end := tracing.StartSpan(context.Background(), "daemon.receive", "command", line.Command, "peer", peer.Name)
    defer end()
    if !d.fromDirection(peer, line.Source) {
        logutil.Warnf(d.logger, "protocol violation from %s: fake direction for source %q in %s", peer.Name, line.Source, line.Command)
        return
    }
    cmd, ok := d.cmds.Lookup(line.Command)
    if !ok {
        logutil.Debugf(d.logger, "unknown command %s from %s dropped", line.Command, peer.Name)
        return
    }
    d.origin = peer
    res := d.execute(cmd, line.Source, line.Params)
    d.origin = nil
    if res != route.Success {
        logutil.Debugf(d.logger, "%s from %s not accepted: %s", line.Command, peer.Name, res)
        return
    }
    _, _ = d.engine.Route(ctx, peer, cmd, line.Params, line.Source)
}

// fromDirection reports whether source, a server id or user uuid, lives
// behind peer.
func (d *Daemon) fromDirection(peer *tree.ServerNode, source string) bool {
    if source == "" { return false }
    home, ok := d.reg.FindByID(source)
    if !ok {
        u, found := d.users.FindUUID(source)
        if !found { return false }
        if home, ok = d.reg.FindByID(u.Server); !ok { return false }
    }
    hop, ok := d.reg.NextHopToward(home)
    return ok && hop.ID == peer.ID
}

// Status returns a snapshot taken on the event loop.
func (d *Daemon) Status(ctx context.Context) (*Status, error) {
    return call(ctx, d, func() (*Status, error) { return d.status(), nil }, false)
}

func (d *Daemon) status() *Status {
    st := &Status{Healthy: d.running(), ServerID: d.opts.ServerID, Name: d.opts.Name, Tree: d.reg.Snapshot(), Commands: d.cmds.Names()}
    for _, p := range d.reg.DirectPeers(nil) { st.DirectPeers = append(st.DirectPeers, p.Name) }
    st.Users, st.Channels = d.users.Counts()
    st.Directory = d.users.Snapshot()
    if len(st.DirectPeers) == 0 { st.Warnings = append(st.Warnings, "no direct peers") }
    return st
}

// StatusJSON is Status encoded for the management endpoint.
func (d *Daemon) StatusJSON(ctx context.Context) ([]byte, error) {
    st, err := d.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

// FindServer looks a server up by id or name in the current tree.
func (d *Daemon) FindServer(ctx context.Context, nameOrID string) (tree.NodeView, bool) {
    view, err := call(ctx, d, func() (*tree.NodeView, error) {
        n, ok := d.reg.Find(nameOrID)
        if !ok { return nil, nil }
        for _, v := range d.reg.Snapshot().Nodes {
            if v.ID == n.ID { return &v, nil }
        }
        return nil, nil
    }, false)
    if err != nil || view == nil { return tree.NodeView{}, false }
    return *view, true
}

func (d *Daemon) updateGauges() {
    obsmetrics.Servers.Set(float64(d.reg.Len()))
    obsmetrics.DirectPeers.Set(float64(len(d.reg.DirectPeers(nil))))
}

var _ transport.LinkHandler = (*Daemon)(nil)
