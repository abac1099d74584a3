package grpc

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"
    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/observability/tracing"
    "github.com/amirimatin/go-spantree/pkg/transport"
)

var ErrHandshake = errors.New("grpc: link handshake failed")

// frame is one message on a link stream: the first frame in each direction
// carries Hello, every later one carries a single command line.
type frame struct {
    Hello *transport.Hello `json:"hello,omitempty"`
    Line  string           `json:"line,omitempty"`
}

type empty struct{}
type statusBlob struct{ Data []byte `json:"data"` }

// Transport implements transport.LinkTransport over a bidirectional gRPC
// stream per link, and optionally the management status call.
type Transport struct {
    bind      string
    queueSize int
    dialWait  time.Duration
    logger    *zap.Logger
    status    transport.StatusFunc

    mu      sync.Mutex
    lis     net.Listener
    srv     *grpc.Server
    local   transport.Hello
    handler transport.LinkHandler
    links   map[*transport.Outbox]func()
}

// NewTransport listens on bind once started (e.g. ":6667").
func NewTransport(bind string, logger *zap.Logger) *Transport {
    return &Transport{bind: bind, dialWait: 5 * time.Second, logger: logutil.Named(logger, "grpc"), links: make(map[*transport.Outbox]func())}
}

// WithQueueSize sets the per-link outbound buffer.
func (t *Transport) WithQueueSize(n int) *Transport { t.queueSize = n; return t }

// WithStatus serves fn as spantree.v1.Management/GetStatus.
func (t *Transport) WithStatus(fn transport.StatusFunc) *Transport { t.status = fn; return t }

// linkServer is the stream service every daemon exposes to its peers.
type linkServer interface {
    Stream(grpc.ServerStream) error
}

type managementServer interface {
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
}

type linkImpl struct{ t *Transport }

func (l *linkImpl) Stream(ss grpc.ServerStream) error {
    var hello frame
    if err := ss.RecvMsg(&hello); err != nil { return err }
    if hello.Hello == nil || hello.Hello.ID == "" { return fmt.Errorf("%w: missing hello", ErrHandshake) }
    l.t.mu.Lock()
    local := l.t.local
    l.t.mu.Unlock()
    if err := ss.SendMsg(&frame{Hello: &local}); err != nil { return err }
    ob := l.t.attach(*hello.Hello, ss, func() {})
    <-ob.Done()
    return nil
}

type mgmtImpl struct{ status transport.StatusFunc }

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    if m.status == nil { return nil, fmt.Errorf("status not served") }
    b, err := m.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

// Service descriptors (hand-written, no codegen required)
var _Link_serviceDesc = grpc.ServiceDesc{
    ServiceName: "spantree.v1.Link",
    HandlerType: (*linkServer)(nil),
    Streams: []grpc.StreamDesc{{
        StreamName:    "Stream",
        ServerStreams: true,
        ClientStreams: true,
        Handler:       _Link_Stream_Handler,
    }},
}

func _Link_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
    return srv.(linkServer).Stream(stream)
}

var _Management_serviceDesc = grpc.ServiceDesc{
    ServiceName: "spantree.v1.Management",
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        { MethodName: "GetStatus", Handler: _Management_GetStatus_Handler },
    },
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/spantree.v1.Management/GetStatus"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

// Start begins accepting peer links. Links are reported to h.
func (t *Transport) Start(ctx context.Context, local transport.Hello, h transport.LinkHandler) error {
    if h == nil { return fmt.Errorf("grpc: link handler is required") }
    lis, err := net.Listen("tcp", t.bind)
    if err != nil { return err }
    // Force JSON codec to avoid requiring protobuf types
    opts := []grpc.ServerOption{
        grpc.ForceServerCodec(jsonCodec{}),
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    }
    srv := grpc.NewServer(opts...)
    healthpb.RegisterHealthServer(srv, health.NewServer())
    srv.RegisterService(&_Link_serviceDesc, &linkImpl{t: t})
    srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: t.status})

    t.mu.Lock()
    t.lis, t.srv, t.local, t.handler = lis, srv, local, h
    t.mu.Unlock()

    go func() {
        <-ctx.Done()
        _ = t.Stop(context.Background())
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func dialOptions() []grpc.DialOption {
    return []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithTransportCredentials(insecure.NewCredentials()),
        grpc.WithBlock(),
    }
}

// Connect dials a peer, exchanges hellos and reports the link to the handler.
func (t *Transport) Connect(ctx context.Context, addr string) error {
    t.mu.Lock()
    local, started := t.local, t.handler != nil
    t.mu.Unlock()
    if !started { return fmt.Errorf("grpc: transport not started") }

    dctx, cancel := context.WithTimeout(ctx, t.dialWait)
    defer cancel()
    cc, err := grpc.DialContext(dctx, addr, dialOptions()...)
    if err != nil {
        obsmetrics.LinkDials.WithLabelValues("error").Inc()
        return fmt.Errorf("grpc: dial %s: %w", addr, err)
    }
    sctx, stop := context.WithCancel(context.Background())
    release := func() { stop(); _ = cc.Close() }
    cs, err := cc.NewStream(sctx, &grpc.StreamDesc{ServerStreams: true, ClientStreams: true}, "/spantree.v1.Link/Stream")
    if err != nil { release(); obsmetrics.LinkDials.WithLabelValues("error").Inc(); return err }
    if err := cs.SendMsg(&frame{Hello: &local}); err != nil { release(); return fmt.Errorf("%w: %v", ErrHandshake, err) }
    var reply frame
    if err := cs.RecvMsg(&reply); err != nil { release(); return fmt.Errorf("%w: %v", ErrHandshake, err) }
    if reply.Hello == nil || reply.Hello.ID == "" { release(); return fmt.Errorf("%w: missing hello from %s", ErrHandshake, addr) }
    obsmetrics.LinkDials.WithLabelValues("ok").Inc()
    t.attach(*reply.Hello, cs, release)
    return nil
}

// stream is the part of grpc.ServerStream and grpc.ClientStream a link uses.
type stream interface {
    SendMsg(m any) error
    RecvMsg(m any) error
}

func (t *Transport) attach(remote transport.Hello, s stream, release func()) *transport.Outbox {
    ob := transport.NewOutbox(remote, t.queueSize, func(line string) error { return s.SendMsg(&frame{Line: line}) })
    t.mu.Lock()
    h := t.handler
    t.links[ob] = release
    t.mu.Unlock()
    obsmetrics.LinksActive.Inc()
    ob.OnClose(func(err error) {
        t.mu.Lock()
        delete(t.links, ob)
        t.mu.Unlock()
        obsmetrics.LinksActive.Dec()
        release()
        h.LinkDown(ob, err)
    })
    h.LinkUp(ob)
    ob.Start()
    go func() {
        for {
            var f frame
            if err := s.RecvMsg(&f); err != nil {
                ob.Fail(err)
                return
            }
            if f.Line != "" { h.Receive(ob, f.Line) }
        }
    }()
    return ob
}

// Addr returns the bound listener address once started.
func (t *Transport) Addr() string {
    t.mu.Lock(); defer t.mu.Unlock()
    if t.lis != nil { return t.lis.Addr().String() }
    return t.bind
}

// Stop closes every link and shuts the server down.
func (t *Transport) Stop(ctx context.Context) error {
    t.mu.Lock()
    srv, lis := t.srv, t.lis
    t.srv, t.lis = nil, nil
    links := make([]*transport.Outbox, 0, len(t.links))
    for ob := range t.links { links = append(links, ob) }
    t.mu.Unlock()
    for _, ob := range links { _ = ob.Close() }
    if srv == nil { return nil }
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    case <-time.After(2 * time.Second):
        srv.Stop()
    }
    if lis != nil { _ = lis.Close() }
    return nil
}

var _ transport.LinkTransport = (*Transport)(nil)
