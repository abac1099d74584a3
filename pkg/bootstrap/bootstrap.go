// Package bootstrap assembles a daemon from configuration so applications and
// the CLI share one wiring of transports, discovery and the management API.
package bootstrap

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/config"
    "github.com/amirimatin/go-spantree/pkg/daemon"
    "github.com/amirimatin/go-spantree/pkg/discovery"
    dDNS "github.com/amirimatin/go-spantree/pkg/discovery/dns"
    dFile "github.com/amirimatin/go-spantree/pkg/discovery/file"
    dStatic "github.com/amirimatin/go-spantree/pkg/discovery/static"
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/propagate"
    "github.com/amirimatin/go-spantree/pkg/transport"
    linkgrpc "github.com/amirimatin/go-spantree/pkg/transport/grpc"
    "github.com/amirimatin/go-spantree/pkg/transport/httpjson"
    "github.com/amirimatin/go-spantree/pkg/transport/mem"
)

// processNetwork carries mem links between daemons of one process.
var processNetwork = mem.NewNetwork()

type settings struct {
    net   *mem.Network
    apply []func(*daemon.Options)
}

// Option adjusts how Build assembles the daemon.
type Option func(*settings)

// WithMemNetwork places mem links on n instead of the process-wide network.
// It only matters with link.transport=mem.
func WithMemNetwork(n *mem.Network) Option { return func(s *settings) { s.net = n } }

// WithUsers shares a user directory with the embedding application.
func WithUsers(d *membership.Directory) Option {
    return func(s *settings) { s.apply = append(s.apply, func(o *daemon.Options) { o.Users = d }) }
}

// WithOnMessage receives every accepted PRIVMSG and NOTICE.
func WithOnMessage(fn func(daemon.Message)) Option {
    return func(s *settings) { s.apply = append(s.apply, func(o *daemon.Options) { o.OnMessage = fn }) }
}

// WithExempts filters channel message recipients.
func WithExempts(fn propagate.ExemptFunc) Option {
    return func(s *settings) { s.apply = append(s.apply, func(o *daemon.Options) { o.Exempts = fn }) }
}

// Build derives daemon options from cfg and constructs the daemon without
// starting it.
func Build(cfg *config.Config, logger *zap.Logger, opts ...Option) (*daemon.Daemon, error) {
    if cfg == nil { return nil, errors.New("bootstrap: nil config") }
    if err := cfg.Validate(); err != nil { return nil, err }
    if logger == nil { logger = zap.L() }
    set := settings{net: processNetwork}
    for _, opt := range opts { opt(&set) }

    var (
        d      *daemon.Daemon
        links  transport.LinkTransport
        server transport.RPCServer
    )
    status := func(ctx context.Context) ([]byte, error) { return d.StatusJSON(ctx) }

    switch cfg.Link.Transport {
    case "mem":
        if cfg.Mgmt.Proto == "grpc" { return nil, errors.New("bootstrap: mgmt.proto=grpc needs link.transport=grpc") }
        links = set.net.Listen(cfg.Link.Listen)
    default:
        t := linkgrpc.NewTransport(cfg.Link.Listen, logger).WithQueueSize(cfg.Link.QueueSize)
        // the gRPC management service shares the link listener
        if cfg.Mgmt.Proto == "grpc" { t.WithStatus(status) }
        links = t
    }

    if cfg.Mgmt.Proto == "http" && cfg.Mgmt.Addr != "" {
        s := httpjson.NewServer(cfg.Mgmt.Addr, logger)
        tlsCfg, err := cfg.Mgmt.TLS.Server()
        if err != nil { return nil, err }
        if tlsCfg != nil { s.UseTLS(tlsCfg) }
        server = s
    }

    o := daemon.Options{
        ServerID:     cfg.Server.ID,
        Name:         cfg.Server.Name,
        Description:  cfg.Server.Description,
        Links:        links,
        Discovery:    NewDiscovery(cfg.Link, logger),
        RPCServer:    server,
        ConnectRetry: cfg.Link.Retry,
        QueueSize:    cfg.Link.QueueSize,
        Logger:       logger,
    }
    for _, fn := range set.apply { fn(&o) }
    var err error
    d, err = daemon.New(o)
    if err != nil { return nil, err }
    return d, nil
}

// NewDiscovery selects the discovery backend named by c.Discovery.
func NewDiscovery(c config.LinkConfig, logger *zap.Logger) discovery.Discovery {
    switch c.Discovery {
    case "dns":
        return dDNS.New(dDNS.Options{Names: c.DNS, Port: c.DNSPort, Refresh: c.Refresh, Logger: logger})
    case "file":
        return dFile.New(dFile.Options{Path: c.File, Env: c.FileEnv, Refresh: c.Refresh})
    default:
        return dStatic.New(c.Connect...)
    }
}

// NewStatusClient returns the management client matching c.
func NewStatusClient(c config.MgmtConfig, timeout time.Duration) (transport.RPCClient, error) {
    if c.Proto == "grpc" { return linkgrpc.NewStatusClient(timeout), nil }
    cl := httpjson.NewClient(timeout)
    tlsCfg, err := c.TLS.Client()
    if err != nil { return nil, err }
    cl.UseTLS(tlsCfg)
    return cl, nil
}

// Run builds and starts the daemon. The caller is responsible for calling
// Close when finished.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*daemon.Daemon, error) {
    d, err := Build(cfg, logger, opts...)
    if err != nil { return nil, err }
    if err := d.Start(ctx); err != nil {
        _ = d.Close()
        return nil, err
    }
    return d, nil
}
