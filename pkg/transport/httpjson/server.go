package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
    "github.com/amirimatin/go-spantree/pkg/observability/tracing"
    "github.com/amirimatin/go-spantree/pkg/transport"
)

// Server is a minimal HTTP server exposing the management endpoints: the
// status document, a liveness probe and Prometheus metrics.
type Server struct {
    bind   string
    mu     sync.Mutex
    srv    *http.Server
    addr   string
    tls    *tls.Config
    logger *zap.Logger
}

// NewServer binds to the given TCP address (e.g., ":6680").
func NewServer(bind string, logger *zap.Logger) *Server {
    return &Server{bind: bind, logger: logutil.Named(logger, "mgmt")}
}

// UseTLS serves HTTPS with cfg. Call before Start.
func (s *Server) UseTLS(cfg *tls.Config) { s.tls = cfg }

// Handler returns the management mux backed by status.
func Handler(status transport.StatusFunc) http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        ctx, end := tracing.StartSpan(r.Context(), "http.status")
        defer end()
        data, err := status(ctx)
        if err != nil { http.Error(w, fmt.Sprintf("status error: %v", err), http.StatusInternalServerError); return }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write(data)
    })
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.Handle("/metrics", promhttp.Handler())
    return mux
}

// Start launches the HTTP server. It is shut down when ctx is canceled.
func (s *Server) Start(ctx context.Context, status transport.StatusFunc) error {
    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    if s.tls != nil { ln = tls.NewListener(ln, s.tls) }
    srv := &http.Server{Handler: Handler(status), ReadHeaderTimeout: 5 * time.Second}
    s.mu.Lock()
    s.srv, s.addr = srv, ln.Addr().String()
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
            logutil.Errorf(s.logger, "httpjson: server error: %v", err)
        }
    }()
    return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.addr != "" { return s.addr }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    s.mu.Unlock()
    if srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return srv.Shutdown(c)
}

var _ transport.RPCServer = (*Server)(nil)
