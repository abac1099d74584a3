// Package dns resolves link targets from SRV records (e.g.
// "_spantree._tcp.example.net") or plain hostnames.
package dns

import (
    "context"
    "net"
    "strconv"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/discovery"
    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
)

// Options configures DNS-based discovery.
type Options struct {
    // Names are SRV records, hostnames or literal host:port targets.
    Names []string
    // Port used for A/AAAA answers, which carry no port.
    Port int
    // Refresh controls cache staleness; if zero, defaults to 30s.
    Refresh  time.Duration
    Resolver *net.Resolver
    Logger   *zap.Logger
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []discovery.Target
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 30 * time.Second }
    if opts.Port == 0 { opts.Port = 6667 }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    return &impl{opts: opts}
}

func (d *impl) Targets() []discovery.Target {
    d.mu.Lock(); defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]discovery.Target(nil), d.cache...)
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    d.cache = d.resolveAll(ctx)
    d.last = time.Now()
    return append([]discovery.Target(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []discovery.Target {
    var addrs []string
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        switch {
        case name == "":
        case strings.HasPrefix(name, "_") && strings.Contains(name, "._"):
            addrs = append(addrs, d.lookupSRV(ctx, name)...)
        case strings.Contains(name, ":"):
            addrs = append(addrs, name)
        default:
            addrs = append(addrs, d.lookupHost(ctx, name)...)
        }
    }
    return discovery.Sorted(discovery.ParseList(strings.Join(addrs, ",")))
}

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []string {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" { return nil }
    _, recs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, domain)
    if err != nil {
        logutil.Debugf(d.opts.Logger, "dns: srv lookup %s: %v", fqdn, err)
        return nil
    }
    out := make([]string, 0, len(recs))
    for _, r := range recs {
        out = append(out, net.JoinHostPort(strings.TrimSuffix(r.Target, "."), strconv.Itoa(int(r.Port))))
    }
    return out
}

func (d *impl) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.opts.Resolver.LookupHost(ctx, host)
    if err != nil {
        logutil.Debugf(d.opts.Logger, "dns: host lookup %s: %v", host, err)
        return nil
    }
    out := make([]string, 0, len(ips))
    for _, ip := range ips { out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port))) }
    return out
}

// parseSRVName splits "_service._proto.domain".
func parseSRVName(fqdn string) (service, proto, domain string) {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 || !strings.HasPrefix(parts[0], "_") || !strings.HasPrefix(parts[1], "_") { return "", "", "" }
    return parts[0][1:], parts[1][1:], parts[2]
}
