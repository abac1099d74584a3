package file

import (
    "bufio"
    "os"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-spantree/pkg/discovery"
)

// Options configures file/ENV-based discovery.
type Options struct {
    // Path to a links file: one "addr" or "name@addr" per line, '#' comments.
    Path string
    // Env overrides the file when non-empty (comma-separated targets).
    Env string
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []discovery.Target
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &impl{opts: opts}
}

func (i *impl) Targets() []discovery.Target {
    i.mu.Lock(); defer i.mu.Unlock()
    if i.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(i.opts.Env)); v != "" { return discovery.Sorted(discovery.ParseList(v)) }
    }
    if i.opts.Path == "" { return nil }
    stat, err := os.Stat(i.opts.Path)
    if err != nil { return append([]discovery.Target(nil), i.cache...) }
    now := time.Now()
    if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
        if ts, err := load(i.opts.Path); err == nil {
            i.cache = ts
            i.last = now
            i.mtime = stat.ModTime()
        }
    }
    return append([]discovery.Target(nil), i.cache...)
}

func load(path string) ([]discovery.Target, error) {
    f, err := os.Open(path)
    if err != nil { return nil, err }
    defer f.Close()
    var parts []string
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        parts = append(parts, line)
    }
    if err := s.Err(); err != nil { return nil, err }
    return discovery.Sorted(discovery.ParseList(strings.Join(parts, ","))), nil
}
