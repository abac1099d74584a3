package static

import (
    "github.com/amirimatin/go-spantree/pkg/discovery"
)

type staticTargets struct {
    targets []discovery.Target
}

func (s *staticTargets) Targets() []discovery.Target { return append([]discovery.Target(nil), s.targets...) }

// New returns a Discovery with a fixed list of "addr" or "name@addr" targets.
func New(targets ...string) discovery.Discovery {
    out := make([]discovery.Target, 0, len(targets))
    for _, v := range targets {
        if t, ok := discovery.ParseTarget(v); ok { out = append(out, t) }
    }
    return &staticTargets{targets: out}
}

// FromCSV is New over a comma-separated list.
func FromCSV(csv string) discovery.Discovery {
    return &staticTargets{targets: discovery.ParseList(csv)}
}
