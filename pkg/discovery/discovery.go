// Package discovery supplies the peers a daemon links to at start.
package discovery

import (
    "sort"
    "strings"
)

// Target is a peer to link to. Name, when known, is the server name the peer
// is expected to present; the daemon skips targets already in its tree.
type Target struct {
    Name string `json:"name,omitempty"`
    Addr string `json:"addr"`
}

func (t Target) String() string {
    if t.Name == "" { return t.Addr }
    return t.Name + "@" + t.Addr
}

// ParseTarget accepts "addr" or "name@addr".
func ParseTarget(s string) (Target, bool) {
    s = strings.TrimSpace(s)
    if s == "" { return Target{}, false }
    if i := strings.LastIndexByte(s, '@'); i >= 0 {
        name, addr := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
        if addr == "" { return Target{}, false }
        return Target{Name: name, Addr: addr}, true
    }
    return Target{Addr: s}, true
}

// ParseList splits a comma-separated list of targets, dropping blanks and
// duplicate addresses. Order is preserved.
func ParseList(csv string) []Target {
    var out []Target
    seen := make(map[string]struct{})
    for _, p := range strings.Split(csv, ",") {
        t, ok := ParseTarget(p)
        if !ok { continue }
        if _, dup := seen[t.Addr]; dup { continue }
        seen[t.Addr] = struct{}{}
        out = append(out, t)
    }
    return out
}

// Sorted returns ts ordered by address.
func Sorted(ts []Target) []Target {
    out := append([]Target(nil), ts...)
    sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
    return out
}

// Discovery abstracts how link targets are provided.
type Discovery interface {
    Targets() []Target
}
