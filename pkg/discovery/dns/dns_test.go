package dns

import (
    "strings"
    "testing"
)

func TestParseSRVName(t *testing.T) {
    s, p, n := parseSRVName("_spantree._tcp.example.net")
    if s != "spantree" || p != "tcp" || n != "example.net" {
        t.Fatalf("parseSRVName failed: got (%q,%q,%q)", s, p, n)
    }
    for _, bad := range []string{"bad.srv", "spantree.tcp.example.net"} {
        if s, _, _ := parseSRVName(bad); s != "" { t.Fatalf("expected rejection of %q", bad) }
    }
}

func TestLiteralTargets(t *testing.T) {
    got := New(Options{Names: []string{"10.0.0.2:6667", " ", "10.0.0.1:6667"}}).Targets()
    if len(got) != 2 || got[0].Addr != "10.0.0.1:6667" || got[1].Addr != "10.0.0.2:6667" {
        t.Fatalf("unexpected targets: %#v", got)
    }
}

func TestLookupHostLocalhost(t *testing.T) {
    got := New(Options{Names: []string{"localhost"}, Port: 12345}).Targets()
    if len(got) == 0 { t.Fatalf("expected at least one resolved target") }
    for _, tg := range got {
        if !strings.HasSuffix(tg.Addr, ":12345") { t.Fatalf("missing port in %q", tg.Addr) }
    }
}
