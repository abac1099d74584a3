package file

import (
    "os"
    "path/filepath"
    "testing"
    "time"
)

func TestEnvOverridesFile(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "links.txt")
    if err := os.WriteFile(f, []byte("a:1\n"), 0o644); err != nil { t.Fatal(err) }

    const envName = "TEST_SPANTREE_LINKS"
    t.Setenv(envName, "y:8,hub@x:9")

    got := New(Options{Path: f, Env: envName}).Targets()
    if len(got) != 2 || got[0].Addr != "x:9" || got[0].Name != "hub" || got[1].Addr != "y:8" {
        t.Fatalf("env override failed, got %#v", got)
    }
}

func TestFileReadAndRefresh(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "links.txt")
    if err := os.WriteFile(f, []byte("# peers\nb:2\nleaf@a:1, b:2\n"), 0o644); err != nil { t.Fatal(err) }

    d := New(Options{Path: f, Refresh: 10 * time.Millisecond})
    got := d.Targets()
    if len(got) != 2 || got[0].Addr != "a:1" || got[0].Name != "leaf" || got[1].Addr != "b:2" {
        t.Fatalf("unexpected targets: %#v", got)
    }

    if err := os.WriteFile(f, []byte("c:3\n"), 0o644); err != nil { t.Fatal(err) }
    later := time.Now().Add(time.Second)
    _ = os.Chtimes(f, later, later)
    got = d.Targets()
    if len(got) != 1 || got[0].Addr != "c:3" { t.Fatalf("refresh failed: %#v", got) }
}

func TestMissingFileKeepsCache(t *testing.T) {
    if got := New(Options{Path: filepath.Join(t.TempDir(), "none")}).Targets(); len(got) != 0 { t.Fatalf("got %#v", got) }
}
