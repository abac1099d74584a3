package cli

import (
    "bytes"
    "testing"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-spantree/pkg/internal/testlink"
    "github.com/amirimatin/go-spantree/pkg/tree"
)

func TestRenderTree(t *testing.T) {
    reg := tree.New("0AA", "hub.example.net", "")
    _, _ = reg.AddDirect("0BB", "leaf.example.net", "", testlink.New("0BB", "leaf.example.net"))
    _, _ = reg.AddIndirect("0BB", "0CC", "far.example.net", "")
    var buf bytes.Buffer
    RenderTree(&buf, reg.Snapshot())
    want := "hub.example.net [0AA] (local)\n  leaf.example.net [0BB] (direct)\n    far.example.net [0CC]\n"
    if buf.String() != want { t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want) }
}

func TestAddAll(t *testing.T) {
    root := &cobra.Command{Use: "spantreectl"}
    AddAll(root)
    for _, name := range []string{"run", "status", "tree"} {
        if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name { t.Fatalf("missing %s: %v", name, err) }
    }
}

func TestSplitCSV(t *testing.T) {
    got := splitCSV(" a:1, ,b@c:2 ")
    if len(got) != 2 || got[0] != "a:1" || got[1] != "b@c:2" { t.Fatalf("got %q", got) }
}
