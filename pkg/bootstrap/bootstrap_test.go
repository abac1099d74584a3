package bootstrap

import (
    "context"
    "encoding/json"
    "testing"
    "time"

    "go.uber.org/zap/zaptest"

    "github.com/amirimatin/go-spantree/pkg/config"
    "github.com/amirimatin/go-spantree/pkg/daemon"
    "github.com/amirimatin/go-spantree/pkg/transport/mem"
)

func memConfig(id, name string, connect ...string) *config.Config {
    c := config.Default()
    c.Server.ID, c.Server.Name = id, name
    c.Link.Transport = "mem"
    c.Link.Listen = name
    c.Link.Connect = connect
    c.Link.Retry = 20 * time.Millisecond
    c.Mgmt.Addr = "127.0.0.1:0"
    return c
}

func TestRun_MemPairWithHTTPStatus(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    net := mem.NewNetwork()
    hub, err := Run(ctx, memConfig("0AA", "hub.example.net"), zaptest.NewLogger(t), WithMemNetwork(net))
    if err != nil { t.Fatalf("run hub: %v", err) }
    defer hub.Close()
    leaf, err := Run(ctx, memConfig("0BB", "leaf.example.net", "hub.example.net"), zaptest.NewLogger(t), WithMemNetwork(net))
    if err != nil { t.Fatalf("run leaf: %v", err) }
    defer leaf.Close()

    st, _ := hub.Status(ctx)
    deadline := time.Now().Add(3 * time.Second)
    for len(st.DirectPeers) == 0 && time.Now().Before(deadline) {
        time.Sleep(10 * time.Millisecond)
        st, _ = hub.Status(ctx)
    }
    if len(st.DirectPeers) != 1 || st.DirectPeers[0] != "leaf.example.net" { t.Fatalf("hub peers %v", st.DirectPeers) }

    cl, err := NewStatusClient(config.MgmtConfig{Proto: "http"}, time.Second)
    if err != nil { t.Fatalf("client: %v", err) }
    raw, err := cl.GetStatus(ctx, hub.MgmtAddr())
    if err != nil { t.Fatalf("get status: %v", err) }
    var got daemon.Status
    if err := json.Unmarshal(raw, &got); err != nil { t.Fatalf("decode: %v", err) }
    if got.ServerID != "0AA" || len(got.Tree.Nodes) != 2 || !got.Healthy { t.Fatalf("status %+v", got) }
}

func TestBuild_Errors(t *testing.T) {
    if _, err := Build(nil, nil); err == nil { t.Fatalf("expected error for nil config") }
    c := memConfig("0AA", "a.example.net")
    c.Mgmt.Proto = "grpc"
    if _, err := Build(c, nil); err == nil { t.Fatalf("expected error for grpc mgmt over mem links") }
    c = memConfig("xyz", "a.example.net")
    if _, err := Build(c, nil); err == nil { t.Fatalf("expected invalid server id") }
}

func TestNewDiscovery(t *testing.T) {
    c := config.Default().Link
    c.Connect = []string{"hub@10.0.0.1:7000", "10.0.0.2:7000"}
    if got := NewDiscovery(c, nil).Targets(); len(got) != 2 || got[0].Name != "hub" { t.Fatalf("targets %v", got) }
}
