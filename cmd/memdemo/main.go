// Command memdemo links a chain of in-process servers over the mem transport
// and shows commands propagating along the tree.
package main

import (
    "context"
    "flag"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/cli"
    "github.com/amirimatin/go-spantree/pkg/daemon"
    "github.com/amirimatin/go-spantree/pkg/discovery/static"
    "github.com/amirimatin/go-spantree/pkg/observability/logging"
    "github.com/amirimatin/go-spantree/pkg/transport/mem"
)

func main() {
    var (
        count = flag.Int("servers", 3, "servers in the chain")
        level = flag.String("log-level", "warn", "debug|info|warn|error")
        stay  = flag.Bool("stay", false, "keep running until interrupted")
    )
    flag.Parse()
    if *count < 2 || *count > 10 { log.Fatal("-servers must be between 2 and 10") }

    logger, err := logging.Setup(logging.Config{Level: *level, Format: "console", Outputs: []string{"stderr"}})
    if err != nil { log.Fatal(err) }
    defer func() { _ = logger.Sync() }()

    ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer cancel()

    net := mem.NewNetwork()
    servers := make([]*daemon.Daemon, *count)
    for i := range servers {
        id := fmt.Sprintf("%dAA", i)
        name := fmt.Sprintf("s%d.demo.net", i)
        var peers []string
        if i > 0 { peers = append(peers, fmt.Sprintf("s%d.demo.net", i-1)) }
        d, err := daemon.New(daemon.Options{
            ServerID:  id,
            Name:      name,
            Links:     net.Listen(name),
            Discovery: static.New(peers...),
            OnMessage: func(m daemon.Message) {
                if m.Local { fmt.Printf("%s: <%s> %s %s :%s\n", name, m.Nick, m.Command, m.Target, m.Text) }
            },
            ConnectRetry: 50 * time.Millisecond,
            Logger:       logger,
        })
        if err != nil { log.Fatal(err) }
        if err := d.Start(ctx); err != nil { log.Fatal(err) }
        defer d.Close()
        servers[i] = d
    }
    first, last := servers[0], servers[len(servers)-1]
    waitForTree(ctx, first, *count, logger)

    must(first.Announce(ctx, "0AAAAAAAA", "alice"))
    must(last.Announce(ctx, last.ID()+"AAAAAA", "zoe"))
    exec(ctx, first, "0AAAAAAAA", "JOIN", "#demo")
    exec(ctx, last, last.ID()+"AAAAAA", "JOIN", "#demo", "30000")
    time.Sleep(100 * time.Millisecond)
    exec(ctx, first, "0AAAAAAAA", "PRIVMSG", "#demo", "hello from one end of the tree")
    exec(ctx, first, "0AAAAAAAA", "PRIVMSG", "zoe", "and directly to you")
    time.Sleep(100 * time.Millisecond)

    st, err := first.Status(ctx)
    if err == nil {
        fmt.Println("tree as seen from", st.Name)
        cli.RenderTree(os.Stdout, st.Tree)
    }
    if *stay { <-ctx.Done() }
}

func waitForTree(ctx context.Context, d *daemon.Daemon, n int, logger *zap.Logger) {
    for {
        seen := 0
        if st, err := d.Status(ctx); err == nil { seen = len(st.Tree.Nodes) }
        if seen == n { return }
        logger.Debug("waiting for links", zap.Int("servers", seen))
        select {
        case <-ctx.Done():
            return
        case <-time.After(20 * time.Millisecond):
        }
    }
}

func exec(ctx context.Context, d *daemon.Daemon, actor, command string, params ...string) {
    res, err := d.Execute(ctx, actor, command, params...)
    if err != nil { log.Fatal(err) }
    fmt.Printf("%s %v: %s\n", command, params, res)
}

func must(err error) {
    if err != nil { log.Fatal(err) }
}
