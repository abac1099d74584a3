// Package cli provides cobra commands to run a server and inspect running
// ones through their management endpoint.
package cli

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/bootstrap"
    "github.com/amirimatin/go-spantree/pkg/config"
    "github.com/amirimatin/go-spantree/pkg/daemon"
    "github.com/amirimatin/go-spantree/pkg/observability/logging"
    "github.com/amirimatin/go-spantree/pkg/observability/tracing"
    "github.com/amirimatin/go-spantree/pkg/tree"
)

// AddAll attaches run/status/tree to root.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewTreeCmd())
}

// NewRunCmd returns the "run" command that starts one server. Flags override
// the configuration file and environment.
func NewRunCmd() *cobra.Command {
    var (
        cfgPath, id, name, desc, listen, connect, mgmtAddr, mgmtProto, level string
        trace                                                              bool
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a server and link it into the network",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := config.Load(cfgPath)
            if err != nil { return err }
            f := cmd.Flags()
            if f.Changed("id") { cfg.Server.ID = id }
            if f.Changed("name") { cfg.Server.Name = name }
            if f.Changed("description") { cfg.Server.Description = desc }
            if f.Changed("listen") { cfg.Link.Listen = listen }
            if f.Changed("connect") { cfg.Link.Connect, cfg.Link.Discovery = splitCSV(connect), "static" }
            if f.Changed("mgmt-addr") { cfg.Mgmt.Addr = mgmtAddr }
            if f.Changed("mgmt-proto") { cfg.Mgmt.Proto = mgmtProto }
            if f.Changed("log-level") { cfg.Log.Level = level }
            if f.Changed("trace") { cfg.Trace = trace }
            if err := cfg.Validate(); err != nil { return err }

            logger, err := logging.Setup(cfg.Log)
            if err != nil { return fmt.Errorf("logging: %w", err) }
            defer func() { _ = logger.Sync() }()

            ctx, cancel := signalContext()
            defer cancel()
            if cfg.Trace {
                shutdown, err := tracing.Setup(tracing.Options{Enable: true, Service: cfg.Server.Name})
                if err != nil {
                    logger.Warn("tracing setup failed", zap.Error(err))
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            d, err := bootstrap.Run(ctx, cfg, logger)
            if err != nil { return err }
            defer d.Close()
            logger.Info("server running", zap.String("id", cfg.Server.ID), zap.String("name", cfg.Server.Name), zap.String("links", d.LinkAddr()), zap.String("mgmt", d.MgmtAddr()))
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&cfgPath, "config", "", "path to spantree.yaml (default: search ., ./configs, ~/.spantree)")
    cmd.Flags().StringVar(&id, "id", "", "server id, a digit and two of [0-9A-Z]")
    cmd.Flags().StringVar(&name, "name", "", "server name announced to peers")
    cmd.Flags().StringVar(&desc, "description", "", "server description")
    cmd.Flags().StringVar(&listen, "listen", "", "link listen address (host:port)")
    cmd.Flags().StringVar(&connect, "connect", "", "comma-separated peers to link to (addr or name@addr)")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", "", "management HTTP address (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "", "management protocol: http|grpc (grpc is served on the link address)")
    cmd.Flags().StringVar(&level, "log-level", "", "debug|info|warn|error")
    cmd.Flags().BoolVar(&trace, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

type clientFlags struct {
    addr    string
    proto   string
    timeout time.Duration
    cfgPath string
}

func (c *clientFlags) register(cmd *cobra.Command) {
    cmd.Flags().StringVar(&c.addr, "addr", "127.0.0.1:6680", "management address of a server (host:port)")
    cmd.Flags().StringVar(&c.proto, "mgmt-proto", "http", "management protocol: http|grpc")
    cmd.Flags().DurationVar(&c.timeout, "timeout", 3*time.Second, "request timeout")
    cmd.Flags().StringVar(&c.cfgPath, "config", "", "read mgmt.tls settings from this config file")
}

func (c *clientFlags) fetch() ([]byte, error) {
    mgmt := config.MgmtConfig{Proto: strings.ToLower(c.proto)}
    if c.cfgPath != "" {
        cfg, err := config.Load(c.cfgPath)
        if err != nil { return nil, err }
        mgmt.TLS = cfg.Mgmt.TLS
    }
    client, err := bootstrap.NewStatusClient(mgmt, c.timeout)
    if err != nil { return nil, err }
    ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
    defer cancel()
    data, err := client.GetStatus(ctx, c.addr)
    if err != nil { return nil, fmt.Errorf("status error: %w", err) }
    return data, nil
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var cf clientFlags
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch a server's status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            data, err := cf.fetch()
            if err != nil { return err }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    cf.register(cmd)
    return cmd
}

// NewTreeCmd returns the "tree" command, which draws the spanning tree as
// seen from one server.
func NewTreeCmd() *cobra.Command {
    var cf clientFlags
    cmd := &cobra.Command{
        Use:   "tree",
        Short: "Show the server tree as seen from one server",
        RunE: func(cmd *cobra.Command, args []string) error {
            data, err := cf.fetch()
            if err != nil { return err }
            var st daemon.Status
            if err := json.Unmarshal(data, &st); err != nil { return fmt.Errorf("decode status: %w", err) }
            RenderTree(cmd.OutOrStdout(), st.Tree)
            return nil
        },
    }
    cf.register(cmd)
    return cmd
}

// RenderTree writes one line per server, indented by hop count.
func RenderTree(w io.Writer, s tree.Snapshot) {
    for _, n := range s.Nodes {
        indent := strings.Repeat("  ", n.Hops)
        mark := ""
        switch {
        case n.ID == s.Local:
            mark = " (local)"
        case n.Direct:
            mark = " (direct)"
        }
        fmt.Fprintf(w, "%s%s [%s]%s\n", indent, n.Name, n.ID, mark)
    }
}

func splitCSV(s string) []string {
    var out []string
    for _, v := range strings.Split(s, ",") {
        if v = strings.TrimSpace(v); v != "" { out = append(out, v) }
    }
    return out
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
