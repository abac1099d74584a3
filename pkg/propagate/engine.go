// Package propagate decides which direct peers receive a copy of a command
// that finished executing, and in what form.
//
// The engine is stateless between calls. It reads the server tree and the
// user directory but never mutates them, so callers must not change either
// while Route runs.
package propagate

import (
    "context"
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/delivery"
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/observability/tracing"
    "github.com/amirimatin/go-spantree/pkg/route"
    "github.com/amirimatin/go-spantree/pkg/translate"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

// ExemptFunc lists member UUIDs that must not receive a channel message sent
// by actor. The default exempts nobody.
type ExemptFunc func(actor string, ch membership.Channel, status byte) map[string]struct{}

// Options configures an Engine.
type Options struct {
    Registry *tree.Registry
    Sender   *delivery.Sender
    Users    membership.Lookup
    // Module is the engine's own module; its commands are always routable.
    Module  *route.Module
    Exempts ExemptFunc
    Logger  *zap.Logger
}

func (o Options) Validate() error {
    if o.Registry == nil { return fmt.Errorf("propagate: registry is required") }
    if o.Sender == nil { return fmt.Errorf("propagate: sender is required") }
    if o.Users == nil { return fmt.Errorf("propagate: user lookup is required") }
    return nil
}

// Engine routes completed commands through the server tree.
type Engine struct {
    reg     *tree.Registry
    send    *delivery.Sender
    users   membership.Lookup
    module  *route.Module
    exempts ExemptFunc
    logger  *zap.Logger
}

func New(o Options) (*Engine, error) {
    if err := o.Validate(); err != nil { return nil, err }
    e := &Engine{reg: o.Registry, send: o.Sender, users: o.Users, module: o.Module, exempts: o.Exempts, logger: o.Logger}
    if e.logger == nil { e.logger = zap.NewNop() }
    if e.exempts == nil { e.exempts = func(string, membership.Channel, byte) map[string]struct{} { return nil } }
    return e, nil
}

// OnCommandCompleted propagates cmd when it executed successfully. Routing
// failures are logged and counted but never reported to the caller.
func (e *Engine) OnCommandCompleted(ctx context.Context, cmd route.Command, params []string, actor string, result route.Result, line string) {
    if result != route.Success { return }
    if _, err := e.Route(ctx, nil, cmd, params, actor); err != nil {
        e.logger.Debug("command not propagated", zap.String("line", line), zap.Error(err))
    }
}

// Route sends cmd to the peers its routing descriptor selects. origin is the
// peer the command arrived from, or nil when it was caused locally. It returns
// the number of link writes and, when propagation was abandoned, the reason.
func (e *Engine) Route(ctx context.Context, origin *tree.ServerNode, cmd route.Command, params []string, actor string) (int, error) {
    if cmd == nil { return 0, ErrNilCommand }
    name := cmd.Name()
    d := cmd.Routing(actor, params)
    _, end := tracing.StartSpan(ctx, "propagate.Route", "command", name, "class", d.Class.String())
    defer end()
    metrics.RouteDecisions.WithLabelValues(d.Class.String()).Inc()

    n, err := e.route(origin, cmd, name, d, params, actor)
    if err != nil { metrics.RouteDropped.WithLabelValues(reason(err)).Inc() }
    return n, err
}

func (e *Engine) route(origin *tree.ServerNode, cmd route.Command, name string, d route.Descriptor, params []string, actor string) (int, error) {
    var (
        target    *tree.ServerNode
        encapDest string
    )
    switch d.Class {
    case route.ClassLocalOnly:
        return 0, nil
    case route.ClassOptionalBroadcast:
        encapDest = wire.Wildcard
    case route.ClassOptionalUnicast:
        t, err := e.resolve(name, d.Target)
        if err != nil { return 0, err }
        target, encapDest = t, t.ID
    default:
        if m := cmd.Creator(); !m.NetworkSafe() && (e.module == nil || m != e.module) {
            e.logger.Warn("routed command from module without network flags",
                zap.String("command", name), zap.String("module", m.String()))
            return 0, fmt.Errorf("%w: %s from %s", ErrUnsafeModule, name, m)
        }
    }

    enc, _ := cmd.(translate.ParameterEncoder)
    out := translate.Translate(params, cmd.Translation(), translate.ToStable, e.users, enc)
    line := wire.Line{Source: actor, Command: name, Params: out}
    if encapDest != "" { line = wire.Encap(actor, encapDest, line) }
    if err := line.Validate(); err != nil {
        e.logger.Warn("refusing to route unencodable command", zap.String("command", name), zap.Error(err))
        return 0, fmt.Errorf("%w: %v", ErrUnencodable, err)
    }

    switch d.Class {
    case route.ClassMessage:
        return e.message(origin, name, d.Target, line, out, actor)
    case route.ClassBroadcast, route.ClassOptionalBroadcast:
        return e.send.SendToAllButSender(line, origin), nil
    }

    // unicast classes
    if target == nil {
        t, err := e.resolve(name, d.Target)
        if err != nil { return 0, err }
        target = t
    }
    if origin != nil && target.ID == origin.ID {
        return 0, fmt.Errorf("%w: %s already came from %s", ErrCircularRoute, name, origin.Name)
    }
    if target.Local() { return 0, nil }
    return e.one(line, target)
}

// resolve finds a unicast target by name or id.
func (e *Engine) resolve(command, dest string) (*tree.ServerNode, error) {
    t, ok := e.reg.Find(dest)
    if !ok {
        e.logger.Warn("route to nonexistent server", zap.String("command", command), zap.String("target", dest))
        return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, dest)
    }
    return t, nil
}

func (e *Engine) message(origin *tree.ServerNode, name, dest string, line wire.Line, out []string, actor string) (int, error) {
    var status byte
    if dest != "" {
        if _, ok := e.users.PrefixRank(dest[0]); ok {
            status, dest = dest[0], dest[1:]
        }
    }
    switch {
    case dest == "":
        return 0, ErrUnknownDestination
    case membership.IsChannel(dest):
        ch, ok := e.users.FindChannel(dest)
        if !ok { return 0, fmt.Errorf("%w: %s", ErrUnknownDestination, dest) }
        var rest []string
        if len(out) > 1 { rest = out[1:] }
        return e.send.SendToChannel(actor, name, ch, status, rest, e.exempts(actor, ch, status), origin), nil
    case membership.IsServerMask(dest):
        return e.send.SendToAllButSender(line, origin), nil
    }
    u, ok := e.users.FindNick(dest)
    if !ok { return 0, fmt.Errorf("%w: %s", ErrUnknownDestination, dest) }
    home, ok := e.reg.FindByID(u.Server)
    if !ok { return 0, fmt.Errorf("%w: server %s of %s", ErrUnknownDestination, u.Server, dest) }
    if home.Local() { return 0, nil }
    if hop, ok := e.reg.NextHopToward(home); ok && origin != nil && hop.ID == origin.ID {
        return 0, fmt.Errorf("%w: %s for %s", ErrCircularRoute, name, dest)
    }
    return e.one(line, home)
}

func (e *Engine) one(line wire.Line, target *tree.ServerNode) (int, error) {
    if err := e.send.SendToOne(line, target); err != nil {
        if errors.Is(err, delivery.ErrNoRoute) { return 0, fmt.Errorf("%w: %v", ErrUnknownTarget, err) }
        return 0, err
    }
    return 1, nil
}
