package propagate

import (
    "context"
    "errors"
    "reflect"
    "testing"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "github.com/amirimatin/go-spantree/pkg/delivery"
    "github.com/amirimatin/go-spantree/pkg/internal/testlink"
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/route"
    "github.com/amirimatin/go-spantree/pkg/translate"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

var (
    core   = &route.Module{Name: "core", Flags: route.FlagCore}
    common = &route.Module{Name: "m_common", Flags: route.FlagCommon}
    custom = &route.Module{Name: "m_custom"}
)

// A(local) - B - C
type harness struct {
    reg   *tree.Registry
    b, c  *tree.ServerNode
    lb    *testlink.Link
    users *membership.Directory
    eng   *Engine
    logs  *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
    t.Helper()
    h := &harness{reg: tree.New("0AA", "a.example.net", ""), lb: testlink.New("0BB", "b.example.net"), users: membership.NewDirectory()}
    var err error
    if h.b, err = h.reg.AddDirect("0BB", "b.example.net", "", h.lb); err != nil { t.Fatalf("add B: %v", err) }
    if h.c, err = h.reg.AddIndirect("0BB", "0CC", "c.example.net", ""); err != nil { t.Fatalf("add C: %v", err) }
    for _, u := range []membership.User{
        {UUID: "0AAAAAAAA", Nick: "alice", Server: "0AA"},
        {UUID: "0CCAAAAAA", Nick: "carol", Server: "0CC"},
    } {
        if err := h.users.AddUser(u); err != nil { t.Fatalf("add user: %v", err) }
    }
    obs, logs := observer.New(zapcore.DebugLevel)
    h.logs = logs
    logger := zap.New(obs)
    h.eng, err = New(Options{
        Registry: h.reg,
        Sender:   delivery.New(h.reg, h.users, logger),
        Users:    h.users,
        Module:   core,
        Logger:   logger,
    })
    if err != nil { t.Fatalf("new engine: %v", err) }
    return h
}

func cmd(verb string, mod *route.Module, d route.Descriptor, rules ...translate.Rule) *route.Definition {
    return &route.Definition{Verb: verb, Module: mod, Rules: rules, Route: func(string, []string) route.Descriptor { return d }}
}

func TestNew_Validate(t *testing.T) {
    if _, err := New(Options{}); err == nil { t.Fatalf("expected validation error") }
}

func TestRoute_LocalOnlyWritesNothing(t *testing.T) {
    h := newHarness(t)
    for _, origin := range []*tree.ServerNode{nil, h.b} {
        n, err := h.eng.Route(context.Background(), origin, cmd("MODE", core, route.LocalOnly()), []string{"alice", "+i"}, "0AAAAAAAA")
        if err != nil || n != 0 { t.Fatalf("n=%d err=%v", n, err) }
    }
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("unexpected writes %v", got) }
}

func TestRoute_BroadcastNoOrigin(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("AWAY", core, route.Broadcast()), []string{"lunch"}, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); len(got) != 1 || got[0] != ":0AAAAAAAA AWAY lunch" { t.Fatalf("B got %v", got) }
}

func TestRoute_BroadcastFromOnlyPeer(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), h.b, cmd("AWAY", core, route.Broadcast()), []string{"lunch"}, "0CCAAAAAA")
    if err != nil || n != 0 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("echoed to origin: %v", got) }
}

func TestRoute_BroadcastEveryPeerButOrigin(t *testing.T) {
    h := newHarness(t)
    ld := testlink.New("0DD", "d.example.net")
    le := testlink.New("0EE", "e.example.net")
    d, _ := h.reg.AddDirect("0DD", "d.example.net", "", ld)
    if _, err := h.reg.AddDirect("0EE", "e.example.net", "", le); err != nil { t.Fatalf("add E: %v", err) }
    n, err := h.eng.Route(context.Background(), d, cmd("AWAY", core, route.Broadcast()), nil, "0DDAAAAAA")
    if err != nil || n != 2 { t.Fatalf("n=%d err=%v", n, err) }
    if len(h.lb.Lines()) != 1 || len(le.Lines()) != 1 || len(ld.Lines()) != 0 {
        t.Fatalf("B=%v D=%v E=%v", h.lb.Lines(), ld.Lines(), le.Lines())
    }
}

func TestRoute_UnicastToIndirect(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("SVSNICK", core, route.Unicast("c.example.net")), []string{"carol", "carl"}, "0AA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); len(got) != 1 || got[0] != ":0AA SVSNICK carol carl" { t.Fatalf("B got %v", got) }
}

func TestRoute_UnicastBackToOrigin(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), h.b, cmd("PONG", core, route.Unicast("b.example.net")), []string{"x"}, "0BB")
    if n != 0 || !errors.Is(err, ErrCircularRoute) { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("echoed: %v", got) }
}

func TestRoute_UnicastToLocal(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), h.b, cmd("PING", core, route.Unicast("0AA")), nil, "0BB")
    if err != nil || n != 0 { t.Fatalf("n=%d err=%v", n, err) }
}

func TestRoute_UnknownTargets(t *testing.T) {
    h := newHarness(t)
    for _, d := range []route.Descriptor{route.OptionalUnicast("d.example.net"), route.Unicast("0DD")} {
        h.logs.TakeAll()
        n, err := h.eng.Route(context.Background(), nil, cmd("METADATA", common, d), []string{"x"}, "0AAAAAAAA")
        if n != 0 || !errors.Is(err, ErrUnknownTarget) { t.Fatalf("%v: n=%d err=%v", d, n, err) }
        warns := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
        if len(warns) != 1 || warns[0].ContextMap()["target"] == nil { t.Fatalf("%v: expected one diagnostic, got %v", d, warns) }
    }
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("unexpected writes %v", got) }
}

func TestRoute_UnsafeModule(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("CUSTOM", custom, route.Broadcast()), nil, "0AAAAAAAA")
    if n != 0 || !errors.Is(err, ErrUnsafeModule) { t.Fatalf("n=%d err=%v", n, err) }
    warns := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
    if len(warns) != 1 || warns[0].ContextMap()["module"] != "m_custom" { t.Fatalf("diagnostics %v", warns) }

    // optional classes bypass the module check
    n, err = h.eng.Route(context.Background(), nil, cmd("CUSTOM", custom, route.OptionalBroadcast()), nil, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    // the engine's own module is trusted
    n, err = h.eng.Route(context.Background(), nil, cmd("SELF", core, route.Broadcast()), nil, "0AA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
}

func TestRoute_OwnModuleWithoutFlags(t *testing.T) {
    h := newHarness(t)
    own := &route.Module{Name: "spanningtree"}
    h.eng.module = own
    n, err := h.eng.Route(context.Background(), nil, cmd("FJOIN", own, route.Broadcast()), nil, "0AA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
}

func TestRoute_OptionalBroadcastEncapRoundTrip(t *testing.T) {
    h := newHarness(t)
    params := []string{"alice", "away", "gone fishing"}
    n, err := h.eng.Route(context.Background(), nil, cmd("METADATA", custom, route.OptionalBroadcast()), params, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    got := h.lb.Lines()
    l, err := wire.Parse(got[0])
    if err != nil { t.Fatalf("parse %q: %v", got[0], err) }
    target, inner, ok := wire.Unwrap(l)
    if !ok || target != "*" || inner.Command != "METADATA" || !reflect.DeepEqual(inner.Params, params) {
        t.Fatalf("unwrap %q: %q %+v", got[0], target, inner)
    }
}

func TestRoute_RefusesUnencodableParams(t *testing.T) {
    h := newHarness(t)
    for _, params := range [][]string{
        {"a b", "c"},
        {"", "c"},
        {":x", "c"},
        {"x\r\nSQUIT 0BB", "c"},
    } {
        for _, d := range []route.Descriptor{route.OptionalBroadcast(), route.Broadcast()} {
            n, err := h.eng.Route(context.Background(), nil, cmd("METADATA", core, d), params, "0AAAAAAAA")
            if !errors.Is(err, ErrUnencodable) || n != 0 { t.Fatalf("%q: n=%d err=%v", params, n, err) }
        }
    }
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("unexpected writes %q", got) }
    if h.logs.FilterMessage("refusing to route unencodable command").Len() == 0 { t.Fatalf("refusal not logged") }
}

func TestRoute_OptionalUnicastUsesTargetID(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("CHGHOST", custom, route.OptionalUnicast("C.Example.NET")), []string{"carol", "host"}, "0AA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); got[0] != ":0AA ENCAP 0CC CHGHOST carol host" { t.Fatalf("B got %v", got) }
}

func TestRoute_TranslatesNicks(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("KILL", core, route.Broadcast(), translate.Nick, translate.Text), []string{"Carol", "bye"}, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); got[0] != ":0AAAAAAAA KILL 0CCAAAAAA bye" { t.Fatalf("B got %v", got) }
}

func TestRoute_MessageChannel(t *testing.T) {
    h := newHarness(t)
    _ = h.users.Join("#chat", "0AAAAAAAA", 0)
    msg := cmd("PRIVMSG", core, route.Message("#chat"))
    if n, err := h.eng.Route(context.Background(), nil, msg, []string{"#chat", "hi"}, "0AAAAAAAA"); err != nil || n != 0 {
        t.Fatalf("local-only channel: n=%d err=%v", n, err)
    }
    _ = h.users.Join("#chat", "0CCAAAAAA", 0)
    if n, err := h.eng.Route(context.Background(), nil, msg, []string{"#chat", "hi"}, "0AAAAAAAA"); err != nil || n != 1 {
        t.Fatalf("n=%d err=%v", n, err)
    }
    if got := h.lb.Lines(); got[0] != ":0AAAAAAAA PRIVMSG #chat hi" { t.Fatalf("B got %v", got) }
}

func TestRoute_MessageStatusPrefix(t *testing.T) {
    h := newHarness(t)
    _ = h.users.Join("#Chat", "0CCAAAAAA", 30000)
    msg := cmd("NOTICE", core, route.Message("@#chat"))
    n, err := h.eng.Route(context.Background(), nil, msg, []string{"@#chat", "ops only"}, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }
    if got := h.lb.Lines(); got[0] != ":0AAAAAAAA NOTICE @#Chat :ops only" { t.Fatalf("B got %v", got) }

    h.lb.Reset()
    _ = h.users.Join("#Chat", "0CCAAAAAA", 10000)
    if n, _ := h.eng.Route(context.Background(), nil, msg, []string{"@#chat", "ops only"}, "0AAAAAAAA"); n != 0 {
        t.Fatalf("voiced member must not receive @ message, n=%d", n)
    }
}

func TestRoute_MessageExempts(t *testing.T) {
    h := newHarness(t)
    _ = h.users.Join("#chat", "0CCAAAAAA", 0)
    h.eng.exempts = func(actor string, ch membership.Channel, status byte) map[string]struct{} {
        return map[string]struct{}{"0CCAAAAAA": {}}
    }
    n, err := h.eng.Route(context.Background(), nil, cmd("PRIVMSG", core, route.Message("#chat")), []string{"#chat", "hi"}, "0AAAAAAAA")
    if err != nil || n != 0 { t.Fatalf("n=%d err=%v", n, err) }
}

func TestRoute_MessageUserAndMask(t *testing.T) {
    h := newHarness(t)
    n, err := h.eng.Route(context.Background(), nil, cmd("PRIVMSG", core, route.Message("carol")), []string{"carol", "hey"}, "0AAAAAAAA")
    if err != nil || n != 1 { t.Fatalf("n=%d err=%v", n, err) }

    n, err = h.eng.Route(context.Background(), h.b, cmd("PRIVMSG", core, route.Message("carol")), []string{"carol", "hey"}, "0BBAAAAAA")
    if n != 0 || !errors.Is(err, ErrCircularRoute) { t.Fatalf("n=%d err=%v", n, err) }

    n, err = h.eng.Route(context.Background(), h.b, cmd("PRIVMSG", core, route.Message("alice")), []string{"alice", "hey"}, "0CCAAAAAA")
    if n != 0 || err != nil { t.Fatalf("local user: n=%d err=%v", n, err) }

    n, err = h.eng.Route(context.Background(), nil, cmd("NOTICE", core, route.Message("$*.example.net")), []string{"$*.example.net", "maintenance"}, "0AA")
    if err != nil || n != 1 { t.Fatalf("mask: n=%d err=%v", n, err) }
}

func TestRoute_MessageUnknownDestination(t *testing.T) {
    h := newHarness(t)
    for _, dest := range []string{"#nowhere", "dave", "@", ""} {
        n, err := h.eng.Route(context.Background(), nil, cmd("PRIVMSG", core, route.Message(dest)), []string{dest, "x"}, "0AAAAAAAA")
        if n != 0 || !errors.Is(err, ErrUnknownDestination) { t.Fatalf("%q: n=%d err=%v", dest, n, err) }
    }
    if warns := h.logs.FilterLevelExact(zapcore.WarnLevel).Len(); warns != 0 { t.Fatalf("silent drop expected, got %d warnings", warns) }
}

func TestRoute_Idempotent(t *testing.T) {
    h := newHarness(t)
    _ = h.users.Join("#chat", "0CCAAAAAA", 0)
    cmds := []*route.Definition{
        cmd("AWAY", core, route.Broadcast()),
        cmd("PRIVMSG", core, route.Message("#chat")),
        cmd("SVSNICK", core, route.Unicast("0CC")),
        cmd("METADATA", custom, route.OptionalBroadcast()),
    }
    for _, c := range cmds {
        params := []string{"#chat", "x y"}
        h.lb.Reset()
        n1, err1 := h.eng.Route(context.Background(), nil, c, params, "0AAAAAAAA")
        first := h.lb.Lines()
        h.lb.Reset()
        n2, err2 := h.eng.Route(context.Background(), nil, c, params, "0AAAAAAAA")
        second := h.lb.Lines()
        if n1 != n2 || !errors.Is(err2, err1) || !reflect.DeepEqual(first, second) {
            t.Fatalf("%s: %d/%v %v vs %d/%v %v", c.Name(), n1, err1, first, n2, err2, second)
        }
    }
}

func TestOnCommandCompleted(t *testing.T) {
    h := newHarness(t)
    c := cmd("AWAY", core, route.Broadcast())
    h.eng.OnCommandCompleted(context.Background(), c, []string{"x"}, "0AAAAAAAA", route.Failure, "AWAY x")
    if got := h.lb.Lines(); len(got) != 0 { t.Fatalf("failed command propagated: %v", got) }
    h.eng.OnCommandCompleted(context.Background(), c, []string{"x"}, "0AAAAAAAA", route.Success, "AWAY x")
    if got := h.lb.Lines(); len(got) != 1 { t.Fatalf("B got %v", got) }
    // drop reasons never surface
    h.eng.OnCommandCompleted(context.Background(), cmd("X", custom, route.Broadcast()), nil, "0AAAAAAAA", route.Success, "X")
}
