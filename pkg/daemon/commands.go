package daemon

import (
    "context"
    "errors"
    "strconv"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/route"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

const (
    cmdServer  = "SERVER"
    cmdSquit   = "SQUIT"
    cmdUID     = "UID"
    cmdNick    = "NICK"
    cmdQuit    = "QUIT"
    cmdJoin    = "JOIN"
    cmdPart    = "PART"
    cmdPrivmsg = "PRIVMSG"
    cmdNotice  = "NOTICE"
)

var (
    // SpanningTree owns the server-to-server protocol commands. It carries no
    // network flags; its commands are routed because the engine trusts its
    // own module.
    SpanningTree = &route.Module{Name: "spanningtree"}
    // Core owns the user-state commands every server understands.
    Core = &route.Module{Name: "core", Flags: route.FlagCore}
)

// Message is a PRIVMSG or NOTICE accepted by this server.
type Message struct {
    Source  string // sender uuid
    Nick    string // sender nick at the time of delivery
    Command string
    Target  string // nick, channel (with optional status prefix) or server mask
    Text    string
    // Local is set when a user homed on this server is among the recipients.
    Local bool
}

func (d *Daemon) builtins() []route.Command {
    broadcast := func(string, []string) route.Descriptor { return route.Broadcast() }
    return []route.Command{
        &route.Definition{Verb: cmdServer, Module: SpanningTree, Route: broadcast, Exec: d.handleServer},
        &route.Definition{Verb: cmdSquit, Module: SpanningTree, Route: broadcast, Exec: d.handleSquit},
        &route.Definition{Verb: wire.EncapCommand, Module: SpanningTree, Route: encapRoute, Exec: d.handleEncap},
        &route.Definition{Verb: cmdUID, Module: Core, Route: broadcast, Exec: d.handleUID},
        &route.Definition{Verb: cmdNick, Module: Core, Route: broadcast, Exec: d.handleNick},
        &route.Definition{Verb: cmdQuit, Module: Core, Route: broadcast, Exec: d.handleQuit},
        &route.Definition{Verb: cmdJoin, Module: Core, Route: broadcast, Exec: d.handleJoin},
        &route.Definition{Verb: cmdPart, Module: Core, Route: broadcast, Exec: d.handlePart},
        &route.Definition{Verb: cmdPrivmsg, Module: Core, Route: messageRoute, Exec: d.messageHandler(cmdPrivmsg)},
        &route.Definition{Verb: cmdNotice, Module: Core, Route: messageRoute, Exec: d.messageHandler(cmdNotice)},
    }
}

func encapRoute(_ string, params []string) route.Descriptor {
    if len(params) == 0 || params[0] == wire.Wildcard { return route.Broadcast() }
    return route.Unicast(params[0])
}

func messageRoute(_ string, params []string) route.Descriptor {
    if len(params) == 0 { return route.LocalOnly() }
    return route.Message(params[0])
}

// :<parent> SERVER <name> <id> :<description>
func (d *Daemon) handleServer(actor string, params []string) route.Result {
    if d.origin == nil || len(params) < 2 { return route.Invalid }
    desc := ""
    if len(params) > 2 { desc = params[2] }
    n, err := d.reg.AddIndirect(actor, params[1], params[0], desc)
    if err != nil {
        d.logger.Warn("server introduction refused", zap.String("peer", d.origin.Name), zap.String("server", params[0]), zap.Error(err))
        if errors.Is(err, tree.ErrDuplicateID) || errors.Is(err, tree.ErrDuplicateName) {
            // the same server reachable twice would close a loop
            go d.origin.Link().Close()
        }
        return route.Failure
    }
    d.updateGauges()
    d.eb.publish(Event{Type: EventServerIntroduced, ServerID: n.ID, Name: n.Name, Via: d.origin.ID})
    return route.Success
}

// :<source> SQUIT <server> :<reason>
func (d *Daemon) handleSquit(_ string, params []string) route.Result {
    if len(params) == 0 { return route.Invalid }
    reason := ""
    if len(params) > 1 { reason = params[1] }
    n, ok := d.reg.Find(params[0])
    if !ok || n.Local() {
        logutil.Debugf(d.logger, "SQUIT for unknown server %s ignored", params[0])
        return route.Failure
    }
    if d.origin == nil {
        if !n.Direct() { return route.Failure }
        // link loss does the split and the announcement
        go n.Link().Close()
        return route.Failure
    }
    if n.Direct() {
        d.logger.Warn("peer tried to split a direct link", zap.String("peer", d.origin.Name), zap.String("server", n.Name))
        return route.Failure
    }
    if hop, ok := d.reg.NextHopToward(n); !ok || hop.ID != d.origin.ID {
        d.logger.Warn("SQUIT from wrong direction", zap.String("peer", d.origin.Name), zap.String("server", n.Name))
        return route.Failure
    }
    d.split(n, d.origin, reason)
    return route.Success
}

// :<source> ENCAP <target|*> <command> [params...]
//
// The inner command runs here when the target matches; the ENCAP itself is
// always forwarded, so servers that do not know the inner command still relay
// it.
func (d *Daemon) handleEncap(actor string, params []string) route.Result {
    if len(params) < 2 { return route.Invalid }
    target, inner := params[0], params[1]
    if target != wire.Wildcard {
        n, ok := d.reg.Find(target)
        if !ok { return route.Success }
        if !n.Local() { return route.Success }
    }
    cmd, ok := d.cmds.Lookup(inner)
    if !ok {
        logutil.Debugf(d.logger, "ENCAP %s not handled here", inner)
        return route.Success
    }
    res := d.execute(cmd, actor, params[2:])
    if res != route.Success {
        logutil.Debugf(d.logger, "ENCAP %s from %s: %s", inner, actor, res)
    }
    return route.Success
}

// :<server> UID <uuid> <nick>
func (d *Daemon) handleUID(actor string, params []string) route.Result {
    if len(params) < 2 { return route.Invalid }
    if _, ok := d.reg.FindByID(actor); !ok { return route.Invalid }
    if err := d.users.AddUser(membership.User{UUID: params[0], Nick: params[1], Server: actor}); err != nil {
        logutil.Warnf(d.logger, "UID %s refused: %v", params[0], err)
        return route.Failure
    }
    return route.Success
}

// :<uuid> NICK <nick>
func (d *Daemon) handleNick(actor string, params []string) route.Result {
    if len(params) < 1 { return route.Invalid }
    if err := d.users.RenameUser(actor, params[0]); err != nil {
        logutil.Debugf(d.logger, "NICK %s: %v", actor, err)
        return route.Failure
    }
    return route.Success
}

// :<uuid> QUIT [:reason]
func (d *Daemon) handleQuit(actor string, _ []string) route.Result {
    if err := d.users.RemoveUser(actor); err != nil { return route.Failure }
    return route.Success
}

// :<uuid> JOIN <#channel> [rank]
func (d *Daemon) handleJoin(actor string, params []string) route.Result {
    if len(params) < 1 { return route.Invalid }
    rank := 0
    if len(params) > 1 {
        r, err := strconv.Atoi(params[1])
        if err != nil { return route.Invalid }
        rank = r
    }
    if err := d.users.Join(params[0], actor, rank); err != nil {
        logutil.Debugf(d.logger, "JOIN %s: %v", params[0], err)
        return route.Failure
    }
    return route.Success
}

// :<uuid> PART <#channel> [:reason]
func (d *Daemon) handlePart(actor string, params []string) route.Result {
    if len(params) < 1 { return route.Invalid }
    if err := d.users.Part(params[0], actor); err != nil { return route.Failure }
    return route.Success
}

// :<uuid> PRIVMSG|NOTICE <target> :<text>
func (d *Daemon) messageHandler(command string) func(string, []string) route.Result {
    return func(actor string, params []string) route.Result {
        if len(params) < 2 || params[0] == "" { return route.Invalid }
        local, ok := d.localRecipients(params[0])
        if !ok { return route.Failure }
        if d.opts.OnMessage != nil {
            m := Message{Source: actor, Command: command, Target: params[0], Text: params[1], Local: local}
            if u, ok := d.users.FindUUID(actor); ok { m.Nick = u.Nick }
            d.opts.OnMessage(m)
        }
        return route.Success
    }
}

// localRecipients reports whether dest exists and whether any of its
// recipients is homed here.
func (d *Daemon) localRecipients(dest string) (local, ok bool) {
    minRank := 0
    if r, isPrefix := d.users.PrefixRank(dest[0]); isPrefix {
        minRank, dest = r, dest[1:]
    }
    switch {
    case dest == "":
        return false, false
    case membership.IsServerMask(dest):
        return true, true
    case membership.IsChannel(dest):
        ch, found := d.users.FindChannel(dest)
        if !found { return false, false }
        for _, m := range ch.Members {
            if m.Server == d.opts.ServerID && m.Rank >= minRank { return true, true }
        }
        return false, true
    }
    u, found := d.users.FindNick(dest)
    if !found { return false, false }
    return u.Server == d.opts.ServerID, true
}

// Announce introduces a user homed on this server to the network.
func (d *Daemon) Announce(ctx context.Context, uuid, nick string) error {
    res, err := d.Execute(ctx, d.opts.ServerID, cmdUID, uuid, nick)
    if err != nil { return err }
    if res != route.Success { return resultError(cmdUID, res) }
    return nil
}

// resultError turns a rejected local command into an error.
func resultError(command string, res route.Result) error {
    return &CommandError{Command: command, Result: res}
}

// CommandError reports a local command the daemon refused.
type CommandError struct {
    Command string
    Result  route.Result
}

func (e *CommandError) Error() string {
    return "daemon: " + e.Command + " " + e.Result.String()
}
