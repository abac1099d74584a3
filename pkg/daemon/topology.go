package daemon

import (
    "context"
    "errors"
    "strconv"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/transport"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

func (d *Daemon) linkUp(l transport.Link) {
    remote := l.Remote()
    peer, err := d.reg.AddDirect(remote.ID, remote.Name, remote.Description, l)
    if err != nil {
        d.logger.Warn("link rejected", zap.String("peer", remote.Name), zap.String("id", remote.ID), zap.Error(err))
        d.eb.publish(Event{Type: EventLinkRejected, ServerID: remote.ID, Name: remote.Name, Reason: err.Error()})
        // the close callback posts back into this loop
        go l.Close()
        return
    }
    logutil.Infof(d.logger, "server %s (%s) linked", peer.Name, peer.ID)
    if !d.burst(peer) { return }

    // tell the rest of the network about the new peer
    if cmd, ok := d.cmds.Lookup(cmdServer); ok {
        params := []string{peer.Name, peer.ID, peer.Description}
        _, _ = d.engine.Route(context.Background(), peer, cmd, params, d.opts.ServerID)
    }
    d.updateGauges()
    d.eb.publish(Event{Type: EventServerLinked, ServerID: peer.ID, Name: peer.Name, Via: peer.ID})
}

// burst sends peer everything it needs to know about our side of the
// network: servers parent first, then users, then channel memberships.
func (d *Daemon) burst(peer *tree.ServerNode) bool {
    var lines []wire.Line
    d.reg.Walk(func(n *tree.ServerNode) bool {
        if n.Local() || n.ID == peer.ID { return true }
        lines = append(lines, wire.Line{Source: n.Parent(), Command: cmdServer, Params: []string{n.Name, n.ID, n.Description}})
        return true
    })
    for _, u := range d.users.Users() {
        if hop, ok := d.hopFor(u.Server); ok && hop.ID == peer.ID { continue }
        lines = append(lines, wire.Line{Source: u.Server, Command: cmdUID, Params: []string{u.UUID, u.Nick}})
    }
    for _, ch := range d.users.Channels() {
        for _, m := range ch.Members {
            if hop, ok := d.hopFor(m.Server); ok && hop.ID == peer.ID { continue }
            lines = append(lines, wire.Line{Source: m.UUID, Command: cmdJoin, Params: []string{ch.Name, strconv.Itoa(m.Rank)}})
        }
    }
    valid := lines[:0]
    for _, line := range lines {
        if err := line.Validate(); err != nil {
            logutil.Warnf(d.logger, "burst to %s: skipping %s: %v", peer.Name, line.Command, err)
            continue
        }
        valid = append(valid, line)
    }
    if err := d.send.SendBurst(valid, peer); err != nil {
        d.logger.Warn("burst failed, dropping link", zap.String("peer", peer.Name), zap.Error(err))
        // the close callback posts back into this loop
        go peer.Link().Close()
        return false
    }
    logutil.Debugf(d.logger, "burst to %s: %d lines", peer.Name, len(valid))
    return true
}

// hopFor returns the direct peer a server id is reached through.
func (d *Daemon) hopFor(serverID string) (*tree.ServerNode, bool) {
    n, ok := d.reg.FindByID(serverID)
    if !ok { return nil, false }
    return d.reg.NextHopToward(n)
}

func (d *Daemon) linkDown(l transport.Link, cause error) {
    peer, ok := d.reg.ByLink(l)
    if !ok { return }
    reason := "link closed"
    if cause != nil && !errors.Is(cause, transport.ErrLinkClosed) { reason = cause.Error() }
    d.split(peer, nil, reason)

    if cmd, ok := d.cmds.Lookup(cmdSquit); ok {
        _, _ = d.engine.Route(context.Background(), nil, cmd, []string{peer.ID, reason}, d.opts.ServerID)
    }
}

// split removes n and everything behind it, along with their users.
func (d *Daemon) split(n *tree.ServerNode, via *tree.ServerNode, reason string) {
    name, id := n.Name, n.ID
    removed, err := d.reg.Remove(id)
    if err != nil {
        logutil.Warnf(d.logger, "split %s: %v", name, err)
        return
    }
    ids := make([]string, 0, len(removed))
    for _, r := range removed { ids = append(ids, r.ID) }
    quits := d.users.RemoveServerUsers(ids)
    d.logger.Info("netsplit", zap.String("split", name), zap.Int("servers", len(removed)), zap.Int("users", quits), zap.String("reason", reason))

    obsmetrics.Netsplits.Add(float64(len(removed)))
    d.updateGauges()
    viaID := ""
    if via != nil { viaID = via.ID }
    for _, r := range removed {
        d.eb.publish(Event{Type: EventServerSplit, ServerID: r.ID, Name: r.Name, Via: viaID, Reason: reason})
    }
}
