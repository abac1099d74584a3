// Package delivery writes encoded command lines to direct peer links.
//
// Each primitive turns a destination into a set of direct peers using the
// server tree and enqueues one line per peer. Writes are fire-and-forget: a
// full or closed link is counted and logged, never retried. The transport
// fails an overflowing link itself.
package delivery

import (
    "errors"
    "fmt"
    "sort"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/observability/metrics"
    "github.com/amirimatin/go-spantree/pkg/transport"
    "github.com/amirimatin/go-spantree/pkg/tree"
    "github.com/amirimatin/go-spantree/pkg/wire"
)

var (
    ErrNoRoute = errors.New("delivery: no route to server")
    ErrNoLink  = errors.New("delivery: next hop has no link")
)

const (
    primitiveOne     = "one"
    primitiveAll     = "all_but_sender"
    primitiveChannel = "channel"
    primitiveBurst   = "burst"
)

// Ranker resolves a status prefix character to the minimum member rank it
// addresses.
type Ranker interface {
    PrefixRank(c byte) (int, bool)
}

// Sender implements the delivery primitives over one registry.
type Sender struct {
    reg    *tree.Registry
    ranks  Ranker
    logger *zap.Logger
}

// New returns a Sender. A nil ranks treats every status prefix as rank 0.
func New(reg *tree.Registry, ranks Ranker, logger *zap.Logger) *Sender {
    if logger == nil { logger = zap.NewNop() }
    return &Sender{reg: reg, ranks: ranks, logger: logger}
}

// SendToOne writes line to the single direct peer on the path to target.
func (s *Sender) SendToOne(line wire.Line, target *tree.ServerNode) error {
    hop, ok := s.reg.NextHopToward(target)
    if !ok {
        name := "<nil>"
        if target != nil { name = target.Name }
        return fmt.Errorf("%w: %s", ErrNoRoute, name)
    }
    return s.write(hop, line.String(), primitiveOne)
}

// SendToAllButSender writes line to every direct peer except omit and returns
// the number of successful writes.
func (s *Sender) SendToAllButSender(line wire.Line, omit *tree.ServerNode) int {
    text := line.String()
    n := 0
    for _, peer := range s.reg.DirectPeers(omit) {
        if s.write(peer, text, primitiveAll) == nil { n++ }
    }
    return n
}

// ChannelPeers returns the direct peers through which at least one remote
// member of ch is reached, ordered by id. Members ranked below the status
// prefix, members in exempts and the peer omit are left out.
func (s *Sender) ChannelPeers(ch membership.Channel, status byte, exempts map[string]struct{}, omit *tree.ServerNode) []*tree.ServerNode {
    minRank := 0
    if status != 0 && s.ranks != nil {
        if r, ok := s.ranks.PrefixRank(status); ok { minRank = r }
    }
    local := s.reg.Local().ID
    seen := make(map[string]*tree.ServerNode)
    for _, m := range ch.Members {
        if m.Server == local || m.Rank < minRank { continue }
        if _, skip := exempts[m.UUID]; skip { continue }
        home, ok := s.reg.FindByID(m.Server)
        if !ok { continue }
        hop, ok := s.reg.NextHopToward(home)
        if !ok { continue }
        if omit != nil && hop.ID == omit.ID { continue }
        seen[hop.ID] = hop
    }
    out := make([]*tree.ServerNode, 0, len(seen))
    for _, hop := range seen { out = append(out, hop) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// SendToChannel writes one copy of a channel command to each peer returned by
// ChannelPeers. The status prefix is put back in front of the channel name on
// the wire; rest follows the target.
func (s *Sender) SendToChannel(source, command string, ch membership.Channel, status byte, rest []string, exempts map[string]struct{}, omit *tree.ServerNode) int {
    peers := s.ChannelPeers(ch, status, exempts, omit)
    if len(peers) == 0 { return 0 }
    target := ch.Name
    if status != 0 { target = string(status) + target }
    params := make([]string, 0, len(rest)+1)
    params = append(params, target)
    params = append(params, rest...)
    text := wire.Line{Source: source, Command: command, Params: params}.String()
    n := 0
    for _, peer := range peers {
        if s.write(peer, text, primitiveChannel) == nil { n++ }
    }
    return n
}

// SendBurst queues lines to the direct peer as one ordered unit. Links that
// implement transport.BatchLink take the whole run regardless of their queue
// bound; others get one Send per line. Any failure leaves the peer with a
// partial view, so the caller must drop the link.
func (s *Sender) SendBurst(lines []wire.Line, peer *tree.ServerNode) error {
    link := peer.Link()
    if link == nil {
        metrics.LinkWriteErrors.WithLabelValues(primitiveBurst).Inc()
        return fmt.Errorf("%w: %s", ErrNoLink, peer.Name)
    }
    texts := make([]string, len(lines))
    for i, l := range lines { texts[i] = l.String() }
    var err error
    if bl, ok := link.(transport.BatchLink); ok {
        err = bl.SendBatch(texts)
    } else {
        for _, text := range texts {
            if err = link.Send(text); err != nil { break }
        }
    }
    if err != nil {
        metrics.LinkWriteErrors.WithLabelValues(primitiveBurst).Inc()
        return fmt.Errorf("delivery: burst to %s: %w", peer.Name, err)
    }
    metrics.LinkWrites.WithLabelValues(primitiveBurst).Add(float64(len(texts)))
    return nil
}

func (s *Sender) write(peer *tree.ServerNode, text, primitive string) error {
    link := peer.Link()
    if link == nil {
        metrics.LinkWriteErrors.WithLabelValues(primitive).Inc()
        return fmt.Errorf("%w: %s", ErrNoLink, peer.Name)
    }
    if err := link.Send(text); err != nil {
        metrics.LinkWriteErrors.WithLabelValues(primitive).Inc()
        s.logger.Warn("link write failed", zap.String("peer", peer.Name), zap.String("primitive", primitive), zap.Error(err))
        return fmt.Errorf("delivery: write to %s: %w", peer.Name, err)
    }
    metrics.LinkWrites.WithLabelValues(primitive).Inc()
    return nil
}
