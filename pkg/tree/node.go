package tree

import "github.com/amirimatin/go-spantree/pkg/transport"

// ServerNode is one known server in the spanning tree. Parent and child
// relationships are identifiers into the owning Registry, never pointers, so
// a removed node cannot keep its former neighbours alive.
type ServerNode struct {
    ID          string
    Name        string
    Description string

    parent   string
    children []string
    link     transport.Link
    hops     int
    removed  bool
}

// Parent returns the identifier of the node one hop closer to the local
// server, or "" for the local server itself.
func (n *ServerNode) Parent() string { return n.parent }

// Children returns a copy of the identifiers one hop further away.
func (n *ServerNode) Children() []string { return append([]string(nil), n.children...) }

// Link returns the transport connection when n is a direct peer, else nil.
func (n *ServerNode) Link() transport.Link { return n.link }

// Direct reports whether n is reachable over its own link.
func (n *ServerNode) Direct() bool { return n.link != nil }

// Local reports whether n is the root of the tree.
func (n *ServerNode) Local() bool { return n.parent == "" }

// Hops is the distance from the local server (0 for local, 1 for direct peers).
func (n *ServerNode) Hops() int { return n.hops }

// Removed reports whether n has been split from the tree. Holders of a stale
// node must not route to it.
func (n *ServerNode) Removed() bool { return n.removed }
