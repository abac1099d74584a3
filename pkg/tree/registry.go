// Package tree holds the spanning tree of servers known to the local daemon.
//
// The Registry is an arena of ServerNodes keyed by server id and rooted at the
// local server. It is not safe for concurrent use: the daemon mutates it only
// between routing decisions from a single goroutine, so every routing call
// sees a consistent snapshot without locking.
package tree

import (
    "fmt"
    "sort"

    "github.com/amirimatin/go-spantree/pkg/casemap"
    "github.com/amirimatin/go-spantree/pkg/transport"
)

// Registry maintains the set of known servers and their parent/child edges.
type Registry struct {
    local  string
    nodes  map[string]*ServerNode
    byName map[string]string
}

// New creates a registry containing only the local server.
func New(id, name, description string) *Registry {
    r := &Registry{
        local:  id,
        nodes:  make(map[string]*ServerNode),
        byName: make(map[string]string),
    }
    r.nodes[id] = &ServerNode{ID: id, Name: name, Description: description}
    r.byName[casemap.Fold(name)] = id
    return r
}

// Local returns the root node.
func (r *Registry) Local() *ServerNode { return r.nodes[r.local] }

// Len returns the number of known servers including the local one.
func (r *Registry) Len() int { return len(r.nodes) }

// AddDirect records a server reached over link as a child of the local root.
func (r *Registry) AddDirect(id, name, description string, link transport.Link) (*ServerNode, error) {
    if link == nil { return nil, ErrNilLink }
    n, err := r.add(r.local, id, name, description)
    if err != nil { return nil, err }
    n.link = link
    return n, nil
}

// AddIndirect records a server announced by a peer as a child of parentID.
func (r *Registry) AddIndirect(parentID, id, name, description string) (*ServerNode, error) {
    if parentID == r.local {
        return nil, fmt.Errorf("%w: indirect server %s cannot hang off the local root", ErrUnknownParent, id)
    }
    return r.add(parentID, id, name, description)
}

func (r *Registry) add(parentID, id, name, description string) (*ServerNode, error) {
    if id == "" || name == "" { return nil, ErrInvalidServer }
    parent, ok := r.nodes[parentID]
    if !ok { return nil, fmt.Errorf("%w: %s", ErrUnknownParent, parentID) }
    if _, exists := r.nodes[id]; exists { return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id) }
    key := casemap.Fold(name)
    if _, exists := r.byName[key]; exists { return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name) }
    n := &ServerNode{ID: id, Name: name, Description: description, parent: parentID, hops: parent.hops + 1}
    r.nodes[id] = n
    r.byName[key] = id
    parent.children = insertSorted(parent.children, id)
    return n, nil
}

// Remove splits the server id and its whole subtree from the tree. The removed
// nodes are returned parent first.
func (r *Registry) Remove(id string) ([]*ServerNode, error) {
    if id == r.local { return nil, ErrLocalServer }
    n, ok := r.nodes[id]
    if !ok { return nil, fmt.Errorf("%w: %s", ErrUnknownServer, id) }
    if p, ok := r.nodes[n.parent]; ok {
        p.children = removeID(p.children, id)
    }
    var out []*ServerNode
    stack := []*ServerNode{n}
    for len(stack) > 0 {
        cur := stack[0]
        stack = stack[1:]
        out = append(out, cur)
        for _, cid := range cur.children {
            if c, ok := r.nodes[cid]; ok { stack = append(stack, c) }
        }
        delete(r.nodes, cur.ID)
        delete(r.byName, casemap.Fold(cur.Name))
        cur.removed = true
        cur.link = nil
    }
    return out, nil
}

// Find looks a server up by id, then by name under the network case mapping.
func (r *Registry) Find(nameOrID string) (*ServerNode, bool) {
    if n, ok := r.nodes[nameOrID]; ok { return n, true }
    return r.FindByName(nameOrID)
}

// FindByID returns the server with the exact identifier id.
func (r *Registry) FindByID(id string) (*ServerNode, bool) {
    n, ok := r.nodes[id]
    return n, ok
}

// FindByName returns the server called name, compared case-insensitively.
func (r *Registry) FindByName(name string) (*ServerNode, bool) {
    id, ok := r.byName[casemap.Fold(name)]
    if !ok { return nil, false }
    return r.nodes[id], true
}

// ByLink returns the direct peer owning link.
func (r *Registry) ByLink(link transport.Link) (*ServerNode, bool) {
    if link == nil { return nil, false }
    local := r.nodes[r.local]
    for _, cid := range local.children {
        if c := r.nodes[cid]; c != nil && c.link == link { return c, true }
    }
    return nil, false
}

// NextHopToward walks from n towards the root and returns the direct peer
// through which n is reached. It reports false for the local server and for
// nodes no longer in the tree.
func (r *Registry) NextHopToward(n *ServerNode) (*ServerNode, bool) {
    if n == nil || n.removed || n.ID == r.local { return nil, false }
    cur, ok := r.nodes[n.ID]
    if !ok { return nil, false }
    for cur.parent != r.local {
        next, ok := r.nodes[cur.parent]
        if !ok { return nil, false }
        cur = next
    }
    return cur, true
}

// DirectPeers returns every direct peer except exclude, ordered by id.
func (r *Registry) DirectPeers(exclude *ServerNode) []*ServerNode {
    local := r.nodes[r.local]
    out := make([]*ServerNode, 0, len(local.children))
    for _, cid := range local.children {
        if exclude != nil && cid == exclude.ID { continue }
        if c := r.nodes[cid]; c != nil { out = append(out, c) }
    }
    return out
}

// Parent returns the node one hop closer to the root.
func (r *Registry) Parent(n *ServerNode) (*ServerNode, bool) {
    if n == nil || n.parent == "" { return nil, false }
    p, ok := r.nodes[n.parent]
    return p, ok
}

// Children returns the nodes directly below n, ordered by id.
func (r *Registry) Children(n *ServerNode) []*ServerNode {
    if n == nil { return nil }
    out := make([]*ServerNode, 0, len(n.children))
    for _, cid := range n.children {
        if c := r.nodes[cid]; c != nil { out = append(out, c) }
    }
    return out
}

// Walk visits the tree depth-first from the root, parents before children.
// Returning false from fn stops the walk.
func (r *Registry) Walk(fn func(n *ServerNode) bool) {
    var visit func(n *ServerNode) bool
    visit = func(n *ServerNode) bool {
        if !fn(n) { return false }
        for _, c := range r.Children(n) {
            if !visit(c) { return false }
        }
        return true
    }
    visit(r.nodes[r.local])
}

func insertSorted(ids []string, id string) []string {
    i := sort.SearchStrings(ids, id)
    ids = append(ids, "")
    copy(ids[i+1:], ids[i:])
    ids[i] = id
    return ids
}

func removeID(ids []string, id string) []string {
    for i, v := range ids {
        if v == id { return append(ids[:i], ids[i+1:]...) }
    }
    return ids
}
