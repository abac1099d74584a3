package tree

import "encoding/json"

// NodeView is the JSON-serializable view of one server.
type NodeView struct {
    ID          string   `json:"id"`
    Name        string   `json:"name"`
    Description string   `json:"description,omitempty"`
    Parent      string   `json:"parent,omitempty"`
    Route       string   `json:"route,omitempty"`
    Hops        int      `json:"hops"`
    Direct      bool     `json:"direct"`
    Children    []string `json:"children,omitempty"`
}

// Snapshot is a point-in-time copy of the tree, in walk order.
type Snapshot struct {
    Version int        `json:"version"`
    Local   string     `json:"local"`
    Nodes   []NodeView `json:"nodes"`
}

// Snapshot copies the tree for status reporting. The result shares no state
// with the registry.
func (r *Registry) Snapshot() Snapshot {
    s := Snapshot{Version: 1, Local: r.local}
    r.Walk(func(n *ServerNode) bool {
        v := NodeView{ID: n.ID, Name: n.Name, Description: n.Description, Parent: n.parent, Hops: n.hops, Direct: n.Direct(), Children: n.Children()}
        if hop, ok := r.NextHopToward(n); ok { v.Route = hop.ID }
        s.Nodes = append(s.Nodes, v)
        return true
    })
    return s
}

// JSON encodes the snapshot.
func (s Snapshot) JSON() ([]byte, error) { return json.Marshal(s) }
