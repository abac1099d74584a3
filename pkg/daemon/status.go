package daemon

import (
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/tree"
)

// Status is a JSON-serializable snapshot of the local daemon for the
// management endpoint and tooling.
type Status struct {
    Healthy     bool                `json:"healthy"`
    ServerID    string              `json:"server_id"`
    Name        string              `json:"name"`
    Tree        tree.Snapshot       `json:"tree"`
    DirectPeers []string            `json:"direct_peers"`
    Users       int                 `json:"users"`
    Channels    int                 `json:"channels"`
    Directory   membership.Snapshot `json:"directory"`
    Commands    []string            `json:"commands"`
    Warnings    []string            `json:"warnings,omitempty"`
}
