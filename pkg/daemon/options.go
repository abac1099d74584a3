package daemon

import (
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/amirimatin/go-spantree/pkg/discovery"
    "github.com/amirimatin/go-spantree/pkg/membership"
    "github.com/amirimatin/go-spantree/pkg/propagate"
    "github.com/amirimatin/go-spantree/pkg/transport"
)

// Options carries the identity of the local server and its injected
// components. Instances are typically produced from bootstrap.Config.
type Options struct {
    // ServerID is the three character network id, a digit followed by two
    // digits or upper-case letters (e.g. "0AA").
    ServerID    string
    Name        string
    Description string

    // Links accepts and dials peer links (required).
    Links transport.LinkTransport
    // Discovery lists peers to link to at start.
    Discovery discovery.Discovery
    // RPCServer optionally serves the status document.
    RPCServer transport.RPCServer

    // Users is the network directory; a fresh one is created when nil.
    Users *membership.Directory
    // Exempts filters channel message recipients; nobody is exempt when nil.
    Exempts propagate.ExemptFunc
    // OnMessage is called for every PRIVMSG or NOTICE this server accepts. It
    // runs on the event loop and must not call back into the Daemon.
    OnMessage func(Message)

    // ConnectRetry is the delay between dial attempts to a discovery target.
    ConnectRetry time.Duration
    // QueueSize bounds the event loop inbox.
    QueueSize int

    Logger *zap.Logger
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if !ValidServerID(o.ServerID) {
        return fmt.Errorf("daemon: invalid server id %q", o.ServerID)
    }
    if o.Name == "" {
        return errors.New("daemon: empty server name")
    }
    if o.Links == nil {
        return errors.New("daemon: nil link transport")
    }
    return nil
}

// ValidServerID reports whether id has the network id shape.
func ValidServerID(id string) bool {
    if len(id) != 3 || id[0] < '0' || id[0] > '9' { return false }
    for i := 1; i < 3; i++ {
        c := id[i]
        if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') { return false }
    }
    return true
}
