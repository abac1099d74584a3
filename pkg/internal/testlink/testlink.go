// Package testlink provides a transport.Link that records what is sent on it.
package testlink

import (
    "sync"

    "github.com/amirimatin/go-spantree/pkg/transport"
)

// Link records every line passed to Send.
type Link struct {
    mu     sync.Mutex
    remote transport.Hello
    lines  []string
    closed bool
}

func New(id, name string) *Link { return &Link{remote: transport.Hello{ID: id, Name: name}} }

func (l *Link) Send(line string) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.closed { return transport.ErrLinkClosed }
    l.lines = append(l.lines, line)
    return nil
}

func (l *Link) Remote() transport.Hello { return l.remote }

func (l *Link) Close() error {
    l.mu.Lock()
    l.closed = true
    l.mu.Unlock()
    return nil
}

// Lines returns a copy of the recorded lines.
func (l *Link) Lines() []string {
    l.mu.Lock()
    defer l.mu.Unlock()
    return append([]string(nil), l.lines...)
}

// Reset forgets recorded lines.
func (l *Link) Reset() {
    l.mu.Lock()
    l.lines = nil
    l.mu.Unlock()
}

var _ transport.Link = (*Link)(nil)
