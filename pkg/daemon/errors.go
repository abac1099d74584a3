package daemon

import "errors"

var (
    ErrNotStarted     = errors.New("daemon: not started")
    ErrStopped        = errors.New("daemon: stopped")
    ErrUnknownCommand = errors.New("daemon: unknown command")
    ErrUnknownServer  = errors.New("daemon: unknown server")
    ErrNotDirect      = errors.New("daemon: server is not a direct peer")
)
