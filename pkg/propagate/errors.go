package propagate

import "errors"

// Drop reasons returned by Engine.Route. None of them is fatal: the command
// already ran locally and only its network propagation is abandoned.
var (
    ErrUnknownTarget      = errors.New("propagate: route to unknown server")
    ErrUnsafeModule       = errors.New("propagate: command module is not network safe")
    ErrCircularRoute      = errors.New("propagate: next hop is the origin")
    ErrUnknownDestination = errors.New("propagate: unknown channel or user")
    ErrNilCommand         = errors.New("propagate: nil command")
    ErrUnencodable        = errors.New("propagate: parameters cannot be sent intact")
)

func reason(err error) string {
    switch {
    case errors.Is(err, ErrUnknownTarget):
        return "unknown_target"
    case errors.Is(err, ErrUnsafeModule):
        return "unsafe_module"
    case errors.Is(err, ErrCircularRoute):
        return "circular_route"
    case errors.Is(err, ErrUnknownDestination):
        return "unknown_destination"
    case errors.Is(err, ErrUnencodable):
        return "unencodable"
    default:
        return "write_failed"
    }
}
