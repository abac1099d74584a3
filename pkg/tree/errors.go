package tree

import "errors"

var (
    ErrDuplicateID    = errors.New("tree: server id already in use")
    ErrDuplicateName  = errors.New("tree: server name already in use")
    ErrUnknownParent  = errors.New("tree: unknown parent server")
    ErrUnknownServer  = errors.New("tree: unknown server")
    ErrLocalServer    = errors.New("tree: operation not permitted on the local server")
    ErrInvalidServer  = errors.New("tree: server id and name are required")
    ErrNilLink        = errors.New("tree: direct peer requires a link")
)
