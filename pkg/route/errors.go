package route

import "errors"

var (
    ErrInvalidCommand   = errors.New("route: command requires a name")
    ErrDuplicateCommand = errors.New("route: command already registered")
)
