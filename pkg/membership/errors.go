package membership

import "errors"

var (
    ErrInvalidUser    = errors.New("membership: user uuid, nick and server are required")
    ErrDuplicateUser  = errors.New("membership: user already known")
    ErrNickInUse      = errors.New("membership: nickname in use")
    ErrUnknownUser    = errors.New("membership: unknown user")
    ErrInvalidChannel = errors.New("membership: invalid channel name")
    ErrNotOnChannel   = errors.New("membership: user not on channel")
)
