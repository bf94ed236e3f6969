package shared

import "errors"

// ErrInvalidActor occurs when the actor header is not a staff id.
var ErrInvalidActor = errors.New("invalid actor id")
