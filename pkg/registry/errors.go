package registry

import "errors"

var (
	ErrInvalidTemplate = errors.New("invalid probe template")
	ErrDuplicateEvent  = errors.New("duplicate event name")
	ErrUnknownService  = errors.New("unknown service")
)
