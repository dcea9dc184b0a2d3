package apply

import "errors"

var (
	// ErrUnresolvedGroup fires when a staged probe references a group name
	// that neither the deployed state nor this run's group creations can
	// resolve to a uuid. It indicates a defective plan, not a remote fault.
	ErrUnresolvedGroup = errors.New("probe references an unresolved group")

	errMissingClient  = errors.New("apply engine requires a client")
	errMissingAccount = errors.New("apply engine requires an account")
)
