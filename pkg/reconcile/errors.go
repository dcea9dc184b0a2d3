package reconcile

import "errors"

var (
	ErrMissingAccount      = errors.New("account is required")
	ErrMissingContacts     = errors.New("at least one contact is required")
	ErrMissingEndpoint     = errors.New("api endpoint is required")
	ErrMissingTemplateDir  = errors.New("template directory is required")
	ErrMissingTopologyPath = errors.New("topology path is required")

	errMissingClient   = errors.New("reconcile service requires a client")
	errMissingRegistry = errors.New("reconcile service requires a registry")
	errMissingTopology = errors.New("reconcile service requires a topology provider")
)
