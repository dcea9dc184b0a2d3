package amon

import "errors"

var (
	errMissingEndpoint      = errors.New("amon endpoint not configured")
	errUnexpectedStatusCode = errors.New("unexpected status code")
)
