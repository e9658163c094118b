package backboard

import "errors"

var (
	// ErrMissingAPIKey is returned when the client is constructed without
	// credentials. This is a configuration error: fatal, never retried.
	ErrMissingAPIKey = errors.New("backboard api key is not set")
)
