package config

import "errors"

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid configuration")

	// ErrSecret wraps every secret resolution failure.
	ErrSecret = errors.New("config: secret resolution failed")
)
