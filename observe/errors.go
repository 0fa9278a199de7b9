package observe

import "errors"

// Sentinel errors for observer configuration.
var (
	ErrMissingServiceName = errors.New("observe: service name is required")
	ErrUnknownExporter    = errors.New("observe: unknown exporter")
	ErrUnknownLogLevel    = errors.New("observe: unknown log level")
	ErrInvalidSampleRate  = errors.New("observe: sample rate must be between 0.0 and 1.0")
)
