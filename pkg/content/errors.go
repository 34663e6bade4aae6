package content

import "fmt"

// ConfigurationError reports a catalog or answer wiring problem found at startup.
// It is fatal: the process must not start serving with a broken catalog.
type ConfigurationError struct {
	Source string // file path or waypoint id
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
