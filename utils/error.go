package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ConfigurationError means a provider (or the pipeline around it) is unusable as
// configured. Surfaced to the caller immediately; never retried automatically.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Provider, e.Reason)
	}
	return "configuration error: " + e.Reason
}

func NewConfigurationError(provider, reason string) error {
	return &ConfigurationError{Provider: provider, Reason: reason}
}

// ValidationError means bad caller input, rejected before any state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Reason }

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// ConsistencyError means derived data no longer matches what was recorded
// (e.g. a hash mismatch across the queue-to-submit gap).
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string { return "consistency error: " + e.Reason }

func NewConsistencyError(reason string) error {
	return &ConsistencyError{Reason: reason}
}

// TransientProviderError wraps a network/provider failure that is safe to retry
// up to the attempt ceiling.
type TransientProviderError struct {
	Err error
}

func (e *TransientProviderError) Error() string { return "provider error: " + e.Err.Error() }

func (e *TransientProviderError) Unwrap() error { return e.Err }

func NewTransientProviderError(err error) error {
	return &TransientProviderError{Err: err}
}

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
