// Package ai defines the inference service used to classify listings.
package ai

import (
	"context"
	"fmt"
)

// Generator turns a prompt into the model's textual answer. Implementations
// are safe for concurrent use.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// TransportError is a network failure talking to the inference service.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("inference request timed out: %v", e.Err)
	}
	return fmt.Sprintf("inference request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError is an error status returned by the inference service.
type ServiceError struct {
	Code    int
	Status  string
	Message string
	// Details carries the structured error details, such as RetryInfo.
	Details []map[string]any
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference service error %d %s", e.Code, e.Status)
	}
	return fmt.Sprintf("inference service error %d %s: %s", e.Code, e.Status, e.Message)
}

// Temporary reports whether the service asked for the call to be retried.
func (e *ServiceError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}
