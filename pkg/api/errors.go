package api

import (
	"errors"
	"fmt"
)

// Collection names used in validation messages.
const (
	CollectionEnergy  = "energy data"
	CollectionDevices = "device list"
	CollectionAlerts  = "alert list"
)

// NetworkError is returned when the backend could not be reached or answered
// with a non-2xx status. StatusCode is 0 for transport failures.
type NetworkError struct {
	Op         string
	StatusCode int
	// Body holds the start of the response body for non-2xx responses.
	Body string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the response body is not valid JSON.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid JSON response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when the response is valid JSON but doesn't
// have the expected shape, or when a request argument is invalid.
type ValidationError struct {
	Collection string
	Msg        string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err as "network", "parse" or "validation". It returns
// "other" for anything else and "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var netErr *NetworkError
	var parseErr *ParseError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &validationErr):
		return "validation"
	default:
		return "other"
	}
}
