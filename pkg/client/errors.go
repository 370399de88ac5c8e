package client

import (
	"fmt"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
)

// ErrorClass represents a classification of failed fetches.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassTimeout represents calls that hit the per-call timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents 2xx responses whose body is not a document.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassUnexpected represents 1xx/3xx responses that were not followed.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// APIError is returned by Fetch for every failed call.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis api %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis api %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Detail exposes the response behind the error to failure results.
func (e *APIError) Detail() *analysis.ErrorDetail {
	return &analysis.ErrorDetail{
		StatusCode: e.StatusCode,
		Body:       e.Body,
		Class:      string(e.ErrorClass),
	}
}
