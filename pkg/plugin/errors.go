package plugin

import (
	"errors"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
)

// ErrorKind classifies failures surfaced by the backends
type ErrorKind string

const (
	// ErrorKindTransport means the API could not be reached or its response not read
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindCancelled means the request was aborted before a response arrived,
	// usually because of TLS problems
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindApplication means Checkmk answered with an error
	ErrorKindApplication ErrorKind = "application"
	// ErrorKindConfigMismatch means the declared edition contradicts the server
	ErrorKindConfigMismatch ErrorKind = "config_mismatch"
	// ErrorKindPrecondition is a programming error in the caller
	ErrorKindPrecondition ErrorKind = "precondition"
	// ErrorKindConfiguration means the datasource settings are unusable
	ErrorKindConfiguration ErrorKind = "configuration"
)

const (
	msgRequestCancelled = "API request was cancelled. This has either happened because of a ssl protocol error " +
		"or because the connection was aborted. Make sure you are running at least Checkmk version 2.0."
	msgUnreadableResponse = "Could not read API response, make sure the URL you provided is correct."
	msgEditionMismatch    = "Mismatch between selected Checkmk edition and monitoring site edition"
)

// APIError is the error type returned by every backend operation
type APIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(kind ErrorKind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

func wrapAPIError(kind ErrorKind, message string, err error) *APIError {
	return &APIError{Kind: kind, Message: message, Err: err}
}

// errorKindOf returns the kind of err, ErrorKindTransport for foreign errors
func errorKindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrorKindTransport
}

// dataResponseStatus maps an error to the status reported to Grafana for a failed query
func dataResponseStatus(err error) backend.Status {
	switch errorKindOf(err) {
	case ErrorKindTransport, ErrorKindCancelled:
		return backend.StatusBadGateway
	case ErrorKindPrecondition, ErrorKindConfiguration:
		return backend.StatusInternal
	default:
		return backend.StatusBadRequest
	}
}
