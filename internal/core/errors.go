// Package core provides the wire types and error taxonomy shared across
// the proxy.
package core

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies an error into the client-facing taxonomy.
type ErrorKind string

const (
	// ErrorKindInvalidRequest indicates a client-fixable error (400)
	ErrorKindInvalidRequest ErrorKind = "invalid_request_error"
	// ErrorKindAuthentication indicates a credential problem (401)
	ErrorKindAuthentication ErrorKind = "authentication_error"
	// ErrorKindRateLimit indicates provider throttling or quota exhaustion (429)
	ErrorKindRateLimit ErrorKind = "rate_limit_exceeded"
	// ErrorKindAPI indicates an internal or provider-internal error (500)
	ErrorKindAPI ErrorKind = "api_error"
)

// GatewayError is the normalized error surfaced to clients.
type GatewayError struct {
	Kind       ErrorKind `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case ErrorKindAuthentication:
		return http.StatusUnauthorized
	case ErrorKindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the OpenAI-compatible error envelope.
func (e *GatewayError) ToJSON() map[string]interface{} {
	inner := map[string]interface{}{
		"type":    e.Kind,
		"message": e.Message,
	}
	if e.Param != "" {
		inner["param"] = e.Param
	}
	if e.Code != "" {
		inner["code"] = e.Code
	}
	return map[string]interface{}{"error": inner}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Kind:       ErrorKindInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewValidationError creates an invalid request error naming the offending field.
func NewValidationError(param, message string) *GatewayError {
	return &GatewayError{
		Kind:       ErrorKindInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Param:      param,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *GatewayError {
	return &GatewayError{
		Kind:       ErrorKindAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Code:       "invalid_api_key",
	}
}

// NewAPIError creates an internal error (500)
func NewAPIError(message string, err error) *GatewayError {
	return &GatewayError{
		Kind:       ErrorKindAPI,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Code:       "internal_error",
		Err:        err,
	}
}

// errorMapping pins a provider exception name to its normalized form.
type errorMapping struct {
	status int
	kind   ErrorKind
	code   string
}

// providerErrorTable maps Bedrock exception identifiers to the normalized
// taxonomy. Unrecognized identifiers fall through to 500/api_error.
var providerErrorTable = map[string]errorMapping{
	"ValidationException":           {http.StatusBadRequest, ErrorKindInvalidRequest, "validation_error"},
	"AccessDeniedException":         {http.StatusUnauthorized, ErrorKindAuthentication, "invalid_api_key"},
	"ThrottlingException":           {http.StatusTooManyRequests, ErrorKindRateLimit, "rate_limit_exceeded"},
	"ServiceQuotaExceededException": {http.StatusTooManyRequests, ErrorKindRateLimit, "quota_exceeded"},
	"InternalServerException":       {http.StatusInternalServerError, ErrorKindAPI, "internal_error"},
	"InternalFailureException":      {http.StatusInternalServerError, ErrorKindAPI, "internal_error"},
	"ModelNotAvailableException":    {http.StatusBadRequest, ErrorKindInvalidRequest, "model_not_found"},
	"ResourceNotFoundException":     {http.StatusBadRequest, ErrorKindInvalidRequest, "model_not_found"},
}

// kindMessagePrefix templates the client-facing message per kind. The
// original provider message is always appended for diagnosability.
var kindMessagePrefix = map[ErrorKind]string{
	ErrorKindInvalidRequest: "provider rejected the request",
	ErrorKindAuthentication: "provider denied access",
	ErrorKindRateLimit:      "provider throttled the request",
	ErrorKindAPI:            "provider reported an internal error",
}

// TranslateProviderError maps a provider exception identifier and message
// to a normalized GatewayError.
func TranslateProviderError(exception, providerMessage string) *GatewayError {
	m, ok := providerErrorTable[exception]
	if !ok {
		m = errorMapping{http.StatusInternalServerError, ErrorKindAPI, "unknown_error"}
	}

	msg := kindMessagePrefix[m.kind]
	if providerMessage != "" {
		msg = fmt.Sprintf("%s: %s", msg, providerMessage)
	} else if exception != "" {
		msg = fmt.Sprintf("%s: %s", msg, exception)
	}

	return &GatewayError{
		Kind:       m.kind,
		Message:    msg,
		StatusCode: m.status,
		Code:       m.code,
	}
}
