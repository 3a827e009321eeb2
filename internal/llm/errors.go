package llm

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx reply from a provider
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d", e.StatusCode)
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

func (e *ServerError) Unwrap() error { return e.APIError }

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct {
	*APIError
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found: %s", e.Model, e.APIError.Error())
}

func (e *ModelNotFoundError) Unwrap() error { return e.APIError }

// BadRequestError indicates a 4xx request problem.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

func (e *BadRequestError) Unwrap() error { return e.APIError }

// UnreachableError indicates the provider could not be contacted.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// EmptyResponseError indicates a reply that carried no message at all.
type EmptyResponseError struct{ Provider string }

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s returned an empty response", e.Provider)
}

// TimeoutError indicates an attempt ran past the invoker's deadline.
type TimeoutError struct {
	After   string
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm call timed out after %s (attempt %d)", e.After, e.Attempt)
}

// Retryable reports whether another attempt may succeed
func Retryable(err error) bool {
	var unreachable *UnreachableError
	var server *ServerError
	var timeout *TimeoutError
	return errors.As(err, &unreachable) || errors.As(err, &server) || errors.As(err, &timeout)
}

// IsTimeout reports whether err is a deadline failure
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// classify maps an HTTP status to the matching typed error
func classify(apiErr *APIError, model string) error {
	switch {
	case apiErr.StatusCode == 404:
		return &ModelNotFoundError{APIError: apiErr, Model: model}
	case apiErr.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 401 && apiErr.StatusCode != 403 && apiErr.StatusCode != 429:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}
