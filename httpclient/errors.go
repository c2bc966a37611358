package httpclient

import (
	"errors"
	"fmt"
)

// ErrorType classifies client errors.
type ErrorType int

const (
	// NetworkError is a transport failure before any status code was received.
	NetworkError ErrorType = iota
	// TimeoutError is a transport timeout.
	TimeoutError
	// HTTPError is a completed exchange with a non-2xx status.
	HTTPError
	// ValidationError is a malformed request rejected before sending.
	ValidationError
	// TemplateError is a failure of the caller's CallTemplate.
	TemplateError
	// SaturationError means the worker pool refused the attempt.
	SaturationError
)

func (t ErrorType) String() string {
	switch t {
	case NetworkError:
		return "network"
	case TimeoutError:
		return "timeout"
	case HTTPError:
		return "http"
	case ValidationError:
		return "validation"
	case TemplateError:
		return "template"
	case SaturationError:
		return "saturation"
	default:
		return "unknown"
	}
}

// ErrWorkersSaturated is wrapped by saturation errors.
var ErrWorkersSaturated = errors.New("httpclient: worker pool saturated")

// ClientError is implemented by every error the client delivers to OnCallFailed.
type ClientError interface {
	error
	Type() ErrorType
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(message string, err error) ClientError {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message string
	err     error
}

// NewTimeoutError wraps a transport timeout.
func NewTimeoutError(message string, err error) ClientError {
	return &timeoutError{message: message, err: err}
}

func (e *timeoutError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("timeout error: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("timeout error: %s", e.message)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return e.err }

type httpError struct {
	response *Response
}

// NewHTTPError wraps a non-2xx response.
func NewHTTPError(resp *Response) ClientError {
	if resp == nil {
		resp = NewResponse(0, "", nil)
	}
	return &httpError{response: resp}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: status %d", e.response.StatusCode())
}

func (e *httpError) Type() ErrorType { return HTTPError }

// Response returns the response that caused the error.
func (e *httpError) Response() *Response { return e.response }

// StatusCode returns the response status code.
func (e *httpError) StatusCode() int { return e.response.StatusCode() }

// Body returns the response body text.
func (e *httpError) Body() string { return e.response.Body() }

// Is makes errors.Is match HTTP errors carrying equal responses.
func (e *httpError) Is(target error) bool {
	t, ok := target.(*httpError)
	return ok && e.response.Equal(t.response)
}

type validationError struct {
	message string
	field   string
}

// NewValidationError reports a request rejected before sending.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

type templateError struct {
	message string
	stage   string
	err     error
}

// NewTemplateError wraps a CallTemplate failure at the given stage.
func NewTemplateError(message, stage string, err error) ClientError {
	return &templateError{message: message, stage: stage, err: err}
}

func (e *templateError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("template error (%s): %s: %v", e.stage, e.message, e.err)
	}
	return fmt.Sprintf("template error (%s): %s", e.stage, e.message)
}

func (e *templateError) Type() ErrorType { return TemplateError }
func (e *templateError) Unwrap() error   { return e.err }

type saturationError struct {
	err error
}

// NewSaturationError reports that no worker was available for an attempt.
func NewSaturationError(err error) ClientError {
	if err == nil {
		err = ErrWorkersSaturated
	}
	return &saturationError{err: err}
}

func (e *saturationError) Error() string {
	return fmt.Sprintf("saturation error: %v", e.err)
}

func (e *saturationError) Type() ErrorType { return SaturationError }
func (e *saturationError) Unwrap() error   { return e.err }

// IsErrorType reports whether err, or an error it wraps, is a ClientError of type t.
func IsErrorType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	var ce ClientError
	if errors.As(err, &ce) {
		return ce.Type() == t
	}
	return false
}

// IsHTTPStatusError reports whether err is an HTTP error with the given status.
func IsHTTPStatusError(err error, statusCode int) bool {
	resp, ok := ResponseFromError(err)
	return ok && resp.StatusCode() == statusCode
}

// ResponseFromError extracts the response carried by an HTTP error.
func ResponseFromError(err error) (*Response, bool) {
	var he *httpError
	if errors.As(err, &he) {
		return he.response, true
	}
	return nil, false
}

// HTTPErrorsEqual reports whether a and b are both HTTP errors carrying equal responses.
func HTTPErrorsEqual(a, b error) bool {
	ra, okA := ResponseFromError(a)
	rb, okB := ResponseFromError(b)
	return okA && okB && ra.Equal(rb)
}

// IsSuccessStatus reports whether statusCode is in [200,300).
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
