package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Outcome is the classification of a status code or failure.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetriable
	OutcomeImmediateFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetriable:
		return "retriable_failure"
	default:
		return "immediate_failure"
	}
}

// statusTable is read-only after init.
var statusTable = map[int]Outcome{
	200: OutcomeSuccess,
	201: OutcomeSuccess,
	204: OutcomeSuccess,

	403: OutcomeRetriable, // rate-limited quota
	408: OutcomeRetriable,
	429: OutcomeRetriable,
	500: OutcomeRetriable,
	503: OutcomeRetriable,
	504: OutcomeRetriable,

	400: OutcomeImmediateFailure,
	401: OutcomeImmediateFailure,
	404: OutcomeImmediateFailure,
	405: OutcomeImmediateFailure,
	409: OutcomeImmediateFailure,
	410: OutcomeImmediateFailure,
	412: OutcomeImmediateFailure,
	413: OutcomeImmediateFailure,
}

// ClassifyStatus maps a status code to its outcome. Codes missing from the
// table fall back to 2xx success, 5xx retriable, anything else immediate.
func ClassifyStatus(statusCode int) Outcome {
	if outcome, ok := statusTable[statusCode]; ok {
		return outcome
	}
	switch {
	case statusCode >= 200 && statusCode <= 299:
		return OutcomeSuccess
	case statusCode >= 500 && statusCode <= 599:
		return OutcomeRetriable
	default:
		return OutcomeImmediateFailure
	}
}

// ClassifyError maps a delivered failure to its outcome.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if resp, ok := ResponseFromError(err); ok {
		return ClassifyStatus(resp.StatusCode())
	}
	if IsRecoverable(err) {
		return OutcomeRetriable
	}
	return OutcomeImmediateFailure
}

// IsRecoverable reports whether err is worth another attempt: transport
// failures always are, HTTP errors only with a retriable status.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if resp, ok := ResponseFromError(err); ok {
		return ClassifyStatus(resp.StatusCode()) == OutcomeRetriable
	}
	if IsErrorType(err, NetworkError) || IsErrorType(err, TimeoutError) {
		return true
	}
	if IsErrorType(err, ValidationError) || IsErrorType(err, TemplateError) || IsErrorType(err, SaturationError) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return isTransportError(err)
}

func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
