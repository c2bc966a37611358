package httpclient

import "time"

// CompressionThreshold is the body size, in bytes, from which bodies are gzip-compressed.
const CompressionThreshold = 1400

const (
	defaultTimeout            = 30 * time.Second
	defaultMaxConcurrency     = 64
	defaultMaxPayloadLogBytes = 1024
)

// DefaultRetryIntervals is the base backoff table; each retry waits between
// half the interval and the full interval.
var DefaultRetryIntervals = []time.Duration{
	10 * time.Second,
	5 * time.Minute,
	20 * time.Minute,
}

// Config holds the client chain settings.
type Config struct {
	// Timeout bounds one physical exchange, connect to last body byte.
	Timeout time.Duration
	// Compression enables gzip for bodies of CompressionThreshold bytes or more.
	Compression bool
	// MaxConcurrency caps attempts running at once; further attempts fail with SaturationError.
	MaxConcurrency int
	// Retry wraps the transport in a Retryer.
	Retry bool
	// RetryIntervals overrides DefaultRetryIntervals.
	RetryIntervals []time.Duration
	// LogPayloads enables debug-level logging of headers and body previews.
	LogPayloads bool
	// MaxPayloadLogBytes caps logged body bytes when LogPayloads is enabled.
	MaxPayloadLogBytes int
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() *Config {
	return &Config{
		Timeout:            defaultTimeout,
		Compression:        true,
		MaxConcurrency:     defaultMaxConcurrency,
		Retry:              true,
		RetryIntervals:     append([]time.Duration(nil), DefaultRetryIntervals...),
		MaxPayloadLogBytes: defaultMaxPayloadLogBytes,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = defaultMaxConcurrency
	}
	if len(out.RetryIntervals) == 0 {
		out.RetryIntervals = append([]time.Duration(nil), DefaultRetryIntervals...)
	}
	if out.MaxPayloadLogBytes <= 0 {
		out.MaxPayloadLogBytes = defaultMaxPayloadLogBytes
	}
	return &out
}
