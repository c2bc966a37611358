package observability

import "errors"

// Configuration errors returned by Config.Validate and NewProvider.
var (
	ErrNilConfig          = errors.New("observability: nil config")
	ErrMissingServiceName = errors.New("observability: service.name is required when enabled")
	ErrInvalidSampleRate  = errors.New("observability: trace.sample.rate must be within [0, 1]")
	ErrInvalidProtocol    = errors.New("observability: protocol must be http or grpc")
	// ErrInvalidEndpointFormat means a grpc endpoint carried a scheme or an
	// http endpoint lacked one.
	ErrInvalidEndpointFormat       = errors.New("observability: endpoint does not match protocol")
	ErrInvalidCompression          = errors.New("observability: compression must be gzip or none")
	ErrInvalidTemporality          = errors.New("observability: metrics.temporality must be delta or cumulative")
	ErrInvalidHistogramAggregation = errors.New("observability: metrics.histogramaggregation must be exponential or explicit")
)
