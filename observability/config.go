package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout is a special endpoint value that outputs to stdout (for local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// CompressionGzip specifies gzip compression for OTLP export.
	CompressionGzip = "gzip"

	// CompressionNone specifies no compression for OTLP export.
	CompressionNone = "none"

	// TemporalityDelta reports the change in value since the last export.
	TemporalityDelta = "delta"

	// TemporalityCumulative reports the total value since the start of the measurement.
	TemporalityCumulative = "cumulative"

	// HistogramAggregationExponential selects base-2 exponential histograms.
	HistogramAggregationExponential = "exponential"

	// HistogramAggregationExplicit selects fixed bucket boundaries.
	HistogramAggregationExplicit = "explicit"

	// EnvironmentDevelopment is the default environment name for development mode.
	EnvironmentDevelopment = "development"
)

// BoolPtr returns a pointer to the provided bool value.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

func cloneHeaderMap(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	clone := make(map[string]string, len(headers))
	maps.Copy(clone, headers)
	return clone
}

// Config defines the configuration for observability features.
// It is read from the "observability" section of the application config.
type Config struct {
	// Enabled controls whether observability is active.
	// When false, all observability operations become no-ops.
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`

	// Service contains service identification metadata.
	Service ServiceConfig `koanf:"service" mapstructure:"service"`

	// Environment indicates the deployment environment (e.g., production, staging, development).
	Environment string `koanf:"environment" mapstructure:"environment"`

	// Trace contains tracing-specific configuration.
	Trace TraceConfig `koanf:"trace" mapstructure:"trace"`

	// Metrics contains metrics-specific configuration.
	Metrics MetricsConfig `koanf:"metrics" mapstructure:"metrics"`
}

// ServiceConfig contains service identification metadata.
type ServiceConfig struct {
	// Name identifies the service in traces and metrics.
	// This is required when observability is enabled.
	Name string `koanf:"name" mapstructure:"name"`

	Version string `koanf:"version" mapstructure:"version"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	// Enabled defaults to true when observability is enabled.
	Enabled *bool `koanf:"enabled" mapstructure:"enabled"`

	// Endpoint is "stdout", an http(s) URL for ProtocolHTTP, or host:port for ProtocolGRPC.
	Endpoint string `koanf:"endpoint" mapstructure:"endpoint"`

	Protocol    string            `koanf:"protocol" mapstructure:"protocol"`
	Insecure    bool              `koanf:"insecure" mapstructure:"insecure"`
	Headers     map[string]string `koanf:"headers" mapstructure:"headers"`
	Compression string            `koanf:"compression" mapstructure:"compression"`

	Sample SampleConfig `koanf:"sample" mapstructure:"sample"`
	Batch  BatchConfig  `koanf:"batch" mapstructure:"batch"`
	Export ExportConfig `koanf:"export" mapstructure:"export"`
}

// SampleConfig holds the trace sampling ratio.
type SampleConfig struct {
	// Rate is in [0.0, 1.0]; nil means 1.0. An explicit 0.0 drops every span.
	Rate *float64 `koanf:"rate" mapstructure:"rate"`
}

// BatchConfig tunes the batch span processor.
type BatchConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Size    int           `koanf:"size" mapstructure:"size"`
}

// ExportConfig bounds a single export.
type ExportConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	// Enabled defaults to true when observability is enabled.
	Enabled *bool `koanf:"enabled" mapstructure:"enabled"`

	Endpoint string `koanf:"endpoint" mapstructure:"endpoint"`

	// Protocol falls back to the trace protocol when empty.
	Protocol string            `koanf:"protocol" mapstructure:"protocol"`
	Insecure bool              `koanf:"insecure" mapstructure:"insecure"`
	Headers  map[string]string `koanf:"headers" mapstructure:"headers"`

	Compression          string        `koanf:"compression" mapstructure:"compression"`
	Temporality          string        `koanf:"temporality" mapstructure:"temporality"`
	HistogramAggregation string        `koanf:"histogramaggregation" mapstructure:"histogramaggregation"`
	Interval             time.Duration `koanf:"interval" mapstructure:"interval"`
	Export               ExportConfig  `koanf:"export" mapstructure:"export"`
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

func (c *Config) isDevelopment(endpoint string) bool {
	return c.Environment == EnvironmentDevelopment || endpoint == EndpointStdout
}

func (c *Config) applyTraceDefaults() {
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	// Only set when nil. An explicit false is preserved.
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.Endpoint == EndpointStdout {
		c.Trace.Insecure = true
	}
	if c.Trace.Compression == "" {
		c.Trace.Compression = CompressionGzip
	}
	if c.Trace.Sample.Rate == nil {
		c.Trace.Sample.Rate = Float64Ptr(1.0)
	}
	c.Trace.Headers = cloneHeaderMap(c.Trace.Headers)

	// Development: 500ms for near-instant span visibility
	if c.Trace.Batch.Timeout == 0 {
		if c.isDevelopment(c.Trace.Endpoint) {
			c.Trace.Batch.Timeout = 500 * time.Millisecond
		} else {
			c.Trace.Batch.Timeout = 5 * time.Second
		}
	}
	if c.Trace.Batch.Size == 0 {
		c.Trace.Batch.Size = 512
	}
	if c.Trace.Export.Timeout == 0 {
		if c.isDevelopment(c.Trace.Endpoint) {
			c.Trace.Export.Timeout = 10 * time.Second
		} else {
			c.Trace.Export.Timeout = 60 * time.Second
		}
	}
}

func (c *Config) applyMetricsDefaults() {
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Protocol == "" {
		c.Metrics.Protocol = c.Trace.Protocol
	}
	if c.Metrics.Compression == "" {
		c.Metrics.Compression = CompressionGzip
	}
	if c.Metrics.Temporality == "" {
		c.Metrics.Temporality = TemporalityCumulative
	}
	if c.Metrics.HistogramAggregation == "" {
		c.Metrics.HistogramAggregation = HistogramAggregationExplicit
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	c.Metrics.Headers = cloneHeaderMap(c.Metrics.Headers)

	if c.Metrics.Export.Timeout == 0 {
		if c.isDevelopment(c.Metrics.Endpoint) {
			c.Metrics.Export.Timeout = 10 * time.Second
		} else {
			c.Metrics.Export.Timeout = 60 * time.Second
		}
	}
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if err := c.validateTraceConfig(); err != nil {
		return err
	}
	return c.validateMetricsConfig()
}

// validateEndpointFormat requires host:port for gRPC and an http(s) URL for HTTP.
func validateEndpointFormat(endpoint, protocol string) error {
	if endpoint == EndpointStdout || endpoint == "" {
		return nil
	}

	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")

	if protocol == ProtocolGRPC && hasScheme {
		return ErrInvalidEndpointFormat
	}
	if protocol == ProtocolHTTP && !hasScheme {
		return ErrInvalidEndpointFormat
	}
	return nil
}

func validateProtocol(protocol string) error {
	switch protocol {
	case "", ProtocolHTTP, ProtocolGRPC:
		return nil
	default:
		return ErrInvalidProtocol
	}
}

func validateCompression(compression string) error {
	switch compression {
	case "", CompressionGzip, CompressionNone:
		return nil
	default:
		return ErrInvalidCompression
	}
}

func (c *Config) validateTraceConfig() error {
	if c.Trace.Sample.Rate != nil {
		rate := *c.Trace.Sample.Rate
		if rate < 0.0 || rate > 1.0 {
			return ErrInvalidSampleRate
		}
	}
	if err := validateCompression(c.Trace.Compression); err != nil {
		return err
	}
	if err := validateProtocol(c.Trace.Protocol); err != nil {
		return err
	}

	protocol := c.Trace.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	return validateEndpointFormat(c.Trace.Endpoint, protocol)
}

func (c *Config) validateMetricsConfig() error {
	if c.Metrics.Enabled != nil && !*c.Metrics.Enabled {
		return nil
	}
	if err := validateCompression(c.Metrics.Compression); err != nil {
		return err
	}

	switch c.Metrics.Temporality {
	case "", TemporalityDelta, TemporalityCumulative:
	default:
		return ErrInvalidTemporality
	}

	switch c.Metrics.HistogramAggregation {
	case "", HistogramAggregationExponential, HistogramAggregationExplicit:
	default:
		return ErrInvalidHistogramAggregation
	}

	protocol := c.Metrics.Protocol
	if protocol == "" {
		protocol = c.Trace.Protocol
	}
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	if err := validateProtocol(protocol); err != nil {
		return err
	}
	return validateEndpointFormat(c.Metrics.Endpoint, protocol)
}
