package httpclient

import (
	"net/http"
	"time"

	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/scheduler"
)

// Builder assembles the decorator chain
// RequestIDClient → Retryer → LoggingClient → DefaultClient.
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *http.Client
	scheduler  scheduler.Scheduler
}

// NewBuilder creates a builder with DefaultConfig.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: log,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg *Config) *Builder {
	if cfg != nil {
		copied := *cfg
		b.config = &copied
	}
	return b
}

// WithTimeout sets the per-exchange timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithCompression toggles gzip of large bodies.
func (b *Builder) WithCompression(enabled bool) *Builder {
	b.config.Compression = enabled
	return b
}

// WithMaxConcurrency bounds concurrent exchanges.
func (b *Builder) WithMaxConcurrency(n int) *Builder {
	b.config.MaxConcurrency = n
	return b
}

// WithRetry toggles the Retryer and, when intervals are given, replaces the table.
func (b *Builder) WithRetry(enabled bool, intervals ...time.Duration) *Builder {
	b.config.Retry = enabled
	if len(intervals) > 0 {
		b.config.RetryIntervals = append([]time.Duration(nil), intervals...)
	}
	return b
}

// WithPayloadLogging enables debug logging of headers and body previews.
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	b.config.MaxPayloadLogBytes = maxBytes
	return b
}

// WithHTTPClient sets the underlying *http.Client.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithScheduler sets the looper shared by the transport and the retryer.
func (b *Builder) WithScheduler(s scheduler.Scheduler) *Builder {
	b.scheduler = s
	return b
}

// Build returns the assembled chain.
func (b *Builder) Build() Client {
	cfg := b.config.withDefaults()
	log := b.logger
	if log == nil {
		log = logger.Nop()
	}
	sched := b.scheduler
	if sched == nil {
		sched = scheduler.NewLooper(log)
	}

	var client Client = NewDefaultClient(cfg, log,
		WithHTTPClient(b.httpClient),
		WithScheduler(sched),
	)
	client = NewLoggingClient(client, log, cfg)
	if cfg.Retry {
		client = NewRetryer(client, sched, log, WithRetryIntervals(cfg.RetryIntervals...))
	}
	return NewRequestIDClient(client)
}
