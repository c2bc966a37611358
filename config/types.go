package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/pushbricks/pushbricks/httpclient"
)

// Config represents the overall application configuration structure.
// The embedded koanf.Koanf instance allows for flexible access to
// sections this struct does not model, such as observability.
type Config struct {
	App        AppConfig        `koanf:"app" json:"app" yaml:"app"`
	Log        LogConfig        `koanf:"log" json:"log" yaml:"log"`
	HTTPClient HTTPClientConfig `koanf:"httpclient" json:"httpclient" yaml:"httpclient"`
	Hub        HubConfig        `koanf:"hub" json:"hub" yaml:"hub"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig identifies the running program.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name"`
	Version string `koanf:"version" json:"version" yaml:"version"`
	Env     string `koanf:"env" json:"env" yaml:"env"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// HTTPClientConfig mirrors httpclient.Config.
type HTTPClientConfig struct {
	Timeout            time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	Compression        bool          `koanf:"compression" json:"compression" yaml:"compression"`
	MaxConcurrency     int           `koanf:"maxconcurrency" json:"maxconcurrency" yaml:"maxconcurrency"`
	LogPayloads        bool          `koanf:"logpayloads" json:"logpayloads" yaml:"logpayloads"`
	MaxPayloadLogBytes int           `koanf:"maxpayloadlogbytes" json:"maxpayloadlogbytes" yaml:"maxpayloadlogbytes"`
	Retry              RetryConfig   `koanf:"retry" json:"retry" yaml:"retry"`
}

// RetryConfig controls the retry decorator.
type RetryConfig struct {
	Enabled   bool            `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Intervals []time.Duration `koanf:"intervals" json:"intervals" yaml:"intervals"`
}

// HubConfig locates the notification hub installations API.
type HubConfig struct {
	ConnectionString string        `koanf:"connectionstring" json:"connectionstring" yaml:"connectionstring"`
	Name             string        `koanf:"name" json:"name" yaml:"name"`
	APIVersion       string        `koanf:"apiversion" json:"apiversion" yaml:"apiversion"`
	TokenTTL         time.Duration `koanf:"tokenttl" json:"tokenttl" yaml:"tokenttl"`
	// RateLimit is in requests per second; zero disables limiting.
	RateLimit float64 `koanf:"ratelimit" json:"ratelimit" yaml:"ratelimit"`
	Burst     int     `koanf:"burst" json:"burst" yaml:"burst"`
}

// IsConfigured reports whether hub commands have what they need.
func (h *HubConfig) IsConfigured() bool {
	return h.ConnectionString != "" && h.Name != ""
}

// ClientConfig converts the section into the settings httpclient.NewBuilder consumes.
func (c *HTTPClientConfig) ClientConfig() *httpclient.Config {
	return &httpclient.Config{
		Timeout:            c.Timeout,
		Compression:        c.Compression,
		MaxConcurrency:     c.MaxConcurrency,
		Retry:              c.Retry.Enabled,
		RetryIntervals:     append([]time.Duration(nil), c.Retry.Intervals...),
		LogPayloads:        c.LogPayloads,
		MaxPayloadLogBytes: c.MaxPayloadLogBytes,
	}
}
