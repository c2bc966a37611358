package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pushbricks/pushbricks/config"
	"github.com/pushbricks/pushbricks/httpclient"
	"github.com/pushbricks/pushbricks/installation"
	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/netadapter"
	"github.com/pushbricks/pushbricks/observability"
	"github.com/pushbricks/pushbricks/scheduler"
)

// session is everything one command invocation needs, torn down by Close.
type session struct {
	cfg    *config.Config
	log    logger.Logger
	obs    observability.Provider
	looper *scheduler.Looper
	chain  httpclient.Client
}

func newSession(opts *rootOptions, logOut io.Writer) (*session, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	pretty := cfg.Log.Pretty || opts.Pretty
	if pretty {
		logOut = zerolog.ConsoleWriter{Out: logOut, TimeFormat: time.RFC3339}
	}
	log := logger.NewWithWriter(logOut, strings.ToLower(level), nil)

	var obsCfg observability.Config
	if err := cfg.Unmarshal("observability", &obsCfg); err != nil {
		return nil, fmt.Errorf("observability config: %w", err)
	}
	if obsCfg.Service.Name == "" {
		obsCfg.Service.Name = cfg.App.Name
	}
	if obsCfg.Service.Version == "" {
		obsCfg.Service.Version = cfg.App.Version
	}
	if obsCfg.Environment == "" {
		obsCfg.Environment = cfg.App.Env
	}
	obs, err := observability.NewProvider(&obsCfg, observability.WithLogger(log))
	if err != nil {
		return nil, err
	}

	looper := scheduler.NewLooper(log)
	chain := httpclient.NewBuilder(log).
		WithConfig(cfg.HTTPClient.ClientConfig()).
		WithScheduler(looper).
		Build()

	return &session{cfg: cfg, log: log, obs: obs, looper: looper, chain: chain}, nil
}

func (s *session) adapterOptions() []netadapter.Option {
	opts := []netadapter.Option{netadapter.WithLogger(s.log)}
	if s.cfg.Hub.RateLimit > 0 {
		opts = append(opts, netadapter.WithRateLimit(rate.Limit(s.cfg.Hub.RateLimit), s.cfg.Hub.Burst))
	}
	return opts
}

func (s *session) adapter() *netadapter.Adapter {
	return netadapter.New(s.chain, s.adapterOptions()...)
}

func (s *session) installations() (*installation.Client, error) {
	hub := s.cfg.Hub
	if !hub.IsConfigured() {
		return nil, config.NewNotConfiguredError("hub", "hub.connectionstring")
	}

	cs, err := installation.ParseConnectionString(hub.ConnectionString)
	if err != nil {
		return nil, err
	}
	return installation.NewClient(cs, hub.Name, s.chain,
		installation.WithAPIVersion(hub.APIVersion),
		installation.WithTokenTTL(hub.TokenTTL),
		installation.WithLogger(s.log),
		installation.WithAdapterOptions(s.adapterOptions()...),
	)
}

// Close cancels outstanding calls, stops the looper and flushes telemetry.
func (s *session) Close() error {
	var errs []error
	if err := s.chain.Close(); err != nil {
		errs = append(errs, err)
	}
	s.looper.Close()
	if err := observability.Shutdown(s.obs, observability.DefaultShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession builds a session for the duration of fn.
func withSession(opts *rootOptions, logOut io.Writer, fn func(*session) error) (err error) {
	s, err := newSession(opts, logOut)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}
