package installation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pushbricks/pushbricks/httpclient"
	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/netadapter"
)

// DefaultAPIVersion is the hub REST API version used for installations.
const DefaultAPIVersion = "2020-06"

const headerAuthorization = "Authorization"

// ErrNotFound is returned when the hub has no installation with the given ID.
var ErrNotFound = errors.New("installation: not found")

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion overrides DefaultAPIVersion.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithTokenTTL sets the lifetime of generated SAS tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.tokenTTL = ttl
	}
}

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithAdapterOptions passes options to the underlying netadapter.Adapter.
func WithAdapterOptions(opts ...netadapter.Option) Option {
	return func(c *Client) {
		c.adapterOpts = append(c.adapterOpts, opts...)
	}
}

// Client manages installations of one hub.
type Client struct {
	endpoint   string
	hub        string
	apiVersion string
	tokenTTL   time.Duration

	tokens      *TokenProvider
	validator   *Validator
	adapter     *netadapter.Adapter
	adapterOpts []netadapter.Option
	log         logger.Logger
}

// NewClient creates a Client sending through chain.
func NewClient(cs ConnectionString, hubName string, chain httpclient.Client, opts ...Option) (*Client, error) {
	if hubName == "" {
		return nil, errors.New("installation: hub name is required")
	}
	if chain == nil {
		return nil, errors.New("installation: HTTP client is required")
	}
	if cs.Endpoint == "" || cs.SharedAccessKeyName == "" || cs.SharedAccessKey == "" {
		return nil, fmt.Errorf("%w: incomplete connection string", ErrInvalidConnectionString)
	}

	c := &Client{
		endpoint:   cs.Endpoint,
		hub:        hubName,
		apiVersion: DefaultAPIVersion,
		validator:  NewValidator(),
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenProvider(cs.SharedAccessKeyName, cs.SharedAccessKey, c.tokenTTL)
	c.adapter = netadapter.New(chain, append([]netadapter.Option{netadapter.WithLogger(c.log)}, c.adapterOpts...)...)
	return c, nil
}

// URL returns the REST address of the installation.
func (c *Client) URL(installationID string) string {
	return fmt.Sprintf("%s%s/installations/%s?api-version=%s",
		c.endpoint, url.PathEscape(c.hub), url.PathEscape(installationID), url.QueryEscape(c.apiVersion))
}

// Upsert creates or replaces inst. The body is serialized and signed again on every attempt.
func (c *Client) Upsert(ctx context.Context, inst *Installation) error {
	if inst == nil {
		return errors.New("installation: installation is required")
	}
	if err := c.validator.Validate(inst); err != nil {
		return err
	}

	doc := *inst
	template := &signedTemplate{
		tokens: c.tokens,
		body: func() (string, error) {
			data, err := json.Marshal(&doc)
			if err != nil {
				return "", fmt.Errorf("marshal installation: %w", err)
			}
			return string(data), nil
		},
	}

	resp, err := c.adapter.Put(ctx, &httpclient.Request{URL: c.URL(inst.InstallationID), Template: template})
	if err != nil {
		return fmt.Errorf("upsert installation %s: %w", inst.InstallationID, err)
	}
	c.log.Debug().
		Str("installation_id", inst.InstallationID).
		Str("platform", inst.Platform).
		Int("status", resp.StatusCode()).
		Msg("Installation upserted")
	return nil
}

// Delete removes the installation. Deleting an unknown ID is not an error.
func (c *Client) Delete(ctx context.Context, installationID string) error {
	if installationID == "" {
		return errors.New("installation: installation ID is required")
	}

	_, err := c.adapter.Delete(ctx, &httpclient.Request{
		URL:      c.URL(installationID),
		Template: &signedTemplate{tokens: c.tokens},
	})
	if err != nil && !httpclient.IsHTTPStatusError(err, http.StatusNotFound) {
		return fmt.Errorf("delete installation %s: %w", installationID, err)
	}
	c.log.Debug().Str("installation_id", installationID).Msg("Installation deleted")
	return nil
}

// Get fetches the installation. Unknown IDs return ErrNotFound.
func (c *Client) Get(ctx context.Context, installationID string) (*Installation, error) {
	if installationID == "" {
		return nil, errors.New("installation: installation ID is required")
	}

	resp, err := c.adapter.Get(ctx, &httpclient.Request{
		URL:      c.URL(installationID),
		Template: &signedTemplate{tokens: c.tokens},
	})
	if err != nil {
		if httpclient.IsHTTPStatusError(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, installationID)
		}
		return nil, fmt.Errorf("get installation %s: %w", installationID, err)
	}

	var inst Installation
	if err := json.Unmarshal([]byte(resp.Body()), &inst); err != nil {
		return nil, fmt.Errorf("decode installation %s: %w", installationID, err)
	}
	return &inst, nil
}

// signedTemplate builds the optional body and stamps a fresh SAS token on each attempt.
type signedTemplate struct {
	tokens *TokenProvider
	body   func() (string, error)
}

func (t *signedTemplate) BuildRequestBody() (string, error) {
	if t.body == nil {
		return "", nil
	}
	return t.body()
}

func (t *signedTemplate) OnBeforeCalling(url string, headers map[string]string) {
	headers[headerAuthorization] = t.tokens.Token(url)
}
