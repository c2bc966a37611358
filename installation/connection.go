package installation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConnectionString is wrapped by every connection string parse failure.
var ErrInvalidConnectionString = errors.New("installation: invalid connection string")

// ConnectionString holds the parts of a hub connection string.
type ConnectionString struct {
	// Endpoint is the https base URL of the namespace, with a trailing slash.
	Endpoint            string
	SharedAccessKeyName string
	SharedAccessKey     string
}

// ParseConnectionString parses
// "Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=...;SharedAccessKey=...".
// Keys are case-insensitive and values may contain '='.
func ParseConnectionString(raw string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("%w: segment %q has no value", ErrInvalidConnectionString, key)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "endpoint":
			cs.Endpoint = value
		case "sharedaccesskeyname":
			cs.SharedAccessKeyName = value
		case "sharedaccesskey":
			cs.SharedAccessKey = value
		}
	}

	if cs.Endpoint == "" {
		return ConnectionString{}, fmt.Errorf("%w: Endpoint is required", ErrInvalidConnectionString)
	}
	if cs.SharedAccessKeyName == "" || cs.SharedAccessKey == "" {
		return ConnectionString{}, fmt.Errorf("%w: SharedAccessKeyName and SharedAccessKey are required", ErrInvalidConnectionString)
	}

	endpoint, err := url.Parse(cs.Endpoint)
	if err != nil || endpoint.Host == "" {
		return ConnectionString{}, fmt.Errorf("%w: malformed Endpoint %q", ErrInvalidConnectionString, cs.Endpoint)
	}
	switch endpoint.Scheme {
	case "sb", "https":
		endpoint.Scheme = "https"
	case "http":
	default:
		return ConnectionString{}, fmt.Errorf("%w: unsupported Endpoint scheme %q", ErrInvalidConnectionString, endpoint.Scheme)
	}
	if !strings.HasSuffix(endpoint.Path, "/") {
		endpoint.Path += "/"
	}
	cs.Endpoint = endpoint.String()
	return cs, nil
}
