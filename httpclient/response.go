package httpclient

import (
	"maps"
	"net/http"
	"strings"
)

// Response is the immutable outcome of one physical HTTP exchange.
type Response struct {
	statusCode int
	body       string
	headers    map[string]string
}

// NewResponse copies headers; later changes to the argument do not affect the Response.
func NewResponse(statusCode int, body string, headers map[string]string) *Response {
	copied := make(map[string]string, len(headers))
	maps.Copy(copied, headers)
	return &Response{statusCode: statusCode, body: body, headers: copied}
}

func newResponseFromHTTP(resp *http.Response, body string) *Response {
	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return &Response{statusCode: resp.StatusCode, body: body, headers: headers}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Body returns the response body text.
func (r *Response) Body() string { return r.body }

// Headers returns a copy of the response headers.
func (r *Response) Headers() map[string]string {
	copied := make(map[string]string, len(r.headers))
	maps.Copy(copied, r.headers)
	return copied
}

// Header looks up key exactly, then case-insensitively.
func (r *Response) Header(key string) (string, bool) {
	if v, ok := r.headers[key]; ok {
		return v, true
	}
	for k, v := range r.headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Equal reports value equality of status, body and headers.
func (r *Response) Equal(other *Response) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.statusCode == other.statusCode &&
		r.body == other.body &&
		maps.Equal(r.headers, other.headers)
}
