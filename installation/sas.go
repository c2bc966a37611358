package installation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTokenTTL = time.Hour

// TokenProvider signs hub resource URIs with a shared access key.
type TokenProvider struct {
	keyName string
	key     string
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenProvider creates a provider. A non-positive ttl means one hour.
func NewTokenProvider(keyName, key string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenProvider{keyName: keyName, key: key, ttl: ttl, now: time.Now}
}

// Token returns "SharedAccessSignature sr=..&sig=..&se=..&skn=.." for resourceURI.
// The query string of resourceURI is not signed.
func (p *TokenProvider) Token(resourceURI string) string {
	if i := strings.IndexByte(resourceURI, '?'); i >= 0 {
		resourceURI = resourceURI[:i]
	}
	audience := url.QueryEscape(strings.ToLower(resourceURI))
	expiry := strconv.FormatInt(p.now().Add(p.ttl).Unix(), 10)

	mac := hmac.New(sha256.New, []byte(p.key))
	mac.Write([]byte(audience + "\n" + expiry))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s&skn=%s",
		audience, url.QueryEscape(signature), expiry, url.QueryEscape(p.keyName))
}
