package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sixfold/sixfold/errors"
)

const maxRedirects = 10

// New returns an outbound HTTP client with a tuned transport and a bounded
// redirect policy. Used by integration callers (Shopify Admin API) that talk
// to fixed external endpoints.
func New(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// ValidateExternalURL rejects URLs that should never appear in an outbound
// integration call: non-HTTP schemes, embedded credentials, missing hosts.
func ValidateExternalURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		return nil, errors.New("URL must not contain credentials")
	}
	if u.Hostname() == "" {
		return nil, errors.New("URL missing hostname")
	}

	return u, nil
}
