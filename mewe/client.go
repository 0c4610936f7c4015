// Package mewe owns the authenticated session against the upstream service:
// cookie lifecycle, CSRF handshake, single-flight re-authentication and
// bounded retries. Everything above this package is pure transformation.
package mewe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/singleflight"

	"mewefeed/models"
)

var (
	upstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_upstream_requests_total",
		Help: "The total number of requests issued against the upstream API",
	})

	upstreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_upstream_errors_total",
		Help: "The total number of failed upstream requests",
	})

	reauthAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_reauth_attempts_total",
		Help: "The total number of session re-authentication attempts",
	})

	reauthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_reauth_failures_total",
		Help: "The total number of failed session re-authentication attempts",
	})
)

const (
	// DefaultBase is the upstream API root
	DefaultBase = "https://mewe.com/api"

	// DefaultOrigin prefixes relative media locators
	DefaultOrigin = "https://mewe.com"

	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

// ClientConfig parameterizes the session provider only
type ClientConfig struct {
	Base       string
	Origin     string
	CookiePath string
	UserAgent  string
	ProxyUrl   string
	Timeout    time.Duration
}

// Client is the session provider. Credential state is process-wide and
// shared; refreshes are serialized through a single-flight group so
// concurrent requests discovering an expired token trigger one
// re-authentication and share its result.
type Client struct {
	base      string
	origin    string
	userAgent string
	http      *http.Client
	streamer  *http.Client
	jar       *Jar

	refresh  singleflight.Group
	identity models.RawObject
}

// NewClient loads the cookie jar, performs the identify handshake and
// verifies the session is usable
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Base == "" {
		cfg.Base = DefaultBase
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	jar, err := LoadJar(cfg.CookiePath)
	if err != nil {
		return nil, err
	}

	httpClient, err := newHttpClient(cfg.ProxyUrl, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	httpClient.Jar = jar

	// Streaming fetches carry no global timeout; the file proxy bounds them
	// with a per-request context deadline instead, so a large asset download
	// is not cut off by the API timeout
	streamer := &http.Client{Transport: httpClient.Transport, Jar: jar}

	c := &Client{
		base:      cfg.Base,
		origin:    cfg.Origin,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		streamer:  streamer,
		jar:       jar,
	}

	if err := c.identify(context.Background()); err != nil {
		return nil, err
	}

	identity, err := c.Get(context.Background(), c.base+"/v2/me/info", nil)
	if err != nil {
		return nil, fmt.Errorf("could not fetch identity: %w", err)
	}
	c.identity = identity

	log.WithFields(log.Fields{
		"user": identity.String("id"),
		"name": identity.String("firstName"),
	}).Info("Session established")

	return c, nil
}

// newHttpClient builds an outbound client, optionally dialing through an
// authenticated SOCKS5 proxy
func newHttpClient(proxyUrl string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}

	if proxyUrl == "" {
		return client, nil
	}

	parsed, err := url.Parse(proxyUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if parsed.Scheme != "socks5" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}

	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{
			User:     parsed.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("could not create proxy dialer: %w", err)
	}

	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}
	return client, nil
}

// Identity returns the raw identity object fetched during the handshake
func (c *Client) Identity() models.RawObject {
	return c.identity
}

// identify calls the auth endpoint, refreshing tokens server-side, and
// pulls the CSRF token out of the refreshed cookie set
func (c *Client) identify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v3/auth/identify", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &models.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.UpstreamError{Err: err}
	}

	var result struct {
		Authenticated bool `json:"authenticated"`
	}
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &result) != nil || !result.Authenticated {
		return &models.AuthError{Reason: "identify rejected, are the cookies fresh enough?"}
	}

	if _, _, ok := c.jar.Get("csrf-token"); !ok {
		return &models.AuthError{Reason: "no csrf token in refreshed cookie set"}
	}

	if err := c.jar.Save(); err != nil {
		log.WithError(err).Warn("Could not persist refreshed cookies")
	}
	return nil
}

// tokenExpired checks the access token cookie's recorded expiry. A missing
// token is not treated as expired, matching the upstream client behaviour.
func (c *Client) tokenExpired() bool {
	_, expires, ok := c.jar.Get("access-token")
	if !ok || expires.IsZero() {
		return false
	}
	return expires.Before(time.Now())
}

// refreshSession re-authenticates when the access token has expired. All
// concurrent callers share a single identify call.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		if !c.tokenExpired() {
			return nil, nil
		}
		reauthAttempts.Inc()
		log.Info("Access token expired, re-authenticating")
		if err := c.identify(ctx); err != nil {
			reauthFailures.Inc()
			return nil, err
		}
		return nil, nil
	})
	return err
}

// reauthenticate recovers a session that died mid-request. Concurrent
// requests that hit a 401 at the same time share a single identify call
// and all retry with its refreshed cookie set.
func (c *Client) reauthenticate(ctx context.Context) error {
	_, err, _ := c.refresh.Do("reauth", func() (interface{}, error) {
		reauthAttempts.Inc()
		log.Info("Session rejected upstream, re-authenticating")
		if err := c.identify(ctx); err != nil {
			reauthFailures.Inc()
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if csrf, _, ok := c.jar.Get("csrf-token"); ok {
		req.Header.Set("x-csrf-token", csrf)
	}
}

// Get performs an authenticated GET and decodes the JSON response. The
// session is refreshed up front when expired; a 401/403 mid-request gets
// exactly one re-authentication attempt before surfacing an AuthError.
// Transient failures are retried a bounded number of times with backoff.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (models.RawObject, error) {
	body, err := c.fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return models.RawObject{}, nil
	}

	var obj models.RawObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &models.UpstreamError{Err: fmt.Errorf("undecodable response from %s: %w", endpoint, err)}
	}
	return obj, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.refreshSession(ctx); err != nil {
		return nil, err
	}

	var body []byte
	reauthed := false

	operation := func() error {
		resp, err := c.do(ctx, endpoint, params)
		if err != nil {
			upstreamErrors.Inc()
			return &models.UpstreamError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				upstreamErrors.Inc()
				return &models.UpstreamError{Err: err}
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&models.NotFoundError{Resource: endpoint})

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			if reauthed {
				return backoff.Permanent(&models.AuthError{Reason: "session died and re-authentication was rejected"})
			}
			reauthed = true
			if err := c.reauthenticate(ctx); err != nil {
				return backoff.Permanent(&models.AuthError{Reason: "session died and re-authentication failed"})
			}
			// Retry immediately with the refreshed session
			return fmt.Errorf("retrying %s after re-authentication", endpoint)

		case resp.StatusCode >= 500:
			upstreamErrors.Inc()
			return &models.UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("server error from %s", endpoint)}

		default:
			upstreamErrors.Inc()
			return backoff.Permanent(&models.UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status from %s", endpoint)})
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	upstreamRequests.Inc()

	target := endpoint
	if len(params) > 0 {
		if strings.Contains(target, "?") {
			target += "&" + params.Encode()
		} else {
			target += "?" + params.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	return c.http.Do(req)
}

// Asset is an upstream media object ready to stream to a caller
type Asset struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Stream fetches a media asset through the authenticated session. Relative
// locators are resolved against the upstream origin. The caller owns Body.
func (c *Client) Stream(ctx context.Context, locator string) (*Asset, error) {
	if err := c.refreshSession(ctx); err != nil {
		return nil, err
	}

	target := locator
	if strings.HasPrefix(locator, "/") {
		target = c.origin + locator
	}

	reauthed := false
	for {
		upstreamRequests.Inc()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.streamer.Do(req)
		if err != nil {
			upstreamErrors.Inc()
			return nil, &models.UpstreamError{Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return &Asset{
				Body:          resp.Body,
				ContentType:   resp.Header.Get("Content-Type"),
				ContentLength: resp.ContentLength,
			}, nil

		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			resp.Body.Close()
			return nil, &models.NotFoundError{Resource: locator}

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			if reauthed {
				return nil, &models.AuthError{Reason: "session died and re-authentication was rejected"}
			}
			reauthed = true
			if err := c.reauthenticate(ctx); err != nil {
				return nil, &models.AuthError{Reason: "session died and re-authentication failed"}
			}

		default:
			resp.Body.Close()
			upstreamErrors.Inc()
			return nil, &models.UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status fetching %s", locator)}
		}
	}
}
