package myhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

/*
	Define an HTTP Client with suitable defaults and some helpers:
	   - Bounded retries with an attempt history
	   - Default headers, and per request headers
	   - Connection pool, proxy and TLS settings
	   - Rate limiter
*/

// UserAgent default
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.190 Safari/537.36"

const (
	DefaultPoolSize    = 8
	DefaultTimeout     = 2333 * time.Second
	DefaultMaxAttempts = 3
)

type Logger interface {
	Printf(fmt string, a ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Request describes one HTTP operation. Body is kept as bytes so it can be
// sent again on each attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs HTTP operations with retries.
// Its configuration is set at construction and never changes afterward,
// so a Client can be shared by concurrent goroutines.
type Client struct {
	client *http.Client

	userAgent      string
	headers        http.Header
	maxAttempts    int
	poolSize       int
	timeout        time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	verifyTLS      bool
	proxy          *url.URL
	proxyFromEnv   bool
	roundTripper   http.RoundTripper
	jar            http.CookieJar
	limiter        *rate.Limiter
	logger         Logger
}

// WithUserAgent sets the user agent sent with every request
func WithUserAgent(ua string) func(c *Client) {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) func(c *Client) {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithMaxAttempts sets the number of attempts made before giving up
func WithMaxAttempts(n int) func(c *Client) {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPoolSize limits the number of concurrent connections per host
func WithPoolSize(n int) func(c *Client) {
	return func(c *Client) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithTimeout sets the total time budget of one request attempt
func WithTimeout(d time.Duration) func(c *Client) {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithBackoff sets the delay between attempts. The delay starts at initial
// and doubles after each failure, up to max. A zero initial delay retries
// immediately.
func WithBackoff(initial, max time.Duration) func(c *Client) {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithTLSVerify enables the verification of server certificates
func WithTLSVerify(verify bool) func(c *Client) {
	return func(c *Client) {
		c.verifyTLS = verify
	}
}

// WithProxy routes every request through the given proxy.
// User and password are optional.
func WithProxy(proxy *url.URL, user, password string) func(c *Client) {
	return func(c *Client) {
		if proxy == nil {
			return
		}
		p := *proxy
		if user != "" {
			p.User = url.UserPassword(user, password)
		}
		c.proxy = &p
	}
}

// WithProxyFromEnvironment uses HTTP_PROXY and friends when no proxy is given
func WithProxyFromEnvironment(b bool) func(c *Client) {
	return func(c *Client) {
		c.proxyFromEnv = b
	}
}

// WithTransport replaces the network transport. Pool, proxy and TLS settings
// are then the transport's business.
func WithTransport(rt http.RoundTripper) func(c *Client) {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// WithCookieJar sets the cookie jar. Each client gets its own jar by default.
func WithCookieJar(jar http.CookieJar) func(c *Client) {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithLimiter limits the number of hits per second
func WithLimiter(l *rate.Limiter) func(c *Client) {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithLogger(logger Logger) func(c *Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(confFn ...func(c *Client)) *Client {
	c := Client{
		userAgent:      UserAgent,
		headers:        http.Header{},
		maxAttempts:    DefaultMaxAttempts,
		poolSize:       DefaultPoolSize,
		timeout:        DefaultTimeout,
		initialBackoff: 250 * time.Millisecond,
		maxBackoff:     4 * time.Second,
		logger:         nullLogger{},
	}
	for _, fn := range confFn {
		fn(&c)
	}
	if c.jar == nil {
		c.jar, _ = cookiejar.New(nil)
	}
	rt := c.roundTripper
	if rt == nil {
		rt = c.newTransport()
	}
	c.client = &http.Client{
		Transport: rt,
		Timeout:   c.timeout,
		Jar:       c.jar,
	}
	return &c
}

func (c *Client) newTransport() *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          c.poolSize,
		MaxIdleConnsPerHost:   c.poolSize,
		MaxConnsPerHost:       c.poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !c.verifyTLS,
		},
	}
	switch {
	case c.proxy != nil:
		t.Proxy = http.ProxyURL(c.proxy)
	case c.proxyFromEnv:
		t.Proxy = http.ProxyFromEnvironment
	}
	return t
}

// PoolSize gives the connection limit of the client
func (c *Client) PoolSize() int { return c.poolSize }

// MaxAttempts gives the number of attempts made for one request
func (c *Client) MaxAttempts() int { return c.maxAttempts }

// UserAgent gives the user agent of the client
func (c *Client) UserAgent() string { return c.userAgent }

// Header returns the headers of a request: the client defaults
// overridden by the given ones.
func (c *Client) Header(h http.Header) http.Header {
	merged := make(http.Header, len(c.headers)+len(h)+1)
	merged.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range h {
		merged[k] = append([]string(nil), v...)
	}
	return merged
}

// Do performs the request. Transport failures and transient statuses
// (429 and 5xx) are retried. Other statuses are returned as they are.
// When every attempt has failed, the error is a *NetworkError.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("can't parse url %q: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, v := range r.Query {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}
	theURL := u.String()
	header := c.Header(r.Header)

	nErr := &NetworkError{Method: method, URL: theURL}
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				nErr.History = append(nErr.History, err)
				break
			}
		}
		nErr.Attempts++
		resp, err := c.attempt(ctx, method, theURL, header, r.Body)
		if err == nil {
			return resp, nil
		}
		nErr.History = append(nErr.History, err)
		c.logger.Printf("[HTTPCLIENT] %s %s attempt %d/%d failed", method, theURL, nErr.Attempts, c.maxAttempts)
		if !retryable(ctx, err) {
			break
		}
	}
	c.logger.Printf("[HTTPCLIENT] %s %s given up after %d attempt(s)", method, theURL, nErr.Attempts)
	return nil, nErr
}

func (c *Client) attempt(ctx context.Context, method, theURL string, header http.Header, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, theURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = header.Clone()

	c.logger.Printf("[HTTPCLIENT] %s %s", method, theURL)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read response body: %w", err)
	}
	if isTransientStatus(resp.StatusCode) {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(b)}
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
	}, nil
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	d := c.initialBackoff
	for i := 1; i < attempt && d > 0; i++ {
		d *= 2
		if c.maxBackoff > 0 && d > c.maxBackoff {
			d = c.maxBackoff
			break
		}
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get performs a GET request and returns the body when the status is a success
func (c *Client) Get(ctx context.Context, theURL string, header http.Header, query url.Values) ([]byte, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		URL:    theURL,
		Header: header,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
	}
	return resp.Body, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// retryable reports whether another attempt is worth it. A timeout of one
// attempt is retried, the cancellation of the caller's context is not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return isTransientStatus(se.StatusCode)
	}
	return true
}
