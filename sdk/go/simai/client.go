// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
	"github.com/simai-sdk/simai-go/sdk/go/version"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/oauth2"
)

// A Requester performs one API request and returns the (2xx)
// response, or an error. uri is either relative to the API base URL
// or absolute.
//
// *Client implements Requester.
type Requester interface {
	Request(ctx context.Context, method, uri string, body interface{}) (*Response, error)
}

// A Client is an HTTP client with a SimAI API endpoint and a set of
// credentials.
//
// It offers methods for accessing individual API endpoints, and
// the request primitive used by the pagination helpers.
type Client struct {
	// HTTP client used to make requests. If nil,
	// DefaultSecureClient or InsecureHTTPClient will be used.
	Client *http.Client `json:"-"`

	// Protocol scheme: "http", "https", or "" (https)
	Scheme string

	// Hostname (or host:port) of the API server.
	APIHost string

	// Path prefix of the API, e.g., "v2/". Relative request URIs
	// are resolved against Scheme://APIHost/APIPrefix.
	APIPrefix string

	// Organization the user belongs to.
	Organization string

	// Static bearer token. Ignored if TokenSource is non-nil.
	AuthToken string

	// Source of OAuth2 access tokens (see NewTokenSource).
	TokenSource oauth2.TokenSource `json:"-"`

	// Accept unverified certificates. This works only if the
	// Client field is nil: otherwise, it has no effect.
	Insecure bool

	// HTTP headers to add/override in outgoing requests.
	SendHeader http.Header

	// Timeout for requests. NewClientFromConfig returns a Client
	// with a default 5 minute timeout. To disable this timeout and
	// rely on each http.Request's context deadline instead, set
	// Timeout to zero.
	Timeout time.Duration

	// Request metrics. Nil means no metrics are recorded.
	Metrics *Metrics `json:"-"`

	defaultRequestID string
}

// InsecureHTTPClient is the default http.Client used by a Client with
// Insecure==true and Client==nil.
var InsecureHTTPClient = NewRetryingHTTPClient(&http.Transport{
	Proxy: http.ProxyFromEnvironment,
	TLSClientConfig: &tls.Config{
		InsecureSkipVerify: true}}, defaultRetryMax)

// DefaultSecureClient is the default http.Client used by a Client otherwise.
var DefaultSecureClient = NewRetryingHTTPClient(&http.Transport{
	Proxy: http.ProxyFromEnvironment,
}, defaultRetryMax)

const defaultRetryMax = 3

// NewRetryingHTTPClient returns an http.Client that retries
// idempotent requests (GET, HEAD, PUT, DELETE, OPTIONS, TRACE) up to
// retryMax times on transport errors and 429, 502, 503 and 504
// responses. Other requests, e.g. POST and PATCH, are sent once.
// When retries are exhausted and a response was received, that
// response is returned so its status can be reported.
func NewRetryingHTTPClient(transport http.RoundTripper, retryMax int) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport}
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			ctxlog.FromContext(req.Context()).WithFields(map[string]interface{}{
				"Method":  req.Method,
				"URL":     req.URL.String(),
				"Attempt": attempt,
			}).Info("retrying request")
		}
	}
	rc.ErrorHandler = func(resp *http.Response, err error, attempts int) (*http.Response, error) {
		if resp != nil {
			return resp, nil
		}
		return nil, fmt.Errorf("giving up after %d attempt(s): %w", attempts, err)
	}
	return &http.Client{Transport: idempotentRetry{
		retrying: &retryablehttp.RoundTripper{Client: rc},
		once:     transport,
	}}
}

// idempotentRetry sends idempotent requests through retrying and
// all others through once.
type idempotentRetry struct {
	retrying http.RoundTripper
	once     http.RoundTripper
}

func (t idempotentRetry) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return t.retrying.RoundTrip(req)
	default:
		return t.once.RoundTrip(req)
	}
}

// checkRetry retries transport errors the way retryablehttp does by
// default, but among responses only the statuses that say the
// request never reached the API, or should be repeated later.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil || resp == nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// NewHTTPClient returns a retrying http.Client that honors the
// proxy and TLS settings in cfg.
func NewHTTPClient(cfg *Config) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{},
	}
	if cfg.HTTPSProxy != "" {
		pcfg := httpproxy.FromEnvironment()
		pcfg.HTTPSProxy = cfg.HTTPSProxy
		proxyFunc := pcfg.ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		}
	}
	switch cfg.TLSCABundle {
	case "", "system":
		// Go's default verifier uses the system roots.
	case "unsecure-none":
		transport.TLSClientConfig.InsecureSkipVerify = true
	default:
		pem, err := os.ReadFile(cfg.TLSCABundle)
		if err != nil {
			return nil, fmt.Errorf("%w: TLSCABundle: %s", ErrConfiguration, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: TLSCABundle: no certificates found in %s", ErrConfiguration, cfg.TLSCABundle)
		}
		transport.TLSClientConfig.RootCAs = pool
	}
	retryMax := defaultRetryMax
	if cfg.RetryMax != nil {
		retryMax = *cfg.RetryMax
	}
	return NewRetryingHTTPClient(transport, retryMax), nil
}

var reqIDGen = idGenerator{Prefix: "req-"}

func userAgent() string {
	return fmt.Sprintf("simai-go/%s (%s)", version.GetVersion(), runtime.Version())
}

// Do adds Authorization, X-Org, User-Agent and X-Request-Id headers
// and then calls (*http.Client)Do().
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if auth, _ := req.Context().Value(contextKeyAuthorization{}).(string); auth != "" {
		req.Header.Set("Authorization", auth)
	} else if req.URL.Host == c.APIHost {
		// Presigned upload URLs on other hosts must not get
		// our credentials.
		if c.TokenSource != nil {
			tok, err := c.TokenSource.Token()
			if err != nil {
				return nil, fmt.Errorf("getting access token: %w", err)
			}
			tok.SetAuthHeader(req)
		} else if c.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.AuthToken)
		}
	}
	if req.URL.Host == c.APIHost && c.Organization != "" {
		req.Header.Set("X-Org", c.Organization)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent())
	}

	if req.Header.Get("X-Request-Id") == "" {
		var reqid string
		if ctxreqid, _ := req.Context().Value(contextKeyRequestID{}).(string); ctxreqid != "" {
			reqid = ctxreqid
		} else if c.defaultRequestID != "" {
			reqid = c.defaultRequestID
		} else {
			reqid = reqIDGen.Next()
		}
		req.Header.Set("X-Request-Id", reqid)
	}
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		ctx := req.Context()
		ctx, cancel = context.WithDeadline(ctx, time.Now().Add(c.Timeout))
		req = req.WithContext(ctx)
	}
	t0 := time.Now()
	resp, err := c.httpClient().Do(req)
	c.Metrics.observeRequest(req, resp, time.Since(t0))
	if err == nil && cancel != nil {
		// We need to call cancel() eventually, but we can't
		// use "defer cancel()" because the context has to
		// stay alive until the caller has finished reading
		// the response body.
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	} else if cancel != nil {
		cancel()
	}
	return resp, err
}

// cancelOnClose calls a provided CancelFunc when its wrapped
// ReadCloser's Close() method is called.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (coc cancelOnClose) Close() error {
	err := coc.ReadCloser.Close()
	coc.cancel()
	return err
}

// Request performs an API request and returns the response if its
// status is 2xx.
//
// body is sent as-is if it is an io.Reader (e.g., a file part), as
// JSON otherwise, and not at all if nil.
//
// Non-2xx responses are returned as a *TransactionError, transport
// failures as a *ConnectionError.
func (c *Client) Request(ctx context.Context, method, uri string, body interface{}) (*Response, error) {
	return c.request(ctx, method, uri, body, nil)
}

func (c *Client) request(ctx context.Context, method, uri string, body interface{}, params interface{}) (*Response, error) {
	target, err := c.resolve(uri)
	if err != nil {
		return nil, err
	}
	if params != nil {
		values, err := anythingToValues(params)
		if err != nil {
			return nil, err
		}
		q := target.Query()
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var rdr io.Reader
	contentType := ""
	switch body := body.(type) {
	case nil:
	case io.Reader:
		rdr = body
		contentType = "application/octet-stream"
	default:
		j, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %s", ErrInvalidArgument, err)
		}
		rdr = bytes.NewReader(j)
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), rdr)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.SendHeader {
		req.Header[k] = v
	}

	logger := ctxlog.FromContext(ctx).WithFields(map[string]interface{}{
		"Method": method,
		"URL":    target.String(),
	})
	logger.Debug("request")
	resp, err := c.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			err = cerr
		}
		return nil, &ConnectionError{Method: method, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Method: method, URL: target.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := newTransactionError(req, resp, buf)
		logger.WithField("Status", resp.Status).Debug("request failed")
		return nil, terr
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       buf,
		URL:        target,
	}, nil
}

// RequestAndDecode performs an API request and unmarshals the
// response (which must be JSON) into dst. Nothing is decoded if dst
// is nil or the response has no content.
//
// params, if non-nil, are added to the query string (see
// anythingToValues).
func (c *Client) RequestAndDecode(ctx context.Context, dst interface{}, method, uri string, body, params interface{}) error {
	resp, err := c.request(ctx, method, uri, body, params)
	if err != nil {
		return err
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.DecodeJSON(dst)
}

// Download streams the body of a GET request for uri to w, and
// returns the number of bytes written. progress, if not nil, is
// called with the size of each chunk written.
func (c *Client) Download(ctx context.Context, uri string, w io.Writer, progress func(int)) (int64, error) {
	target, err := c.resolve(uri)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, err
	}
	for k, v := range c.SendHeader {
		req.Header[k] = v
	}
	ctxlog.FromContext(ctx).WithField("URL", target.String()).Debug("download")
	resp, err := c.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			err = cerr
		}
		return 0, &ConnectionError{Method: http.MethodGet, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(resp.Body)
		return 0, newTransactionError(req, resp, buf)
	}
	n, err := io.Copy(progressWriter{Writer: w, progress: progress}, resp.Body)
	if err != nil {
		return n, &ConnectionError{Method: http.MethodGet, URL: target.String(), Err: err}
	}
	c.Metrics.observeDownload(int(n))
	return n, nil
}

type progressWriter struct {
	io.Writer
	progress func(int)
}

func (pw progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	if pw.progress != nil && n > 0 {
		pw.progress(n)
	}
	return n, err
}

// Convert an arbitrary struct to url.Values. For example,
//
//	Foo{Bar: []int{1,2,3}, Baz: "waz"}
//
// becomes
//
//	url.Values{`bar`:`[1,2,3]`,`Baz`:`waz`}
//
// params itself is returned if it is already an url.Values.
func anythingToValues(params interface{}) (url.Values, error) {
	if v, ok := params.(url.Values); ok {
		return v, nil
	}
	j, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	dec := json.NewDecoder(bytes.NewBuffer(j))
	dec.UseNumber()
	err = dec.Decode(&generic)
	if err != nil {
		return nil, fmt.Errorf("%w: query parameters must be an object: %s", ErrInvalidArgument, err)
	}
	urlValues := url.Values{}
	for k, v := range generic {
		if v, ok := v.(string); ok {
			urlValues.Set(k, v)
			continue
		}
		if v, ok := v.(json.Number); ok {
			urlValues.Set(k, v.String())
			continue
		}
		if v, ok := v.(bool); ok {
			if v {
				urlValues.Set(k, "true")
			} else {
				urlValues.Set(k, "false")
			}
			continue
		}
		j, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(j, []byte("null")) {
			// don't add it to urlValues at all
			continue
		}
		urlValues.Set(k, string(j))
	}
	return urlValues, nil
}

// WithRequestID returns a new shallow copy of c that sends the given
// X-Request-Id value (instead of a new randomly generated one) with
// each subsequent request that doesn't provide its own via context or
// header.
func (c *Client) WithRequestID(reqid string) *Client {
	cc := *c
	cc.defaultRequestID = reqid
	return &cc
}

func (c *Client) observePage() {
	c.Metrics.observePage()
}

func (c *Client) httpClient() *http.Client {
	switch {
	case c.Client != nil:
		return c.Client
	case c.Insecure:
		return InsecureHTTPClient
	default:
		return DefaultSecureClient
	}
}

// BaseURL returns the URL that relative request URIs are resolved
// against.
func (c *Client) BaseURL() *url.URL {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	prefix := strings.TrimPrefix(c.APIPrefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &url.URL{Scheme: scheme, Host: c.APIHost, Path: "/" + prefix}
}

func (c *Client) resolve(uri string) (*url.URL, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request URI %q: %s", ErrInvalidArgument, uri, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if c.APIHost == "" {
		return nil, fmt.Errorf("%w: simai.Client cannot perform request: APIHost is not set", ErrConfiguration)
	}
	return c.BaseURL().ResolveReference(ref), nil
}
