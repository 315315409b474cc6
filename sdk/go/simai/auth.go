// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	oidcClientID   = "sdk"
	realmPath      = "/auth/realms/simai"
	deviceCodeType = "urn:ietf:params:oauth:grant-type:device_code"
)

// RealmURL returns the OIDC issuer URL for the API at apiURL. The
// realm lives at the root of the API host, whatever the API path.
func RealmURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid URL %q", ErrConfiguration, apiURL)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: realmPath}).String(), nil
}

// NewTokenSource logs in to the OIDC realm of the API at cfg.URL and
// returns a TokenSource that refreshes the access token as needed.
//
// If cfg has Credentials, the password grant is used. Otherwise, if
// cfg is interactive, the device authorization grant is used and the
// verification URL is written to prompt.
//
// Tokens are cached on disk (see TokenCacheDir), so a later process
// with the same URL, organization and user can skip the login.
func NewTokenSource(ctx context.Context, cfg *Config, hc *http.Client, prompt io.Writer) (oauth2.TokenSource, error) {
	realm, err := RealmURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	ctx = oidc.ClientContext(ctx, hc)
	provider, err := oidc.NewProvider(ctx, realm)
	if err != nil {
		return nil, &ConnectionError{Method: http.MethodGet, URL: realm, Err: err}
	}
	ocfg := &oauth2.Config{
		ClientID: oidcClientID,
		Endpoint: provider.Endpoint(),
		Scopes:   []string{oidc.ScopeOpenID},
	}
	ocfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams

	cache := &tokenCache{path: tokenCachePath(cfg)}
	tok := cache.load()
	if tok != nil && !tok.Valid() {
		// An expired access token may still carry a usable
		// refresh token.
		if refreshed, err := ocfg.TokenSource(ctx, tok).Token(); err == nil {
			tok = refreshed
		} else {
			ctxlog.FromContext(ctx).WithError(err).Info("could not refresh cached token")
			tok = nil
		}
	}
	if tok == nil {
		if cfg.Credentials != nil {
			tok, err = passwordGrant(ctx, ocfg, cfg.Credentials)
		} else if cfg.IsInteractive() {
			tok, err = deviceGrant(ctx, provider, ocfg, prompt)
		} else {
			err = fmt.Errorf("%w: no credentials, and device login is not possible in non-interactive mode", ErrConfiguration)
		}
		if err != nil {
			return nil, err
		}
		if err := checkIDToken(ctx, provider, tok); err != nil {
			return nil, err
		}
	}
	cache.save(ctx, tok)

	// The refresher outlives ctx, which may be a short-lived
	// request context.
	rctx := oidc.ClientContext(context.Background(), hc)
	return &cachingTokenSource{
		src:   oauth2.ReuseTokenSource(tok, ocfg.TokenSource(rctx, tok)),
		cache: cache,
		last:  tok.AccessToken,
	}, nil
}

func passwordGrant(ctx context.Context, ocfg *oauth2.Config, creds *Credentials) (*oauth2.Token, error) {
	ctxlog.FromContext(ctx).WithField("Username", creds.Username).Debug("requesting tokens via password grant")
	if creds.Totp == "" {
		tok, err := ocfg.PasswordCredentialsToken(ctx, creds.Username, creds.Password)
		if err != nil {
			return nil, tokenError(ocfg.Endpoint.TokenURL, err)
		}
		return tok, nil
	}
	// PasswordCredentialsToken cannot send extra form fields, and
	// Exchange forces a "code" field the server rejects.
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {ocfg.ClientID},
		"scope":      {strings.Join(ocfg.Scopes, " ")},
		"username":   {creds.Username},
		"password":   {creds.Password},
		"totp":       {creds.Totp},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ocfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc, _ := ctx.Value(oauth2.HTTPClient).(*http.Client)
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newTransactionError(req, resp, buf)
	}
	var tj struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		IDToken      string `json:"id_token"`
	}
	if err := json.Unmarshal(buf, &tj); err != nil || tj.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response from %s has no access_token", ErrMalformedResponse, req.URL)
	}
	tok := &oauth2.Token{
		AccessToken:  tj.AccessToken,
		TokenType:    tj.TokenType,
		RefreshToken: tj.RefreshToken,
	}
	if tj.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tj.ExpiresIn) * time.Second)
	}
	if tj.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{"id_token": tj.IDToken})
	}
	return tok, nil
}

func deviceGrant(ctx context.Context, provider *oidc.Provider, ocfg *oauth2.Config, prompt io.Writer) (*oauth2.Token, error) {
	var claims struct {
		GrantTypes []string `json:"grant_types_supported"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: reading provider metadata: %s", ErrMalformedResponse, err)
	}
	if ocfg.Endpoint.DeviceAuthURL == "" || (len(claims.GrantTypes) > 0 && !contains(claims.GrantTypes, deviceCodeType)) {
		return nil, fmt.Errorf("%w: the auth server does not offer device login, set Credentials instead", ErrConfiguration)
	}
	ctxlog.FromContext(ctx).Debug("requesting tokens via device authorization")
	da, err := ocfg.DeviceAuth(ctx)
	if err != nil {
		return nil, tokenError(ocfg.Endpoint.DeviceAuthURL, err)
	}
	fmt.Fprintf(prompt, "Go to %s and enter the code %s\n", da.VerificationURI, da.UserCode)
	if da.VerificationURIComplete != "" {
		fmt.Fprintf(prompt, "or open %s\n", da.VerificationURIComplete)
	}
	tok, err := ocfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, tokenError(ocfg.Endpoint.TokenURL, err)
	}
	return tok, nil
}

// checkIDToken verifies the ID token that came with a fresh login,
// if there is one, and logs who logged in.
func checkIDToken(ctx context.Context, provider *oidc.Provider, tok *oauth2.Token) error {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil
	}
	idt, err := provider.Verifier(&oidc.Config{ClientID: oidcClientID}).Verify(ctx, raw)
	if err != nil {
		return fmt.Errorf("%w: ID token: %s", ErrMalformedResponse, err)
	}
	var claims struct {
		Username string `json:"preferred_username"`
	}
	if err := idt.Claims(&claims); err != nil {
		return fmt.Errorf("%w: ID token claims: %s", ErrMalformedResponse, err)
	}
	ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"Subject":  idt.Subject,
		"Username": claims.Username,
	}).Info("logged in")
	return nil
}

func tokenError(endpoint string, err error) error {
	if rerr, ok := err.(*oauth2.RetrieveError); ok && rerr.Response != nil {
		terr := newTransactionError(rerr.Response.Request, rerr.Response, rerr.Body)
		if rerr.ErrorDescription != "" && len(terr.errors) == 0 {
			terr.errors = []string{rerr.ErrorDescription}
		}
		return terr
	}
	return &ConnectionError{Method: http.MethodPost, URL: endpoint, Err: err}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// cachingTokenSource writes each new token to the cache.
type cachingTokenSource struct {
	src   oauth2.TokenSource
	cache *tokenCache

	mtx  sync.Mutex
	last string
}

func (ts *cachingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.src.Token()
	if err != nil {
		return nil, err
	}
	ts.mtx.Lock()
	defer ts.mtx.Unlock()
	if tok.AccessToken != ts.last {
		ts.last = tok.AccessToken
		ts.cache.save(context.Background(), tok)
	}
	return tok, nil
}

// TokenCacheDir returns the directory where login tokens are
// cached.
func TokenCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "simai"), nil
}

func tokenCachePath(cfg *Config) string {
	dir, err := TokenCacheDir()
	if err != nil {
		return ""
	}
	user := ""
	if cfg.Credentials != nil {
		user = cfg.Credentials.Username
	}
	sum := sha256.Sum256([]byte(cfg.URL + "\x00" + cfg.Organization + "\x00" + user))
	return filepath.Join(dir, fmt.Sprintf("tokens-%x.json", sum[:8]))
}

type tokenCache struct {
	path string
}

func (tc *tokenCache) load() *oauth2.Token {
	if tc.path == "" {
		return nil
	}
	buf, err := os.ReadFile(tc.path)
	if err != nil {
		return nil
	}
	var tok oauth2.Token
	if json.Unmarshal(buf, &tok) != nil || tok.AccessToken == "" {
		return nil
	}
	return &tok
}

// save writes tok atomically; failures are logged, not returned.
func (tc *tokenCache) save(ctx context.Context, tok *oauth2.Token) {
	if tc.path == "" {
		return
	}
	logger := ctxlog.FromContext(ctx).WithField("Path", tc.path)
	buf, err := json.Marshal(tok)
	if err != nil {
		logger.WithError(err).Warn("could not encode token for cache")
		return
	}
	if err := os.MkdirAll(filepath.Dir(tc.path), 0700); err != nil {
		logger.WithError(err).Warn("could not create token cache dir")
		return
	}
	tmp := tc.path + "~"
	if err := os.WriteFile(tmp, buf, 0600); err != nil {
		logger.WithError(err).Warn("could not write token cache")
		return
	}
	if err := os.Rename(tmp, tc.path); err != nil {
		logger.WithError(err).Warn("could not write token cache")
	}
}
