// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// DefaultURL is the API URL used when a profile does not specify
// one.
const DefaultURL = "https://api.simai.ansys.com/v2/"

const defaultTimeout = Duration(5 * time.Minute)

// Credentials for the password grant. Totp is the one-time password,
// if the account requires one.
type Credentials struct {
	Username string
	Password string
	Totp     string
}

// Config holds the settings of one configuration profile.
type Config struct {
	URL          string
	Organization string
	Workspace    string
	Project      string
	Credentials  *Credentials

	// Static bearer token. When set, no OIDC login is performed.
	Token string

	HTTPSProxy string
	// "system", "unsecure-none", or the path of a PEM file.
	TLSCABundle string

	// Whether the user can be prompted (device login). Default
	// true.
	Interactive      *bool
	NoSSEConnection  bool
	SkipVersionCheck bool

	RetryMax *int
	Timeout  Duration
}

// IsInteractive returns the effective Interactive setting.
func (cfg *Config) IsInteractive() bool {
	return cfg.Interactive == nil || *cfg.Interactive
}

type configFile struct {
	Profiles map[string]Config
}

// ConfigSearchPath returns the files LoadConfigFile looks for, in
// order, when it is not given an explicit path.
func ConfigSearchPath() []string {
	var paths []string
	if p := os.Getenv("SIMAI_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	xdg := os.Getenv("XDG_CONFIG_HOME")
	home, _ := os.UserHomeDir()
	if xdg == "" && home != "" {
		xdg = filepath.Join(home, ".config")
	}
	if xdg != "" {
		paths = append(paths,
			filepath.Join(xdg, "ansys_simai.yml"),
			filepath.Join(xdg, "ansys", "simai.yml"))
	}
	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".ansys_simai.yml"),
			filepath.Join(home, ".ansys", "simai.yml"))
	}
	return append(paths, "/etc/ansys_simai.yml", "/etc/ansys/simai.yml")
}

// LoadConfigFile reads the named profile from the config file at
// path. If path is empty, the first existing file in
// ConfigSearchPath is used. If profile is empty, "default" is used.
func LoadConfigFile(path, profile string, log logrus.FieldLogger) (*Config, error) {
	if path == "" {
		for _, p := range ConfigSearchPath() {
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				path = p
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("%w: no configuration file found (tried %s)", ErrConfiguration, strings.Join(ConfigSearchPath(), ", "))
		}
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, err)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	log.WithField("Path", path).Debug("loading configuration")
	cfg, err := LoadConfig(f, profile, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfig reads the named profile from YAML config data. Keys
// that do not correspond to a Config field are logged as warnings.
func LoadConfig(rdr io.Reader, profile string, log logrus.FieldLogger) (*Config, error) {
	if profile == "" {
		profile = "default"
	}
	buf, err := io.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	var cf configFile
	if err := yaml.Unmarshal(buf, &cf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	cfg, ok := cf.Profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%w: profile %q not found in configuration", ErrConfiguration, profile)
	}
	warnUnknownKeys(buf, profile, log)
	return &cfg, nil
}

var knownConfigKeys = map[string]bool{
	"url": true, "organization": true, "workspace": true, "project": true,
	"credentials": true, "token": true, "httpsproxy": true, "tlscabundle": true,
	"interactive": true, "nosseconnection": true, "skipversioncheck": true,
	"retrymax": true, "timeout": true,
}

func warnUnknownKeys(buf []byte, profile string, log logrus.FieldLogger) {
	var generic struct {
		Profiles map[string]map[string]interface{}
	}
	if yaml.Unmarshal(buf, &generic) != nil {
		return
	}
	for k := range generic.Profiles[profile] {
		if !knownConfigKeys[strings.ToLower(k)] {
			log.Warnf("unused config key: Profiles.%s.%s", profile, k)
		}
	}
}

// LoadEnv overrides cfg with the SIMAI_* variables found through
// getenv (os.Getenv if nil).
func (cfg *Config) LoadEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := Config{
		URL:          getenv("SIMAI_URL"),
		Organization: getenv("SIMAI_ORGANIZATION"),
		Workspace:    getenv("SIMAI_WORKSPACE"),
		Project:      getenv("SIMAI_PROJECT"),
		Token:        getenv("SIMAI_TOKEN"),
		HTTPSProxy:   getenv("SIMAI_HTTPS_PROXY"),
		TLSCABundle:  getenv("SIMAI_TLS_CA_BUNDLE"),
	}
	user, pass, totp := getenv("SIMAI_USERNAME"), getenv("SIMAI_PASSWORD"), getenv("SIMAI_TOTP")
	if user != "" || pass != "" || totp != "" {
		creds := Credentials{}
		if cfg.Credentials != nil {
			creds = *cfg.Credentials
		}
		if user != "" {
			creds.Username = user
		}
		if pass != "" {
			creds.Password = pass
		}
		if totp != "" {
			creds.Totp = totp
		}
		env.Credentials = &creds
	}
	return cfg.Override(env)
}

// Override copies the non-zero fields of o into cfg. Pointer fields
// replace cfg's, so an explicit Interactive=false takes effect.
func (cfg *Config) Override(o Config) error {
	creds := o.Credentials
	o.Credentials = nil
	if err := mergo.Merge(cfg, o, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return err
	}
	// mergo leaves non-nil struct pointers alone when not
	// dereferencing.
	if creds != nil {
		cfg.Credentials = creds
	}
	return nil
}

// Finish fills in defaults for unset fields and checks that cfg is
// usable: the URL is normalized to end in "/", an organization is
// required, and non-interactive configs need credentials or a token.
func (cfg *Config) Finish() error {
	interactive := true
	retryMax := defaultRetryMax
	defaults := Config{
		URL:         DefaultURL,
		Interactive: &interactive,
		RetryMax:    &retryMax,
		Timeout:     defaultTimeout,
	}
	if err := mergo.Merge(cfg, defaults, mergo.WithoutDereference); err != nil {
		return err
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid URL %q", ErrConfiguration, cfg.URL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	cfg.URL = u.String()
	if cfg.Organization == "" {
		return fmt.Errorf("%w: Organization is required", ErrConfiguration)
	}
	if cfg.Credentials != nil && (cfg.Credentials.Username == "" || cfg.Credentials.Password == "") {
		return fmt.Errorf("%w: Credentials need both Username and Password", ErrConfiguration)
	}
	if !cfg.IsInteractive() && cfg.Credentials == nil && cfg.Token == "" {
		return fmt.Errorf("%w: Credentials or Token are required when Interactive is false", ErrConfiguration)
	}
	return nil
}

// ClientOptions are the parts of a Client that cannot be expressed
// in a config file.
type ClientOptions struct {
	// Destination for the device login prompt. Nil means
	// os.Stderr.
	Prompt io.Writer
	// Request metrics. Nil means none.
	Metrics *Metrics
}

// NewClientFromConfig returns a Client for cfg, which must have been
// through Finish. Unless cfg has a static Token, this logs in to the
// OIDC realm of the API server.
func NewClientFromConfig(ctx context.Context, cfg *Config, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrConfiguration, cfg.URL)
	}
	hc, err := NewHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	client := &Client{
		Client:       hc,
		Scheme:       u.Scheme,
		APIHost:      u.Host,
		APIPrefix:    strings.TrimPrefix(u.Path, "/"),
		Organization: cfg.Organization,
		AuthToken:    cfg.Token,
		Timeout:      cfg.Timeout.Duration(),
		Metrics:      opts.Metrics,
	}
	if cfg.Token == "" {
		prompt := opts.Prompt
		if prompt == nil {
			prompt = os.Stderr
		}
		ts, err := NewTokenSource(ctx, cfg, hc, prompt)
		if err != nil {
			return nil, err
		}
		client.TokenSource = ts
	}
	return client, nil
}

// Dump returns cfg as YAML in the config file format, with secrets
// redacted.
func (cfg Config) Dump() ([]byte, error) {
	if cfg.Credentials != nil {
		creds := *cfg.Credentials
		creds.Password = redact(creds.Password)
		creds.Totp = redact(creds.Totp)
		cfg.Credentials = &creds
	}
	cfg.Token = redact(cfg.Token)
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf), nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "xxxxx"
}
