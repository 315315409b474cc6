// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simaitest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"gopkg.in/check.v1"
	jose "gopkg.in/go-jose/go-jose.v2"
)

// RealmPath is where the stub serves its OIDC realm.
const RealmPath = "/auth/realms/simai"

const deviceCodeGrant = "urn:ietf:params:oauth:grant-type:device_code"

// OIDCProvider is a stub OIDC realm mounted on a StubAPI. It hands
// out opaque access tokens and signed ID tokens for the password,
// refresh_token and device_code grants.
type OIDCProvider struct {
	// expected password grant
	ValidUsername string
	ValidPassword string
	// If not empty, the password grant also needs this "totp".
	ValidTotp string
	// Access tokens expire after this long. Zero means one hour.
	TokenLifetime time.Duration
	// Don't offer the device grant.
	NoDeviceGrant bool

	key    *rsa.PrivateKey
	api    *StubAPI
	c      *check.C
	mtx    sync.Mutex
	serial int
	grants map[string]int
	tokens map[string]bool
}

// NewOIDCProvider mounts a stub realm at RealmPath on api.
func NewOIDCProvider(c *check.C, api *StubAPI) *OIDCProvider {
	p := &OIDCProvider{
		ValidUsername: "user@example.com",
		ValidPassword: "secret",
		api:           api,
		c:             c,
		grants:        map[string]int{},
		tokens:        map[string]bool{},
	}
	var err error
	p.key, err = rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, check.IsNil)
	api.Router.PathPrefix(RealmPath + "/").Handler(p)
	return p
}

// Issuer returns the issuer URL of the realm.
func (p *OIDCProvider) Issuer() string {
	return p.api.Server.URL + RealmPath
}

// Grants returns how many tokens were issued with the given grant
// type ("password", "refresh_token" or "device_code").
func (p *OIDCProvider) Grants(grantType string) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.grants[grantType]
}

// ValidAccessToken reports whether tok was issued by p.
func (p *OIDCProvider) ValidAccessToken(tok string) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tokens[tok]
}

func (p *OIDCProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	req.ParseForm()
	p.c.Logf("OIDCProvider: got req: %s %s %s", req.Method, req.URL.Path, req.PostForm)
	issuer := p.Issuer()
	switch strings.TrimPrefix(req.URL.Path, RealmPath) {
	case "/.well-known/openid-configuration":
		grants := []string{"password", "refresh_token"}
		disc := map[string]interface{}{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + "/protocol/openid-connect/auth",
			"token_endpoint":                        issuer + "/protocol/openid-connect/token",
			"jwks_uri":                              issuer + "/protocol/openid-connect/certs",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}
		if !p.NoDeviceGrant {
			grants = append(grants, deviceCodeGrant)
			disc["device_authorization_endpoint"] = issuer + "/protocol/openid-connect/auth/device"
		}
		disc["grant_types_supported"] = grants
		WriteJSON(w, http.StatusOK, disc)
	case "/protocol/openid-connect/certs":
		WriteJSON(w, http.StatusOK, jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{Key: p.key.Public(), Algorithm: string(jose.RS256), Use: "sig", KeyID: "stub"},
			},
		})
	case "/protocol/openid-connect/auth/device":
		if req.PostForm.Get("client_id") == "" {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"device_code":               "stub-device-code",
			"user_code":                 "ABCD-EFGH",
			"verification_uri":          issuer + "/device",
			"verification_uri_complete": issuer + "/device?user_code=ABCD-EFGH",
			"expires_in":                600,
			"interval":                  1,
		})
	case "/protocol/openid-connect/token":
		p.serveToken(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *OIDCProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	form := req.PostForm
	clientID := form.Get("client_id")
	if clientID == "" {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	grant := form.Get("grant_type")
	switch grant {
	case "password":
		if form.Get("username") != p.ValidUsername || form.Get("password") != p.ValidPassword {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid user credentials",
			})
			return
		}
		if p.ValidTotp != "" && form.Get("totp") != p.ValidTotp {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid TOTP",
			})
			return
		}
	case "refresh_token":
		p.mtx.Lock()
		ok := p.tokens[form.Get("refresh_token")]
		p.mtx.Unlock()
		if !ok {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case deviceCodeGrant:
		if p.NoDeviceGrant || form.Get("device_code") != "stub-device-code" {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		grant = "device_code"
	default:
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	lifetime := p.TokenLifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}
	p.mtx.Lock()
	p.serial++
	p.grants[grant]++
	access := fmt.Sprintf("stub-access-%d", p.serial)
	refresh := fmt.Sprintf("stub-refresh-%d", p.serial)
	p.tokens[access] = true
	p.tokens[refresh] = true
	p.mtx.Unlock()

	now := time.Now().UTC()
	idToken, _ := json.Marshal(map[string]interface{}{
		"iss":                p.Issuer(),
		"aud":                []string{clientID},
		"sub":                "stub-user-id",
		"exp":                now.Add(lifetime).Unix(),
		"iat":                now.Unix(),
		"preferred_username": p.ValidUsername,
		"email":              p.ValidUsername,
	})
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"token_type":    "Bearer",
		"refresh_token": refresh,
		"expires_in":    int(lifetime.Seconds()),
		"id_token":      p.sign(idToken),
	})
}

func (p *OIDCProvider) sign(payload []byte) string {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: p.key}, (&jose.SignerOptions{}).WithHeader("kid", "stub"))
	if err != nil {
		p.c.Error(err)
		return ""
	}
	object, err := signer.Sign(payload)
	if err != nil {
		p.c.Error(err)
		return ""
	}
	t, err := object.CompactSerialize()
	if err != nil {
		p.c.Error(err)
		return ""
	}
	return t
}
