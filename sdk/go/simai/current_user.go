// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CurrentUser gives access to the account of the authenticated
// user.
type CurrentUser struct {
	session *Session
}

// A Consent records that the user granted a client offline access.
type Consent struct {
	ClientID        string    `json:"client_id"`
	CreatedDate     time.Time `json:"created_date"`
	LastUpdatedDate time.Time `json:"last_updated_date"`
	GrantedScopes   []string  `json:"granted_scopes"`
}

func (c Consent) String() string {
	return fmt.Sprintf("<Consent: %s, created: %s, last updated: %s>", c.ClientID, c.CreatedDate, c.LastUpdatedDate)
}

// Consents returns the offline access consents the user granted.
func (u *CurrentUser) Consents(ctx context.Context) ([]Consent, error) {
	consents := []Consent{}
	err := u.session.Client.RequestAndDecode(ctx, &consents, http.MethodGet, "users/offline-tokens", nil, nil)
	if err != nil {
		return nil, err
	}
	for i := range consents {
		if consents[i].GrantedScopes == nil {
			consents[i].GrantedScopes = []string{}
		}
	}
	return consents, nil
}

// RevokeConsent revokes the consent granted to a client, which
// invalidates that client's offline tokens. It returns an error
// matching ErrNotFound if there is no such consent.
func (u *CurrentUser) RevokeConsent(ctx context.Context, clientID string) error {
	if err := requireID("client", clientID); err != nil {
		return err
	}
	return u.session.do(ctx, http.MethodDelete, pathf("users/offline-tokens/%s", clientID), nil, nil)
}
