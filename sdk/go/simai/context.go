// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type contextKeyRequestID struct{}
type contextKeyAuthorization struct{}

// ContextWithRequestID returns a child context that sends the given
// X-Request-Id value with each request made through a Client.
func ContextWithRequestID(ctx context.Context, reqid string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, reqid)
}

// ContextWithAuthorization returns a child context that (when used
// with (*Client)Request) sends the given Authorization header value
// instead of the Client's own token.
func ContextWithAuthorization(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization{}, value)
}

// idGenerator generates alphanumeric strings suitable for use as
// unique request IDs (a given idGenerator will never return the same
// ID twice).
type idGenerator struct {
	// Prefix is prepended to each returned ID.
	Prefix string

	lastID int64
	mtx    sync.Mutex
}

// Next returns a new ID string. It is safe to call Next from multiple
// goroutines.
func (g *idGenerator) Next() string {
	id := time.Now().UnixNano()
	g.mtx.Lock()
	if id <= g.lastID {
		id = g.lastID + 1
	}
	g.lastID = id
	g.mtx.Unlock()
	return g.Prefix + strconv.FormatInt(id, 36)
}
