// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package simaitest provides a stub SimAI API server for tests.
package simaitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/check.v1"
)

// APIPrefix is the path prefix of the stub API.
const APIPrefix = "/v2/"

// A Request is a request received by a StubAPI.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// StubAPI is an HTTP server that serves paginated collections the way
// the SimAI API does (Link and X-Pagination headers), plus whatever
// handlers a test adds to Router. It records every request.
type StubAPI struct {
	Server *httptest.Server
	Router *mux.Router

	// Records per page in collection listings.
	PageSize int
	// Leave out the X-Pagination header.
	OmitTotal bool

	mtx         sync.Mutex
	requests    []Request
	collections map[string][]map[string]interface{}
	failures    map[string]int
	c           *check.C
}

// NewStubAPI starts a stub server. The caller should Close it.
func NewStubAPI(c *check.C) *StubAPI {
	s := &StubAPI{
		Router:      mux.NewRouter(),
		PageSize:    2,
		collections: map[string][]map[string]interface{}{},
		failures:    map[string]int{},
		c:           c,
	}
	s.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.c.Logf("StubAPI: no route for %s %s", req.Method, req.URL)
		WriteJSON(w, http.StatusNotFound, map[string]interface{}{"status": "not found"})
	})
	s.Server = httptest.NewServer(s)
	return s
}

// Close shuts down the server.
func (s *StubAPI) Close() {
	s.Server.Close()
}

// Host returns the host:port of the server.
func (s *StubAPI) Host() string {
	u, _ := url.Parse(s.Server.URL)
	return u.Host
}

// URL returns the absolute URL of the given API path.
func (s *StubAPI) URL(path string) string {
	return s.Server.URL + APIPrefix + path
}

func (s *StubAPI) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	req.Body.Close()
	s.mtx.Lock()
	s.requests = append(s.requests, Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	s.mtx.Unlock()
	req.Body = io.NopCloser(bytes.NewReader(body))
	s.Router.ServeHTTP(w, req)
}

// Requests returns the requests received so far, optionally only
// those for the given API path.
func (s *StubAPI) Requests(path ...string) []Request {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var reqs []Request
	for _, r := range s.requests {
		if len(path) == 0 || r.Path == APIPrefix+path[0] {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// SetCollection serves recs as a paginated listing at the given API
// path. Page n>1 is requested with "?page=n".
func (s *StubAPI) SetCollection(path string, recs []map[string]interface{}) {
	s.mtx.Lock()
	_, registered := s.collections[path]
	s.collections[path] = recs
	s.mtx.Unlock()
	if !registered {
		s.Router.Path(APIPrefix + path).Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.serveCollection(w, req, path)
		})
	}
}

// FailPage makes requests for the given page of a collection fail
// with status.
func (s *StubAPI) FailPage(path string, page, status int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.failures[fmt.Sprintf("%s#%d", path, page)] = status
}

func (s *StubAPI) serveCollection(w http.ResponseWriter, req *http.Request, path string) {
	page := 1
	if p := req.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	s.mtx.Lock()
	recs := s.collections[path]
	status, fail := s.failures[fmt.Sprintf("%s#%d", path, page)]
	s.mtx.Unlock()
	if fail {
		WriteJSON(w, status, map[string]interface{}{"status": http.StatusText(status)})
		return
	}
	pageSize := s.PageSize
	if pageSize < 1 {
		pageSize = len(recs) + 1
	}
	start := (page - 1) * pageSize
	if start > len(recs) || page < 1 {
		start = len(recs)
	}
	end := start + pageSize
	if end > len(recs) {
		end = len(recs)
	}
	if end < len(recs) {
		next := *req.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		next.Scheme = "http"
		next.Host = req.Host
		w.Header().Add("Link", fmt.Sprintf(`<%s>; rel="next"`, next.String()))
	}
	if page == 1 && !s.OmitTotal {
		pages := (len(recs) + pageSize - 1) / pageSize
		hdr, _ := json.Marshal(map[string]int{"total": len(recs), "total_pages": pages})
		w.Header().Set("X-Pagination", string(hdr))
	}
	out := recs[start:end]
	if out == nil {
		out = []map[string]interface{}{}
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleJSON makes the server respond to method and API path (which
// may contain gorilla/mux {variables}) with status and the JSON
// encoding of body.
func (s *StubAPI) HandleJSON(method, path string, status int, body interface{}) {
	s.Router.Path(APIPrefix + path).Methods(method).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteJSON(w, status, body)
	})
}

// WriteJSON writes status and the JSON encoding of body, or no body
// if body is nil.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
