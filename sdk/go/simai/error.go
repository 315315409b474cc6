// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrInvalidArgument is matched (with errors.Is) by errors
	// caused by caller-supplied values the SDK cannot use.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAPICommunication is matched by every error that comes from
	// talking to the API server: non-2xx responses
	// (*TransactionError) and transport failures (*ConnectionError).
	ErrAPICommunication = errors.New("API communication error")

	// ErrNotFound is matched by a *TransactionError with status 404.
	ErrNotFound = errors.New("not found")

	// ErrMalformedResponse is matched by errors caused by a 2xx
	// response the SDK cannot interpret.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConfiguration is matched by errors loading or validating
	// client configuration.
	ErrConfiguration = errors.New("configuration error")
)

// TransactionError is returned when the API server responds with a
// non-2xx status.
type TransactionError struct {
	Method     string
	URL        url.URL
	StatusCode int
	Status     string
	errors     []string
}

func (e *TransactionError) Error() (s string) {
	s = fmt.Sprintf("request failed: %s %s", e.Method, e.URL.String())
	if e.Status != "" {
		s = s + ": " + e.Status
	}
	if len(e.errors) > 0 {
		s = s + ": " + strings.Join(e.errors, "; ")
	}
	return
}

// Is reports whether target is ErrAPICommunication, or ErrNotFound
// and the response status was 404.
func (e *TransactionError) Is(target error) bool {
	switch target {
	case ErrAPICommunication:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Messages returns the error messages reported by the server, if
// any.
func (e *TransactionError) Messages() []string {
	return append([]string(nil), e.errors...)
}

// serverError is the set of keys the API uses to report errors.
type serverError struct {
	Errors           json.RawMessage `json:"errors"`
	Message          string          `json:"message"`
	Status           string          `json:"status"`
	ErrorDescription string          `json:"error_description"`
	Resolution       string          `json:"resolution"`
}

func newTransactionError(req *http.Request, resp *http.Response, buf []byte) *TransactionError {
	e := TransactionError{
		Method: req.Method,
		URL:    *req.URL,
	}
	if resp != nil {
		e.Status = resp.Status
		e.StatusCode = resp.StatusCode
	}
	var se serverError
	if json.Unmarshal(buf, &se) != nil {
		// No JSON-formatted error response
		return &e
	}
	var msgs []string
	if len(se.Errors) > 0 {
		if json.Unmarshal(se.Errors, &msgs) != nil {
			var msg string
			if json.Unmarshal(se.Errors, &msg) == nil {
				msgs = []string{msg}
			} else {
				msgs = []string{string(se.Errors)}
			}
		}
	}
	for _, msg := range []string{se.Message, se.Status, se.ErrorDescription} {
		if len(msgs) > 0 {
			break
		}
		if msg != "" {
			msgs = []string{msg}
		}
	}
	if se.Resolution != "" {
		msgs = append(msgs, se.Resolution)
	}
	e.errors = msgs
	return &e
}

// ConnectionError is returned when a request could not be completed
// at the transport level (DNS, TCP, TLS, timeout).
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not communicate with server: %s %s: %s", e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool {
	return target == ErrAPICommunication
}
