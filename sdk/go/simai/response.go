// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tomnomnom/linkheader"
)

// A RawRecord is one JSON object as returned by the API, before it
// is converted to a domain object. Numbers are json.Number.
type RawRecord map[string]interface{}

// Response is a successful (2xx) API response with its body already
// read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// URL of the request that produced this response. Relative
	// links in headers are resolved against it.
	URL *url.URL
}

// DecodeJSON unmarshals the response body into dst. Numbers decode
// as json.Number when dst is an interface or map.
func (r *Response) DecodeJSON(dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %s", ErrMalformedResponse, r.URL, err)
	}
	return nil
}

// Records decodes the response body as a JSON array of objects. A
// body that is not an array, including null, is malformed.
func (r *Response) Records() ([]RawRecord, error) {
	if body := bytes.TrimSpace(r.Body); len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: response from %s is not a list", ErrMalformedResponse, r.URL)
	}
	var recs []RawRecord
	if err := r.DecodeJSON(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// NextLink returns the absolute URL of the rel="next" entry of the
// Link header, or "" if there is none.
func (r *Response) NextLink() (string, error) {
	links := linkheader.ParseMultiple(r.Header.Values("Link")).FilterByRel("next")
	if len(links) == 0 {
		return "", nil
	}
	next, err := url.Parse(links[0].URL)
	if err != nil || links[0].URL == "" {
		return "", fmt.Errorf("%w: unusable next page link %q in response from %s", ErrMalformedResponse, links[0].URL, r.URL)
	}
	if r.URL != nil {
		next = r.URL.ResolveReference(next)
	}
	if !next.IsAbs() {
		return "", fmt.Errorf("%w: next page link %q is not absolute", ErrMalformedResponse, links[0].URL)
	}
	return next.String(), nil
}

// Total returns the item count from the X-Pagination header, or -1
// if the header is absent or has no usable "total".
func (r *Response) Total() int {
	total, err := r.total()
	if err != nil {
		return -1
	}
	return total
}

func (r *Response) total() (int, error) {
	hdr := r.Header.Get("X-Pagination")
	if hdr == "" {
		return -1, nil
	}
	var p struct {
		Total *int `json:"total"`
	}
	if err := json.Unmarshal([]byte(hdr), &p); err != nil {
		return -1, fmt.Errorf("X-Pagination header %q: %w", hdr, err)
	}
	if p.Total == nil {
		return -1, fmt.Errorf("X-Pagination header %q has no total", hdr)
	}
	return *p.Total, nil
}
