// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
	"github.com/simai-sdk/simai-go/sdk/go/simaitest"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&PaginationSuite{})

type PaginationSuite struct {
	api    *simaitest.StubAPI
	client *Client
	ctx    context.Context
}

// stubClient returns a Client that talks to api without retries.
func stubClient(api *simaitest.StubAPI) *Client {
	return &Client{
		Client:       NewRetryingHTTPClient(http.DefaultTransport, 0),
		Scheme:       "http",
		APIHost:      api.Host(),
		APIPrefix:    simaitest.APIPrefix,
		Organization: "acme",
		AuthToken:    "stub-token",
	}
}

func fakeRecords(n int) []map[string]interface{} {
	recs := make([]map[string]interface{}, n)
	for i := range recs {
		recs[i] = map[string]interface{}{
			"id":    fmt.Sprintf("td-%d", i),
			"name":  fmt.Sprintf("run %d", i),
			"state": "successful",
		}
	}
	return recs
}

func (s *PaginationSuite) SetUpTest(c *check.C) {
	s.api = simaitest.NewStubAPI(c)
	s.api.SetCollection("training-data", fakeRecords(5))
	s.client = stubClient(s.api)
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
}

func (s *PaginationSuite) TearDownTest(c *check.C) {
	s.api.Close()
}

func (s *PaginationSuite) pageRequests() int {
	return len(s.api.Requests("training-data"))
}

func (s *PaginationSuite) collect(c *check.C, it *RawIterator) []string {
	var ids []string
	for it.Next(s.ctx) {
		ids = append(ids, it.Record()["id"].(string))
	}
	return ids
}

func (s *PaginationSuite) TestFollowsNextLinks(c *check.C) {
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 5)
	c.Check(s.collect(c, it), check.DeepEquals, []string{"td-0", "td-1", "td-2", "td-3", "td-4"})
	c.Check(it.Err(), check.IsNil)
	c.Check(s.pageRequests(), check.Equals, 3)
	for i, req := range s.api.Requests("training-data") {
		if i == 0 {
			c.Check(req.Query.Get("page"), check.Equals, "")
		} else {
			c.Check(req.Query.Get("page"), check.Equals, fmt.Sprint(i+1))
		}
	}
}

func (s *PaginationSuite) TestFirstPageBeforeFetching(c *check.C) {
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.pageRequests(), check.Equals, 1)
	for i := 0; i < 2; i++ {
		c.Assert(it.Next(s.ctx), check.Equals, true)
		c.Check(s.pageRequests(), check.Equals, 1)
	}
	c.Assert(it.Next(s.ctx), check.Equals, true)
	c.Check(it.Record()["id"], check.Equals, "td-2")
	c.Check(s.pageRequests(), check.Equals, 2)
}

func (s *PaginationSuite) TestLenIsSnapshot(c *check.C) {
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 5)
	s.api.SetCollection("training-data", fakeRecords(9))
	n := 0
	for it.Next(s.ctx) {
		n++
		c.Check(it.Len(), check.Equals, 5)
	}
	c.Check(it.Err(), check.IsNil)
	c.Check(n, check.Equals, 9)
	c.Check(it.Len(), check.Equals, 5)
}

func (s *PaginationSuite) TestLastPageStops(c *check.C) {
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.HasLen, 5)
	c.Check(s.pageRequests(), check.Equals, 3)
	c.Check(it.Next(s.ctx), check.Equals, false)
	c.Check(it.Record(), check.IsNil)
	c.Check(it.Err(), check.IsNil)
	c.Check(s.pageRequests(), check.Equals, 3)
}

func (s *PaginationSuite) TestSinglePage(c *check.C) {
	s.api.PageSize = 0
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.HasLen, 5)
	c.Check(s.pageRequests(), check.Equals, 1)
}

func (s *PaginationSuite) TestEmpty(c *check.C) {
	s.api.SetCollection("training-data", nil)
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 0)
	c.Check(it.Next(s.ctx), check.Equals, false)
	c.Check(it.Err(), check.IsNil)
}

func (s *PaginationSuite) TestSecondPageFails(c *check.C) {
	s.api.FailPage("training-data", 2, http.StatusForbidden)
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.DeepEquals, []string{"td-0", "td-1"})
	err = it.Err()
	c.Check(errors.Is(err, ErrAPICommunication), check.Equals, true)
	var terr *TransactionError
	c.Assert(errors.As(err, &terr), check.Equals, true)
	c.Check(terr.StatusCode, check.Equals, http.StatusForbidden)

	// No retry, no replay.
	c.Check(it.Next(s.ctx), check.Equals, false)
	c.Check(it.Err(), check.Equals, err)
	c.Check(s.pageRequests(), check.Equals, 2)
}

func (s *PaginationSuite) TestFirstPageFails(c *check.C) {
	s.api.FailPage("training-data", 1, http.StatusNotFound)
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Check(it, check.IsNil)
	c.Check(errors.Is(err, ErrNotFound), check.Equals, true)
	c.Check(errors.Is(err, ErrAPICommunication), check.Equals, true)
}

func (s *PaginationSuite) TestIndependentIterators(c *check.C) {
	it1, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	it2, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.pageRequests(), check.Equals, 2)

	for i := 0; i < 3; i++ {
		c.Assert(it1.Next(s.ctx), check.Equals, true)
	}
	c.Assert(it2.Next(s.ctx), check.Equals, true)
	c.Check(it1.Record()["id"], check.Equals, "td-2")
	c.Check(it2.Record()["id"], check.Equals, "td-0")
	c.Check(s.collect(c, it2), check.DeepEquals, []string{"td-1", "td-2", "td-3", "td-4"})
	c.Check(s.collect(c, it1), check.DeepEquals, []string{"td-3", "td-4"})
}

func (s *PaginationSuite) TestRestartSeesNewState(c *check.C) {
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.HasLen, 5)

	s.api.SetCollection("training-data", fakeRecords(3))
	it, err = NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, 3)
	c.Check(s.collect(c, it), check.HasLen, 3)
}

func (s *PaginationSuite) TestNoTotal(c *check.C) {
	s.api.OmitTotal = true
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, -1)
	c.Check(s.collect(c, it), check.HasLen, 5)
}

func (s *PaginationSuite) TestTotalPagesOnly(c *check.C) {
	s.api.Router.HandleFunc(simaitest.APIPrefix+"pages-only", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Pagination", `{"total_pages":3}`)
		simaitest.WriteJSON(w, http.StatusOK, []map[string]string{{"id": "a"}})
	})
	it, err := NewRawIterator(s.ctx, s.client, "pages-only")
	c.Assert(err, check.IsNil)
	c.Check(it.Len(), check.Equals, -1)
}

func (s *PaginationSuite) TestRelativeNextLink(c *check.C) {
	s.api.Router.HandleFunc(simaitest.APIPrefix+"relative", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("page") == "" {
			w.Header().Set("Link", `<relative?page=2>; rel="next", <relative?page=9>; rel="last"`)
			simaitest.WriteJSON(w, http.StatusOK, []map[string]string{{"id": "a"}})
			return
		}
		simaitest.WriteJSON(w, http.StatusOK, []map[string]string{{"id": "b" + req.URL.Query().Get("page")}})
	})
	it, err := NewRawIterator(s.ctx, s.client, "relative")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.DeepEquals, []string{"a", "b2"})
	c.Check(it.Err(), check.IsNil)
}

func (s *PaginationSuite) TestMalformedPage(c *check.C) {
	s.api.HandleJSON(http.MethodGet, "object", http.StatusOK, map[string]string{"id": "a"})
	_, err := NewRawIterator(s.ctx, s.client, "object")
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true, check.Commentf("%v", err))

	s.api.Router.HandleFunc(simaitest.APIPrefix+"badlink", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Link", `<http://[::1>; rel="next"`)
		simaitest.WriteJSON(w, http.StatusOK, []map[string]string{{"id": "a"}})
	})
	_, err = NewRawIterator(s.ctx, s.client, "badlink")
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true, check.Commentf("%v", err))

	for path, body := range map[string]string{
		"null":   "null\n",
		"string": `"[]"`,
		"number": "0",
		"empty":  "",
		"spaces": "  \n",
	} {
		body := body
		s.api.Router.HandleFunc(simaitest.APIPrefix+"page/"+path, func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
		_, err = NewRawIterator(s.ctx, s.client, "page/"+path)
		c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true, check.Commentf("%s: %v", path, err))
	}

	// An empty list, with or without surrounding whitespace, is a
	// valid empty page.
	s.api.Router.HandleFunc(simaitest.APIPrefix+"page/empty-list", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(" [ ]\n"))
	})
	it, err := NewRawIterator(s.ctx, s.client, "page/empty-list")
	c.Assert(err, check.IsNil)
	c.Check(it.Next(s.ctx), check.Equals, false)
	c.Check(it.Err(), check.IsNil)
}

func (s *PaginationSuite) TestCancelBetweenPages(c *check.C) {
	ctx, cancel := context.WithCancel(s.ctx)
	it, err := NewRawIterator(ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(it.Next(ctx), check.Equals, true)
	c.Check(it.Next(ctx), check.Equals, true)
	cancel()
	c.Check(it.Next(ctx), check.Equals, false)
	c.Check(errors.Is(it.Err(), context.Canceled), check.Equals, true, check.Commentf("%v", it.Err()))
	c.Check(errors.Is(it.Err(), ErrAPICommunication), check.Equals, true)
}

func (s *PaginationSuite) TestPageMetrics(c *check.C) {
	reg := prometheus.NewRegistry()
	s.client.Metrics = NewMetrics(reg)
	it, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	c.Check(s.collect(c, it), check.HasLen, 5)
	c.Check(testutil.ToFloat64(s.client.Metrics.pagesFetched), check.Equals, float64(3))
	c.Check(testutil.ToFloat64(s.client.Metrics.requests.WithLabelValues("GET", "200")), check.Equals, float64(3))
}

// countingFactory converts records to their ids and remembers each
// call.
type countingFactory struct {
	calls  []string
	failOn string
}

func (f *countingFactory) ModelFrom(rec RawRecord) (string, error) {
	id, _ := rec["id"].(string)
	f.calls = append(f.calls, id)
	if id == f.failOn {
		return "", fmt.Errorf("%w: cannot convert %s", ErrMalformedResponse, id)
	}
	return "model-" + id, nil
}

func (s *PaginationSuite) TestModelIterator(c *check.C) {
	raw, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	f := &countingFactory{}
	it := NewModelIterator[string](raw, f)
	c.Check(it.Len(), check.Equals, 5)
	c.Check(f.calls, check.HasLen, 0)
	models, err := it.All(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(models, check.DeepEquals, []string{"model-td-0", "model-td-1", "model-td-2", "model-td-3", "model-td-4"})
	c.Check(f.calls, check.DeepEquals, []string{"td-0", "td-1", "td-2", "td-3", "td-4"})
	c.Check(it.Len(), check.Equals, 5)
}

func (s *PaginationSuite) TestModelIteratorLazy(c *check.C) {
	raw, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	f := &countingFactory{}
	it := NewModelIterator[string](raw, f)
	c.Assert(it.Next(s.ctx), check.Equals, true)
	c.Check(it.Model(), check.Equals, "model-td-0")
	c.Check(f.calls, check.DeepEquals, []string{"td-0"})
}

func (s *PaginationSuite) TestModelIteratorFactoryError(c *check.C) {
	raw, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	f := &countingFactory{failOn: "td-1"}
	it := NewModelIterator[string](raw, f)
	models, err := it.All(s.ctx)
	c.Check(errors.Is(err, ErrMalformedResponse), check.Equals, true)
	c.Check(models, check.DeepEquals, []string{"model-td-0"})
	c.Check(it.Next(s.ctx), check.Equals, false)
	c.Check(f.calls, check.DeepEquals, []string{"td-0", "td-1"})
	c.Check(s.pageRequests(), check.Equals, 1)
}

func (s *PaginationSuite) TestModelIteratorPageError(c *check.C) {
	s.api.FailPage("training-data", 3, http.StatusGone)
	raw, err := NewRawIterator(s.ctx, s.client, "training-data")
	c.Assert(err, check.IsNil)
	f := &countingFactory{}
	models, err := NewModelIterator[string](raw, f).All(s.ctx)
	c.Check(errors.Is(err, ErrAPICommunication), check.Equals, true)
	c.Check(models, check.HasLen, 4)
	c.Check(f.calls, check.HasLen, 4)
}
