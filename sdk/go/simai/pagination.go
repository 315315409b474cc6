// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"net/http"

	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
)

// RawIterator iterates over the records of a paginated list
// endpoint, following the rel="next" Link header from page to page.
//
// The first page is fetched by NewRawIterator, so Len is known
// before iteration starts. Subsequent pages are fetched by Next, one
// at a time, when the current page is used up. A RawIterator makes a
// single pass; to list again, create a new one.
//
//	it, err := simai.NewRawIterator(ctx, client, "training-data")
//	if err != nil {
//		return err
//	}
//	for it.Next(ctx) {
//		rec := it.Record()
//		...
//	}
//	return it.Err()
type RawIterator struct {
	requester Requester
	uri       string
	length    int

	// Records of the current page not yet returned by Next. The
	// first page's records are released as they are consumed.
	page []RawRecord
	// Absolute URL of the next page, "" if the current page is
	// the last one.
	next string

	current RawRecord
	done    bool
	err     error
}

// NewRawIterator fetches the first page of uri and returns an
// iterator over all records of the listing. Errors fetching or
// decoding the first page are returned here.
func NewRawIterator(ctx context.Context, requester Requester, uri string) (*RawIterator, error) {
	it := &RawIterator{requester: requester, uri: uri}
	resp, err := it.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	total, err := resp.total()
	if err != nil {
		ctxlog.FromContext(ctx).WithField("URI", uri).WithError(err).Warn("could not get item count from pagination header")
	}
	it.length = total
	it.page, it.next, err = pageContents(resp)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Len returns the total number of records reported by the server
// when the first page was fetched, or -1 if the server did not
// report it. It does not change during iteration.
func (it *RawIterator) Len() int {
	return it.length
}

// Next advances to the next record, fetching the next page if
// needed. It returns false when there are no more records or an
// error occurred; check Err to tell the difference.
func (it *RawIterator) Next(ctx context.Context) bool {
	for !it.done && len(it.page) == 0 {
		if it.next == "" {
			it.finish(nil)
			break
		}
		resp, err := it.fetch(ctx, it.next)
		if err != nil {
			it.finish(err)
			break
		}
		it.page, it.next, err = pageContents(resp)
		if err != nil {
			it.finish(err)
			break
		}
	}
	if it.done {
		it.current = nil
		return false
	}
	it.current = it.page[0]
	it.page[0] = nil
	it.page = it.page[1:]
	return true
}

// Record returns the record Next advanced to.
func (it *RawIterator) Record() RawRecord {
	return it.current
}

// Err returns the error, if any, that ended iteration.
func (it *RawIterator) Err() error {
	return it.err
}

func (it *RawIterator) finish(err error) {
	it.done = true
	it.err = err
	it.page = nil
	it.next = ""
}

func (it *RawIterator) fetch(ctx context.Context, uri string) (*Response, error) {
	ctxlog.FromContext(ctx).WithField("URI", uri).Debug("fetching page")
	resp, err := it.requester.Request(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if obs, ok := it.requester.(interface{ observePage() }); ok {
		obs.observePage()
	}
	return resp, nil
}

// pageContents returns the records of one page and the URL of the
// page after it.
func pageContents(resp *Response) ([]RawRecord, string, error) {
	recs, err := resp.Records()
	if err != nil {
		return nil, "", err
	}
	next, err := resp.NextLink()
	if err != nil {
		return nil, "", err
	}
	return recs, next, nil
}

// A ModelFactory converts raw records of one resource type to domain
// objects. ModelFrom must not make network requests.
type ModelFactory[T any] interface {
	ModelFrom(rec RawRecord) (T, error)
}

// ModelIterator iterates over a paginated listing, converting each
// record with a ModelFactory as it is reached.
type ModelIterator[T any] struct {
	raw     *RawIterator
	factory ModelFactory[T]
	current T
	err     error
}

// NewModelIterator returns an iterator that yields factory's
// conversion of each record of raw, in order.
func NewModelIterator[T any](raw *RawIterator, factory ModelFactory[T]) *ModelIterator[T] {
	return &ModelIterator[T]{raw: raw, factory: factory}
}

// Len returns the underlying RawIterator's Len.
func (it *ModelIterator[T]) Len() int {
	return it.raw.Len()
}

// Next advances to the next object. It returns false when there are
// no more records or an error occurred; check Err to tell the
// difference.
func (it *ModelIterator[T]) Next(ctx context.Context) bool {
	var zero T
	it.current = zero
	if it.err != nil || !it.raw.Next(ctx) {
		return false
	}
	obj, err := it.factory.ModelFrom(it.raw.Record())
	if err != nil {
		it.err = err
		return false
	}
	it.current = obj
	return true
}

// Model returns the object Next advanced to.
func (it *ModelIterator[T]) Model() T {
	return it.current
}

// Err returns the error, if any, that ended iteration.
func (it *ModelIterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.raw.Err()
}

// All consumes the rest of the iterator and returns the objects.
func (it *ModelIterator[T]) All(ctx context.Context) ([]T, error) {
	var objs []T
	for it.Next(ctx) {
		objs = append(objs, it.Model())
	}
	return objs, it.Err()
}
