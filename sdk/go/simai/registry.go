// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/mapstructure"
)

// DefaultRegistrySize is the number of objects of each resource type
// a Session keeps track of.
const DefaultRegistrySize = 4096

// object is the state shared by all domain objects: the most recent
// record received from the server, and its typed decoding F.
type object[F any] struct {
	mtx    sync.Mutex
	id     string
	fields RawRecord
	typed  F
}

// ID returns the server-assigned identifier.
func (o *object[F]) ID() string {
	return o.id
}

// Fields returns a copy of the most recent record received from the
// server for this object.
func (o *object[F]) Fields() RawRecord {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	cp := make(RawRecord, len(o.fields))
	for k, v := range o.fields {
		cp[k] = v
	}
	return cp
}

func (o *object[F]) get() F {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.typed
}

func (o *object[F]) update(rec RawRecord) error {
	var typed F
	if err := decodeFields(rec, &typed); err != nil {
		return err
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.fields = rec
	o.typed = typed
	return nil
}

// stateFailed reports whether state, as reported for a resource the
// server processes asynchronously, is final and unsuccessful.
func stateFailed(state string) bool {
	switch state {
	case "failure", "rejected", "cancelled":
		return true
	}
	return false
}

// model is implemented by pointers to domain object types. update
// replaces the object's fields with rec; it is called with a record
// whose id matches the object's.
type model interface {
	update(rec RawRecord) error
}

// registry maps ids to live objects of one resource type, so
// converting two records with the same id yields the same object.
// Least recently used objects are forgotten once size is reached.
type registry[T model] struct {
	objects *lru.TwoQueueCache
	create  func(id string) T
	mtx     sync.Mutex
}

func newRegistry[T model](size int, create func(id string) T) *registry[T] {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	objects, err := lru.New2Q(size)
	if err != nil {
		// only possible if size <= 0
		panic(err)
	}
	return &registry[T]{objects: objects, create: create}
}

// modelFrom returns the object for rec's id, creating it if needed,
// with its fields replaced by rec.
func (r *registry[T]) modelFrom(rec RawRecord) (T, error) {
	var zero T
	id, err := recordID(rec)
	if err != nil {
		return zero, err
	}
	r.mtx.Lock()
	var obj T
	if v, ok := r.objects.Get(id); ok {
		obj = v.(T)
	} else {
		obj = r.create(id)
		r.objects.Add(id, obj)
	}
	r.mtx.Unlock()
	if err := obj.update(rec); err != nil {
		return zero, err
	}
	return obj, nil
}

func (r *registry[T]) forget(id string) {
	r.objects.Remove(id)
}

func recordID(rec RawRecord) (string, error) {
	switch id := rec["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case fmt.Stringer:
		// json.Number
		if s := id.String(); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: record has no id: %v", ErrMalformedResponse, rec)
}

// decodeFields copies the members of rec into the json-tagged fields
// of the struct dst points to, converting numbers and timestamps.
func decodeFields(rec RawRecord, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           dst,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(rec)); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	return nil
}
