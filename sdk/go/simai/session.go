// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// A Session gives access to the resource directories of one API
// server. Within a session, a given resource id always maps to the
// same object, so an object obtained from one listing is refreshed
// by the next listing that includes it.
type Session struct {
	Client *Client

	Projects          *ProjectDirectory
	TrainingData      *TrainingDataDirectory
	TrainingDataParts *TrainingDataPartDirectory
	Workspaces        *WorkspaceDirectory
	Models            *ModelDirectory
	Predictions       *PredictionDirectory
	Geometries        *GeometryDirectory
	Me                *CurrentUser

	// Chunk size for file uploads. Zero means DefaultPartSize.
	UploadPartSize int
}

// NewSession returns a Session that uses client for all requests.
func NewSession(client *Client) *Session {
	return NewSessionWithRegistrySize(client, DefaultRegistrySize)
}

// NewSessionWithRegistrySize is like NewSession, but each directory
// remembers up to size objects.
func NewSessionWithRegistrySize(client *Client, size int) *Session {
	s := &Session{Client: client}
	s.Projects = &ProjectDirectory{session: s}
	s.Projects.reg = newRegistry(size, func(id string) *Project {
		p := &Project{dir: s.Projects}
		p.id = id
		return p
	})
	s.TrainingData = &TrainingDataDirectory{session: s}
	s.TrainingData.reg = newRegistry(size, func(id string) *TrainingData {
		td := &TrainingData{dir: s.TrainingData}
		td.id = id
		return td
	})
	s.TrainingDataParts = &TrainingDataPartDirectory{session: s}
	s.TrainingDataParts.reg = newRegistry(size, func(id string) *TrainingDataPart {
		part := &TrainingDataPart{dir: s.TrainingDataParts}
		part.id = id
		return part
	})
	s.Workspaces = &WorkspaceDirectory{session: s}
	s.Workspaces.reg = newRegistry(size, func(id string) *Workspace {
		ws := &Workspace{dir: s.Workspaces}
		ws.id = id
		return ws
	})
	s.Models = &ModelDirectory{session: s}
	s.Models.reg = newRegistry(size, func(id string) *Model {
		m := &Model{dir: s.Models}
		m.id = id
		return m
	})
	s.Predictions = &PredictionDirectory{session: s}
	s.Predictions.reg = newRegistry(size, func(id string) *Prediction {
		pred := &Prediction{dir: s.Predictions}
		pred.id = id
		return pred
	})
	s.Geometries = &GeometryDirectory{session: s}
	s.Geometries.reg = newRegistry(size, func(id string) *Geometry {
		g := &Geometry{dir: s.Geometries}
		g.id = id
		return g
	})
	s.Me = &CurrentUser{session: s}
	return s
}

func (s *Session) getRecord(ctx context.Context, uri string) (RawRecord, error) {
	return s.doRecord(ctx, http.MethodGet, uri, nil, nil)
}

// doRecord performs a request whose response is a single JSON
// object.
func (s *Session) doRecord(ctx context.Context, method, uri string, body, params interface{}) (RawRecord, error) {
	var rec RawRecord
	err := s.Client.RequestAndDecode(ctx, &rec, method, uri, body, params)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// getRecords fetches an unpaginated list endpoint.
func (s *Session) getRecords(ctx context.Context, uri string, params interface{}) ([]RawRecord, error) {
	resp, err := s.Client.request(ctx, http.MethodGet, uri, nil, params)
	if err != nil {
		return nil, err
	}
	return resp.Records()
}

// do performs a request whose response body, if any, is ignored.
func (s *Session) do(ctx context.Context, method, uri string, body, params interface{}) error {
	return s.Client.RequestAndDecode(ctx, nil, method, uri, body, params)
}

// modelsFrom converts each record with convert.
func modelsFrom[T any](recs []RawRecord, convert func(RawRecord) (T, error)) ([]T, error) {
	objs := make([]T, 0, len(recs))
	for _, rec := range recs {
		obj, err := convert(rec)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// pathf builds a request path from a format and path segments,
// escaping each segment.
func pathf(format string, segments ...string) string {
	args := make([]interface{}, len(segments))
	for i, seg := range segments {
		args[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf(format, args...)
}

func requireID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s id must not be empty", ErrInvalidArgument, kind)
	}
	return nil
}
