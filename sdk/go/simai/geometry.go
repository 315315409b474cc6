// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
)

// GeometryDirectory gives access to the "geometries" endpoints.
type GeometryDirectory struct {
	session *Session
	reg     *registry[*Geometry]
}

// ModelFrom implements ModelFactory.
func (d *GeometryDirectory) ModelFrom(rec RawRecord) (*Geometry, error) {
	return d.reg.modelFrom(rec)
}

// List returns the geometries of a workspace. If filters is not
// empty, only geometries whose fields (or metadata) have the given
// values are returned.
func (d *GeometryDirectory) List(ctx context.Context, workspaceID string, filters Equalities) ([]*Geometry, error) {
	if err := requireID("workspace", workspaceID); err != nil {
		return nil, err
	}
	params := url.Values{"workspace": {workspaceID}}
	if len(filters) > 0 {
		buf, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding filters: %s", ErrInvalidArgument, err)
		}
		params.Set("filters", string(buf))
	}
	recs, err := d.session.getRecords(ctx, "geometries/", params)
	if err != nil {
		return nil, err
	}
	return modelsFrom(recs, d.ModelFrom)
}

// Get returns the geometry with the given id.
func (d *GeometryDirectory) Get(ctx context.Context, id string) (*Geometry, error) {
	if err := requireID("geometry", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("geometries/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// GetByName returns the geometry with the given name in a workspace.
func (d *GeometryDirectory) GetByName(ctx context.Context, name, workspaceID string) (*Geometry, error) {
	if err := requireID("geometry name", name); err != nil {
		return nil, err
	}
	if err := requireID("workspace", workspaceID); err != nil {
		return nil, err
	}
	rec, err := d.session.doRecord(ctx, http.MethodGet, pathf("geometries/name/%s", name), nil, url.Values{"workspace": {workspaceID}})
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Upload creates a geometry in a workspace from file, whose name
// (without extension) becomes the geometry name. metadata may be
// nil. progress, if not nil, is called with the size of each
// uploaded chunk.
func (d *GeometryDirectory) Upload(ctx context.Context, workspaceID string, file NamedFile, metadata RawRecord, progress func(int)) (*Geometry, error) {
	if err := requireID("workspace", workspaceID); err != nil {
		return nil, err
	}
	rdr, name, ext, err := file.open()
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	body := map[string]string{
		"name":           name,
		"workspace":      workspaceID,
		"file_extension": ext,
	}
	if len(metadata) > 0 {
		buf, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding metadata: %s", ErrInvalidArgument, err)
		}
		body["metadata"] = string(buf)
	}
	var created struct {
		Geometry RawRecord `json:"geometry"`
		UploadID string    `json:"upload_id"`
	}
	err = d.session.Client.RequestAndDecode(ctx, &created, http.MethodPost, "geometries/", body, nil)
	if err != nil {
		return nil, err
	}
	geom, err := d.ModelFrom(created.Geometry)
	if err != nil {
		return nil, err
	}
	err = d.session.sendParts(ctx, rdr, created.UploadID,
		pathf("geometries/%s/part", geom.id),
		pathf("geometries/%s/complete", geom.id),
		progress)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).WithField("Geometry", geom.id).Infof("uploaded %s.%s", name, ext)
	return geom, nil
}

// Delete deletes the geometry with the given id, and its
// predictions.
func (d *GeometryDirectory) Delete(ctx context.Context, id string) error {
	if err := requireID("geometry", id); err != nil {
		return err
	}
	err := d.session.do(ctx, http.MethodDelete, pathf("geometries/%s", id), nil, url.Values{"confirm": {"true"}})
	if err != nil {
		return err
	}
	d.reg.forget(id)
	return nil
}

type geometryFields struct {
	Name         string    `json:"name"`
	Metadata     RawRecord `json:"metadata"`
	CreationTime string    `json:"creation_time"`
}

// A Geometry is a shape to run predictions on.
type Geometry struct {
	object[geometryFields]
	dir *GeometryDirectory
}

func (g *Geometry) String() string {
	return "<Geometry: " + g.id + ", " + g.Name() + ">"
}

// Name returns the geometry name.
func (g *Geometry) Name() string {
	return g.get().Name
}

// Metadata returns the user-given key/value pairs of the geometry.
func (g *Geometry) Metadata() RawRecord {
	return g.get().Metadata
}

// CreationTime returns when the geometry was created, as an ISO 8601
// UTC timestamp.
func (g *Geometry) CreationTime() string {
	return g.get().CreationTime
}

// Rename changes the geometry name. The file extension cannot be
// changed.
func (g *Geometry) Rename(ctx context.Context, name string) error {
	return g.patch(ctx, map[string]interface{}{"name": name})
}

// UpdateMetadata merges metadata into the geometry's metadata.
func (g *Geometry) UpdateMetadata(ctx context.Context, metadata RawRecord) error {
	return g.patch(ctx, map[string]interface{}{"metadata": metadata})
}

func (g *Geometry) patch(ctx context.Context, body map[string]interface{}) error {
	err := g.dir.session.do(ctx, http.MethodPatch, pathf("geometries/%s", g.id), body, nil)
	if err != nil {
		return err
	}
	return g.Reload(ctx)
}

// RunPrediction requests a prediction on the geometry (see
// PredictionDirectory.Run).
func (g *Geometry) RunPrediction(ctx context.Context, boundaryConditions RawRecord) (*Prediction, error) {
	return g.dir.session.Predictions.Run(ctx, g.id, boundaryConditions)
}

// Predictions returns the predictions run on the geometry.
func (g *Geometry) Predictions(ctx context.Context) ([]*Prediction, error) {
	recs, err := g.dir.session.getRecords(ctx, pathf("geometries/%s/predictions", g.id), nil)
	if err != nil {
		return nil, err
	}
	return modelsFrom(recs, g.dir.session.Predictions.ModelFrom)
}

// Download writes the geometry file to w and returns its size.
func (g *Geometry) Download(ctx context.Context, w io.Writer, progress func(int)) (int64, error) {
	return g.dir.session.Client.Download(ctx, pathf("geometries/%s/download", g.id), w, progress)
}

// Reload fetches the geometry again and updates its fields.
func (g *Geometry) Reload(ctx context.Context) error {
	_, err := g.dir.Get(ctx, g.id)
	return err
}

// Delete deletes the geometry.
func (g *Geometry) Delete(ctx context.Context) error {
	return g.dir.Delete(ctx, g.id)
}
