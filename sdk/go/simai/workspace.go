// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"io"
	"net/http"
)

// WorkspaceDirectory gives access to the "workspaces" endpoints.
type WorkspaceDirectory struct {
	session *Session
	reg     *registry[*Workspace]
}

// ModelFrom implements ModelFactory.
func (d *WorkspaceDirectory) ModelFrom(rec RawRecord) (*Workspace, error) {
	return d.reg.modelFrom(rec)
}

// List returns all workspaces.
func (d *WorkspaceDirectory) List(ctx context.Context) ([]*Workspace, error) {
	recs, err := d.session.getRecords(ctx, "workspaces/", nil)
	if err != nil {
		return nil, err
	}
	return modelsFrom(recs, d.ModelFrom)
}

// Get returns the workspace with the given id.
func (d *WorkspaceDirectory) Get(ctx context.Context, id string) (*Workspace, error) {
	if err := requireID("workspace", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("workspaces/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// GetByName returns the workspace with the given name.
func (d *WorkspaceDirectory) GetByName(ctx context.Context, name string) (*Workspace, error) {
	if err := requireID("workspace name", name); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("workspaces/name/%s", name))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Create creates a workspace that serves predictions with the given
// model.
func (d *WorkspaceDirectory) Create(ctx context.Context, name, modelID string) (*Workspace, error) {
	if err := requireID("model", modelID); err != nil {
		return nil, err
	}
	rec, err := d.session.doRecord(ctx, http.MethodPost, "workspaces/", map[string]string{"name": name, "model": modelID}, nil)
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Delete deletes the workspace with the given id.
func (d *WorkspaceDirectory) Delete(ctx context.Context, id string) error {
	if err := requireID("workspace", id); err != nil {
		return err
	}
	if err := d.session.do(ctx, http.MethodDelete, pathf("workspaces/%s", id), nil, nil); err != nil {
		return err
	}
	d.reg.forget(id)
	return nil
}

type workspaceFields struct {
	Name    string `json:"name"`
	ModelID string `json:"model"`
}

// A Workspace runs predictions with one model.
type Workspace struct {
	object[workspaceFields]
	dir *WorkspaceDirectory
}

func (ws *Workspace) String() string {
	return "<Workspace: " + ws.id + ", " + ws.Name() + ">"
}

// Name returns the workspace name.
func (ws *Workspace) Name() string {
	return ws.get().Name
}

// ModelID returns the id of the model the workspace uses.
func (ws *Workspace) ModelID() string {
	return ws.get().ModelID
}

// ModelManifest returns the public part of the manifest of the
// workspace's model.
func (ws *Workspace) ModelManifest(ctx context.Context) (RawRecord, error) {
	return ws.dir.session.getRecord(ctx, pathf("workspaces/%s/model/manifest/public", ws.id))
}

// DownloadModelEvaluationReport writes the evaluation report of the
// workspace's model to w and returns its size.
func (ws *Workspace) DownloadModelEvaluationReport(ctx context.Context, w io.Writer) (int64, error) {
	return ws.dir.session.Client.Download(ctx, pathf("workspaces/%s/model-evaluation-report", ws.id), w, nil)
}

// Geometries returns the geometries of the workspace.
func (ws *Workspace) Geometries(ctx context.Context, filters Equalities) ([]*Geometry, error) {
	return ws.dir.session.Geometries.List(ctx, ws.id, filters)
}

// Predictions returns the predictions run in the workspace.
func (ws *Workspace) Predictions(ctx context.Context) ([]*Prediction, error) {
	return ws.dir.session.Predictions.List(ctx, ws.id)
}

// Reload fetches the workspace again and updates its fields.
func (ws *Workspace) Reload(ctx context.Context) error {
	_, err := ws.dir.Get(ctx, ws.id)
	return err
}

// Delete deletes the workspace.
func (ws *Workspace) Delete(ctx context.Context) error {
	return ws.dir.Delete(ctx, ws.id)
}
