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

// PredictionDirectory gives access to the "predictions" endpoints.
type PredictionDirectory struct {
	session *Session
	reg     *registry[*Prediction]
}

// ModelFrom implements ModelFactory.
func (d *PredictionDirectory) ModelFrom(rec RawRecord) (*Prediction, error) {
	return d.reg.modelFrom(rec)
}

// List returns the predictions run in the given workspace.
func (d *PredictionDirectory) List(ctx context.Context, workspaceID string) ([]*Prediction, error) {
	if err := requireID("workspace", workspaceID); err != nil {
		return nil, err
	}
	recs, err := d.session.getRecords(ctx, "predictions/", url.Values{"workspace": {workspaceID}})
	if err != nil {
		return nil, err
	}
	return modelsFrom(recs, d.ModelFrom)
}

// Get returns the prediction with the given id.
func (d *PredictionDirectory) Get(ctx context.Context, id string) (*Prediction, error) {
	if err := requireID("prediction", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("predictions/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Run requests a prediction on a geometry with the given boundary
// conditions. If an equal prediction exists, the server returns it
// instead of starting a new one. The prediction is usually not ready
// yet: use Reload to follow its state.
func (d *PredictionDirectory) Run(ctx context.Context, geometryID string, boundaryConditions RawRecord) (*Prediction, error) {
	if err := requireID("geometry", geometryID); err != nil {
		return nil, err
	}
	if len(boundaryConditions) == 0 {
		return nil, fmt.Errorf("%w: boundary conditions must not be empty", ErrInvalidArgument)
	}
	rec, err := d.session.doRecord(ctx, http.MethodPost, pathf("geometries/%s/predictions", geometryID), map[string]interface{}{
		"boundary_conditions": boundaryConditions,
	}, nil)
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Delete deletes the prediction with the given id.
func (d *PredictionDirectory) Delete(ctx context.Context, id string) error {
	if err := requireID("prediction", id); err != nil {
		return err
	}
	err := d.session.do(ctx, http.MethodDelete, pathf("predictions/%s", id), nil, url.Values{"confirm": {"true"}})
	if err != nil {
		return err
	}
	d.reg.forget(id)
	return nil
}

type predictionFields struct {
	GeometryID         string    `json:"geometry_id"`
	BoundaryConditions RawRecord `json:"boundary_conditions"`
	ConfidenceScore    string    `json:"confidence_score"`
	State              string    `json:"state"`
	Error              string    `json:"error"`
}

// A Prediction is a model's result for one geometry and set of
// boundary conditions.
type Prediction struct {
	object[predictionFields]
	dir *PredictionDirectory
}

func (p *Prediction) String() string {
	return "<Prediction: " + p.id + ">"
}

// GeometryID returns the id of the predicted geometry.
func (p *Prediction) GeometryID() string {
	return p.get().GeometryID
}

// BoundaryConditions returns the conditions the prediction was run
// with.
func (p *Prediction) BoundaryConditions() RawRecord {
	return p.get().BoundaryConditions
}

// ConfidenceScore returns the confidence the model reports for the
// prediction, e.g., "high" or "low".
func (p *Prediction) ConfidenceScore() string {
	return p.get().ConfidenceScore
}

// State returns the processing state reported by the server.
func (p *Prediction) State() string {
	return p.get().State
}

// IsReady reports whether the prediction finished successfully.
func (p *Prediction) IsReady() bool {
	return p.get().State == "successful"
}

// HasFailed reports whether the prediction failed.
func (p *Prediction) HasFailed() bool {
	return stateFailed(p.get().State)
}

// Reload fetches the prediction again and updates its fields.
func (p *Prediction) Reload(ctx context.Context) error {
	_, err := p.dir.Get(ctx, p.id)
	return err
}

// Delete deletes the prediction.
func (p *Prediction) Delete(ctx context.Context) error {
	return p.dir.Delete(ctx, p.id)
}
