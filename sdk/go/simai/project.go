// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"net/http"
)

// ProjectDirectory gives access to the "projects" endpoints.
type ProjectDirectory struct {
	session *Session
	reg     *registry[*Project]
}

// ModelFrom implements ModelFactory.
func (d *ProjectDirectory) ModelFrom(rec RawRecord) (*Project, error) {
	return d.reg.modelFrom(rec)
}

// List returns all projects the user can see.
func (d *ProjectDirectory) List(ctx context.Context) ([]*Project, error) {
	recs, err := d.session.getRecords(ctx, "projects", nil)
	if err != nil {
		return nil, err
	}
	return modelsFrom(recs, d.ModelFrom)
}

// Get returns the project with the given id.
func (d *ProjectDirectory) Get(ctx context.Context, id string) (*Project, error) {
	if err := requireID("project", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("projects/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// GetByName returns the project with the given name.
func (d *ProjectDirectory) GetByName(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, requireID("project name", name)
	}
	rec, err := d.session.getRecord(ctx, pathf("projects/name/%s", name))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Create creates a project.
func (d *ProjectDirectory) Create(ctx context.Context, name string) (*Project, error) {
	rec, err := d.session.doRecord(ctx, http.MethodPost, "projects", map[string]string{"name": name}, nil)
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Delete deletes the project with the given id.
func (d *ProjectDirectory) Delete(ctx context.Context, id string) error {
	if err := requireID("project", id); err != nil {
		return err
	}
	if err := d.session.do(ctx, http.MethodDelete, pathf("projects/%s", id), nil, nil); err != nil {
		return err
	}
	d.reg.forget(id)
	return nil
}

type projectFields struct {
	Name   string    `json:"name"`
	Sample RawRecord `json:"sample"`
}

// A Project groups training data used to build models.
type Project struct {
	object[projectFields]
	dir *ProjectDirectory
}

func (p *Project) String() string {
	return "<Project: " + p.id + ", " + p.Name() + ">"
}

// Name returns the project name.
func (p *Project) Name() string {
	return p.get().Name
}

// Reload fetches the project again and updates its fields.
func (p *Project) Reload(ctx context.Context) error {
	_, err := p.dir.Get(ctx, p.id)
	return err
}

// Rename changes the project name.
func (p *Project) Rename(ctx context.Context, name string) error {
	err := p.dir.session.do(ctx, http.MethodPatch, pathf("projects/%s", p.id), map[string]string{"name": name}, nil)
	if err != nil {
		return err
	}
	return p.Reload(ctx)
}

// Data returns an iterator over the training data in the project.
func (p *Project) Data(ctx context.Context) (*ModelIterator[*TrainingData], error) {
	raw, err := NewRawIterator(ctx, p.dir.session.Client, pathf("projects/%s/data", p.id))
	if err != nil {
		return nil, err
	}
	return NewModelIterator[*TrainingData](raw, p.dir.session.TrainingData), nil
}

// Sample returns the training data that determines which variables
// are available for model configuration, or nil if the project has
// no sample.
func (p *Project) Sample() (*TrainingData, error) {
	rec := p.get().Sample
	if rec == nil {
		return nil, nil
	}
	return p.dir.session.TrainingData.ModelFrom(rec)
}

// SetSample sets the project's sample.
func (p *Project) SetSample(ctx context.Context, trainingDataID string) error {
	if err := requireID("training data", trainingDataID); err != nil {
		return err
	}
	err := p.dir.session.do(ctx, http.MethodPut, pathf("projects/%s/sample", p.id), map[string]string{"training_data": trainingDataID}, nil)
	if err != nil {
		return err
	}
	return p.Reload(ctx)
}

// Trainability tells whether a model can be built from a project.
type Trainability struct {
	IsTrainable bool   `json:"is_trainable"`
	Reason      string `json:"reason"`
}

// IsTrainable asks the server whether a model can be built from the
// project.
func (p *Project) IsTrainable(ctx context.Context) (*Trainability, error) {
	var t Trainability
	err := p.dir.session.Client.RequestAndDecode(ctx, &t, http.MethodGet, pathf("projects/%s/trainable", p.id), nil, nil)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelBuild cancels the model build in progress, if any.
func (p *Project) CancelBuild(ctx context.Context) error {
	return p.dir.session.do(ctx, http.MethodPost, pathf("projects/%s/cancel-training", p.id), nil, nil)
}

// Delete deletes the project.
func (p *Project) Delete(ctx context.Context) error {
	return p.dir.Delete(ctx, p.id)
}
