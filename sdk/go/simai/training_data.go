// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"fmt"
	"net/http"
)

// TrainingDataDirectory gives access to the "training-data"
// endpoints.
type TrainingDataDirectory struct {
	session *Session
	reg     *registry[*TrainingData]
}

// ModelFrom implements ModelFactory.
func (d *TrainingDataDirectory) ModelFrom(rec RawRecord) (*TrainingData, error) {
	return d.reg.modelFrom(rec)
}

// Iter returns an iterator over the training data matching filters
// (all training data if filters is nil). The first page is fetched
// before Iter returns, so Len is known.
func (d *TrainingDataDirectory) Iter(ctx context.Context, filters Filters) (*ModelIterator[*TrainingData], error) {
	uri, err := filteredURI("training-data", filters)
	if err != nil {
		return nil, err
	}
	raw, err := NewRawIterator(ctx, d.session.Client, uri)
	if err != nil {
		return nil, err
	}
	return NewModelIterator[*TrainingData](raw, d), nil
}

// List returns all training data matching filters.
func (d *TrainingDataDirectory) List(ctx context.Context, filters Filters) ([]*TrainingData, error) {
	it, err := d.Iter(ctx, filters)
	if err != nil {
		return nil, err
	}
	return it.All(ctx)
}

// Get returns the training data with the given id.
func (d *TrainingDataDirectory) Get(ctx context.Context, id string) (*TrainingData, error) {
	if err := requireID("training data", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("training-data/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Create creates an empty training data, associated with the given
// project unless projectID is empty.
func (d *TrainingDataDirectory) Create(ctx context.Context, name, projectID string) (*TrainingData, error) {
	body := map[string]string{"name": name}
	if projectID != "" {
		body["project"] = projectID
	}
	rec, err := d.session.doRecord(ctx, http.MethodPost, "training-data/", body, nil)
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// Delete deletes the training data with the given id.
func (d *TrainingDataDirectory) Delete(ctx context.Context, id string) error {
	if err := requireID("training data", id); err != nil {
		return err
	}
	if err := d.session.do(ctx, http.MethodDelete, pathf("training-data/%s", id), nil, nil); err != nil {
		return err
	}
	d.reg.forget(id)
	return nil
}

// Subset is the role of a training data in a project's model build.
type Subset string

const (
	SubsetTraining Subset = "Training"
	SubsetTest     Subset = "Test"
	// SubsetNone lets the server allocate the training data to a
	// subset at each build.
	SubsetNone Subset = ""
)

func (s Subset) valid() bool {
	return s == SubsetTraining || s == SubsetTest || s == SubsetNone
}

type trainingDataFields struct {
	Name              string      `json:"name"`
	State             string      `json:"state"`
	Error             string      `json:"error"`
	Parts             []RawRecord `json:"parts"`
	ExtractedMetadata RawRecord   `json:"extracted_metadata"`
}

// TrainingData is a simulation result used to train models. Its files
// are stored as TrainingDataParts.
type TrainingData struct {
	object[trainingDataFields]
	dir *TrainingDataDirectory
}

func (td *TrainingData) String() string {
	return "<TrainingData: " + td.id + ", " + td.Name() + ">"
}

// Name returns the training data name.
func (td *TrainingData) Name() string {
	return td.get().Name
}

// State returns the processing state reported by the server, e.g.,
// "queued", "successful" or "failure".
func (td *TrainingData) State() string {
	return td.get().State
}

// IsReady reports whether processing finished successfully.
func (td *TrainingData) IsReady() bool {
	return td.get().State == "successful"
}

// HasFailed reports whether processing failed, was rejected or was
// cancelled. FailureReason may tell why.
func (td *TrainingData) HasFailed() bool {
	return stateFailed(td.get().State)
}

// FailureReason returns the server's explanation of a failure, if
// any.
func (td *TrainingData) FailureReason() string {
	return td.get().Error
}

// ExtractedMetadata returns the metadata extracted by the server
// after ExtractData, or nil.
func (td *TrainingData) ExtractedMetadata() RawRecord {
	return td.get().ExtractedMetadata
}

// Parts returns the parts listed in the most recent record.
func (td *TrainingData) Parts() ([]*TrainingDataPart, error) {
	return modelsFrom(td.get().Parts, td.dir.session.TrainingDataParts.ModelFrom)
}

// Reload fetches the training data again and updates its fields.
func (td *TrainingData) Reload(ctx context.Context) error {
	_, err := td.dir.Get(ctx, td.id)
	return err
}

// Delete deletes the training data.
func (td *TrainingData) Delete(ctx context.Context) error {
	return td.dir.Delete(ctx, td.id)
}

// Subset returns the subset the training data belongs to in the
// given project.
func (td *TrainingData) Subset(ctx context.Context, projectID string) (Subset, error) {
	if err := requireID("project", projectID); err != nil {
		return SubsetNone, err
	}
	var resp struct {
		Subset *string `json:"subset"`
	}
	err := td.dir.session.Client.RequestAndDecode(ctx, &resp, http.MethodGet, pathf("projects/%s/data/%s/subset", projectID, td.id), nil, nil)
	if err != nil {
		return SubsetNone, err
	}
	if resp.Subset == nil {
		return SubsetNone, nil
	}
	s := Subset(*resp.Subset)
	if !s.valid() {
		return SubsetNone, fmt.Errorf("%w: unknown subset %q", ErrMalformedResponse, *resp.Subset)
	}
	return s, nil
}

// AssignSubset puts the training data in the given subset of the
// given project. SubsetNone removes the assignment.
func (td *TrainingData) AssignSubset(ctx context.Context, projectID string, subset Subset) error {
	if err := requireID("project", projectID); err != nil {
		return err
	}
	if !subset.valid() {
		return fmt.Errorf("%w: subset must be %q, %q or none, not %q", ErrInvalidArgument, SubsetTraining, SubsetTest, subset)
	}
	var value interface{}
	if subset != SubsetNone {
		value = string(subset)
	}
	return td.dir.session.do(ctx, http.MethodPut, pathf("projects/%s/data/%s/subset", projectID, td.id), map[string]interface{}{"subset": value}, nil)
}

// AddToProject associates the training data with a project.
func (td *TrainingData) AddToProject(ctx context.Context, projectID string) error {
	if err := requireID("project", projectID); err != nil {
		return err
	}
	return td.dir.session.do(ctx, http.MethodPut, pathf("training-data/%s/project/%s/association", td.id, projectID), nil, nil)
}

// RemoveFromProject dissociates the training data from a project.
func (td *TrainingData) RemoveFromProject(ctx context.Context, projectID string) error {
	if err := requireID("project", projectID); err != nil {
		return err
	}
	return td.dir.session.do(ctx, http.MethodDelete, pathf("training-data/%s/project/%s/association", td.id, projectID), nil, nil)
}

// ExtractData asks the server to process the uploaded parts.
func (td *TrainingData) ExtractData(ctx context.Context) error {
	return td.dir.session.do(ctx, http.MethodPost, pathf("training-data/%s/compute", td.id), nil, nil)
}

// UploadPart uploads one file as a new part of the training data.
func (td *TrainingData) UploadPart(ctx context.Context, file NamedFile, progress func(int)) (*TrainingDataPart, error) {
	return td.dir.session.TrainingDataParts.upload(ctx, td.id, file, progress)
}

// UploadFolder uploads the files of dir that match pattern (all
// non-hidden files if pattern is empty) as parts of the training
// data, then starts data extraction.
func (td *TrainingData) UploadFolder(ctx context.Context, dir, pattern string) ([]*TrainingDataPart, error) {
	return td.dir.session.TrainingDataParts.uploadFolder(ctx, td.id, dir, pattern)
}
