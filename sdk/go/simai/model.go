// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
	"fmt"
	"net/http"
)

// ModelDirectory gives access to model builds.
type ModelDirectory struct {
	session *Session
	reg     *registry[*Model]
}

// ModelFrom implements ModelFactory.
func (d *ModelDirectory) ModelFrom(rec RawRecord) (*Model, error) {
	return d.reg.modelFrom(rec)
}

// Get returns the model with the given id.
func (d *ModelDirectory) Get(ctx context.Context, id string) (*Model, error) {
	if err := requireID("model", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("models/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

// BuildOptions control which training data a build leaves out.
type BuildOptions struct {
	// Build on top of the project's previous model, with its
	// configuration. Configuration is ignored.
	OnTop bool `json:"-"`

	DismissDataWithFieldsDiscrepancies bool `json:"dismiss_data_with_fields_discrepancies"`
	DismissDataWithVolumeOverflow      bool `json:"dismiss_data_with_volume_overflow"`
	DismissDataInputWithNaN            bool `json:"dismiss_data_input_with_nan"`
}

// Build starts building a model from the given project's training
// data. It fails with ErrInvalidArgument, without starting anything,
// if the server reports the project is not trainable.
func (d *ModelDirectory) Build(ctx context.Context, projectID string, configuration RawRecord, opts BuildOptions) (*Model, error) {
	project, err := d.session.Projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	trainable, err := project.IsTrainable(ctx)
	if err != nil {
		return nil, err
	}
	if !trainable.IsTrainable {
		return nil, fmt.Errorf("%w: cannot train model because: %s", ErrInvalidArgument, trainable.Reason)
	}
	var rec RawRecord
	if opts.OnTop {
		rec, err = d.session.doRecord(ctx, http.MethodPost, pathf("projects/%s/model/on-top", projectID), nil, opts)
	} else {
		if configuration == nil {
			return nil, fmt.Errorf("%w: model configuration is required", ErrInvalidArgument)
		}
		rec, err = d.session.doRecord(ctx, http.MethodPost, pathf("projects/%s/model", projectID), configuration, opts)
	}
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

type modelFields struct {
	ProjectID     string    `json:"project_id"`
	Configuration RawRecord `json:"configuration"`
	State         string    `json:"state"`
	Error         string    `json:"error"`
}

// A Model is the result of a build.
type Model struct {
	object[modelFields]
	dir *ModelDirectory
}

func (m *Model) String() string {
	return "<Model: " + m.id + ">"
}

// ProjectID returns the id of the project the model was built from.
func (m *Model) ProjectID() string {
	return m.get().ProjectID
}

// Configuration returns the build configuration.
func (m *Model) Configuration() RawRecord {
	return m.get().Configuration
}

// State returns the build state reported by the server.
func (m *Model) State() string {
	return m.get().State
}

// IsReady reports whether the build finished successfully.
func (m *Model) IsReady() bool {
	return m.get().State == "successful"
}

// HasFailed reports whether the build failed or was cancelled.
func (m *Model) HasFailed() bool {
	return stateFailed(m.get().State)
}

// FailureReason returns the server's explanation of a failure, if
// any.
func (m *Model) FailureReason() string {
	return m.get().Error
}

// Reload fetches the model again and updates its fields.
func (m *Model) Reload(ctx context.Context) error {
	_, err := m.dir.Get(ctx, m.id)
	return err
}
