// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"context"
)

// TrainingDataPartDirectory gives access to the
// "training_data_parts" endpoints.
type TrainingDataPartDirectory struct {
	session *Session
	reg     *registry[*TrainingDataPart]
}

// ModelFrom implements ModelFactory.
func (d *TrainingDataPartDirectory) ModelFrom(rec RawRecord) (*TrainingDataPart, error) {
	return d.reg.modelFrom(rec)
}

// Get returns the training data part with the given id.
func (d *TrainingDataPartDirectory) Get(ctx context.Context, id string) (*TrainingDataPart, error) {
	if err := requireID("training data part", id); err != nil {
		return nil, err
	}
	rec, err := d.session.getRecord(ctx, pathf("training_data_parts/%s", id))
	if err != nil {
		return nil, err
	}
	return d.ModelFrom(rec)
}

type trainingDataPartFields struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	State string `json:"state"`
}

// A TrainingDataPart is one file of a TrainingData.
type TrainingDataPart struct {
	object[trainingDataPartFields]
	dir *TrainingDataPartDirectory
}

func (p *TrainingDataPart) String() string {
	return "<TrainingDataPart: " + p.id + ", " + p.Name() + ">"
}

// Name returns the file name.
func (p *TrainingDataPart) Name() string {
	return p.get().Name
}

// Size returns the file size in bytes.
func (p *TrainingDataPart) Size() int64 {
	return p.get().Size
}

// State returns the upload state reported by the server.
func (p *TrainingDataPart) State() string {
	return p.get().State
}

// Reload fetches the part again and updates its fields.
func (p *TrainingDataPart) Reload(ctx context.Context) error {
	_, err := p.dir.Get(ctx, p.id)
	return err
}
