// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package simai is a client for the SimAI API.
//
// A Client performs authenticated requests; a Session built on a
// Client exposes one directory per resource type (Projects,
// TrainingData, Workspaces, ...). List endpoints are paginated by
// the server, and are read through a RawIterator or, converted to
// domain objects, a ModelIterator:
//
//	cfg, err := simai.LoadConfigFile("", "default", logger)
//	...
//	err = cfg.Finish()
//	...
//	client, err := simai.NewClientFromConfig(ctx, cfg, simai.ClientOptions{})
//	...
//	sess := simai.NewSession(client)
//	it, err := sess.TrainingData.Iter(ctx, simai.Equalities{"state": "successful"})
//	...
//	for it.Next(ctx) {
//		fmt.Println(it.Model().Name())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Errors can be classified with errors.Is against ErrInvalidArgument,
// ErrAPICommunication, ErrNotFound, ErrMalformedResponse and
// ErrConfiguration.
package simai
