// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/simai-sdk/simai-go/sdk/go/simai"
)

// TrainingData is the "training-data" command group.
var TrainingData = Group{
	"list":   trainingDataList{},
	"get":    trainingDataGet{},
	"upload": trainingDataUpload{},
}

type trainingDataList struct{}

func (trainingDataList) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	eq := equalityFlag{}
	inv.flags.Var(eq, "filter", "Only list training data with `field=value` (may be repeated)")
	where := inv.flags.String("where", "", "Only list training data matching a JSON filter: an object, or a list of [field, operator, value]")
	if ok, code := inv.parse(prog, args); !ok {
		return code
	}

	var filters simai.Filters
	if *where != "" {
		if len(eq) > 0 {
			fmt.Fprintln(stderr, "cannot use both --filter and --where")
			return 2
		}
		var v interface{}
		dec := json.NewDecoder(strings.NewReader(*where))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return inv.fail(fmt.Errorf("%w: --where: %s", simai.ErrInvalidArgument, err))
		}
		var err error
		filters, err = simai.ParseFilters(v)
		if err != nil {
			return inv.fail(err)
		}
	} else if len(eq) > 0 {
		filters = simai.Equalities(eq)
	}

	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	it, err := session.TrainingData.Iter(inv.ctx, filters)
	if err != nil {
		return inv.fail(err)
	}
	if n := it.Len(); n >= 0 {
		fmt.Fprintf(stderr, "%d training data\n", n)
	}
	var all []*simai.TrainingData
	for it.Next(inv.ctx) {
		all = append(all, it.Model())
	}
	if err := it.Err(); err != nil {
		return inv.fail(err)
	}
	if err := printList(inv, all); err != nil {
		return inv.fail(err)
	}
	return 0
}

type trainingDataGet struct{}

func (trainingDataGet) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	if ok, code := inv.parse(prog, args, "id"); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	td, err := session.TrainingData.Get(inv.ctx, inv.flags.Arg(0))
	if err != nil {
		return inv.fail(err)
	}
	if err := inv.printOne(td); err != nil {
		return inv.fail(err)
	}
	return 0
}

type trainingDataUpload struct{}

func (trainingDataUpload) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	pattern := inv.flags.String("pattern", "", "Upload only files matching this `glob`, relative to the folder (default: all non-hidden files)")
	if ok, code := inv.parse(prog, args, "id", "folder"); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	td, err := session.TrainingData.Get(inv.ctx, inv.flags.Arg(0))
	if err != nil {
		return inv.fail(err)
	}
	parts, err := td.UploadFolder(inv.ctx, inv.flags.Arg(1), *pattern)
	var total int64
	for _, part := range parts {
		total += part.Size()
		fmt.Fprintf(stderr, "uploaded %s (%s)\n", part.Name(), humanize.Bytes(uint64(part.Size())))
	}
	if err != nil {
		return inv.fail(err)
	}
	fmt.Fprintf(stderr, "uploaded %d parts, %s total, to %s\n", len(parts), humanize.Bytes(uint64(total)), td.ID())
	if err := printList(inv, parts); err != nil {
		return inv.fail(err)
	}
	return 0
}
