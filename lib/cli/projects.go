// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/simai-sdk/simai-go/sdk/go/simai"
)

var (
	// Projects is the "projects" command group.
	Projects = Group{
		"list": projectsList{},
		"get":  projectsGet{},
		"data": projectsData{},
	}
	// Workspaces is the "workspaces" command group.
	Workspaces = Group{
		"list": workspacesList{},
	}
)

type projectsList struct{}

func (projectsList) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	if ok, code := inv.parse(prog, args); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	projects, err := session.Projects.List(inv.ctx)
	if err != nil {
		return inv.fail(err)
	}
	if err := printList(inv, projects); err != nil {
		return inv.fail(err)
	}
	return 0
}

type projectsGet struct{}

func (projectsGet) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	byName := inv.flags.Bool("name", false, "Look up the project by name instead of id")
	if ok, code := inv.parse(prog, args, "id"); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	var project *simai.Project
	if *byName {
		project, err = session.Projects.GetByName(inv.ctx, inv.flags.Arg(0))
	} else {
		project, err = session.Projects.Get(inv.ctx, inv.flags.Arg(0))
	}
	if err != nil {
		return inv.fail(err)
	}
	if err := inv.printOne(project); err != nil {
		return inv.fail(err)
	}
	return 0
}

// projectsData lists the training data of a project.
type projectsData struct{}

func (projectsData) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	if ok, code := inv.parse(prog, args, "id"); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	project, err := session.Projects.Get(inv.ctx, inv.flags.Arg(0))
	if err != nil {
		return inv.fail(err)
	}
	it, err := project.Data(inv.ctx)
	if err != nil {
		return inv.fail(err)
	}
	if n := it.Len(); n >= 0 {
		fmt.Fprintf(stderr, "%d training data in %s\n", n, project.Name())
	}
	data, err := it.All(inv.ctx)
	if err != nil {
		return inv.fail(err)
	}
	if err := printList(inv, data); err != nil {
		return inv.fail(err)
	}
	return 0
}

type workspacesList struct{}

func (workspacesList) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	if ok, code := inv.parse(prog, args); !ok {
		return code
	}
	session, err := inv.session()
	if err != nil {
		return inv.fail(err)
	}
	workspaces, err := session.Workspaces.List(inv.ctx)
	if err != nil {
		return inv.fail(err)
	}
	if err := printList(inv, workspaces); err != nil {
		return inv.fail(err)
	}
	return 0
}
