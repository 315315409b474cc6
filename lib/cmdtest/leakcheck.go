// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing command line tools.
package cmdtest

import (
	"os"

	check "gopkg.in/check.v1"
)

// LeakCheck redirects os.Stdout and os.Stderr to temporary files
// until the returned func is called, then fails the test if anything
// was written to them. A command under test must write only to the
// streams it is given.
//
//	defer cmdtest.LeakCheck(c)()
func LeakCheck(c *check.C) func() {
	streams := []*redirected{
		{name: "stdout", std: &os.Stdout},
		{name: "stderr", std: &os.Stderr},
	}
	for _, s := range streams {
		s.start(c)
	}
	return func() {
		for _, s := range streams {
			*s.std = s.orig
		}
		for _, s := range streams {
			s.check(c)
		}
	}
}

// redirected is one of the os.Std* variables, pointed at a
// temporary file.
type redirected struct {
	name string
	std  **os.File
	orig *os.File
	tmp  *os.File
}

func (r *redirected) start(c *check.C) {
	tmp, err := os.CreateTemp(c.MkDir(), r.name)
	c.Assert(err, check.IsNil)
	r.orig, r.tmp = *r.std, tmp
	*r.std = tmp
}

func (r *redirected) check(c *check.C) {
	defer r.tmp.Close()
	leaked, err := os.ReadFile(r.tmp.Name())
	c.Assert(err, check.IsNil)
	c.Check(string(leaked), check.Equals, "", check.Commentf("written to os.%s", r.name))
}
