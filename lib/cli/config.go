// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
)

// DumpConfig prints the effective configuration, after environment
// and command line overrides, with secrets redacted.
var DumpConfig dumpConfig

type dumpConfig struct{}

func (dumpConfig) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := newInvocation(stdout, stderr)
	if ok, code := inv.parse(prog, args); !ok {
		return code
	}
	cfg, err := inv.loadConfig()
	if err != nil {
		return inv.fail(err)
	}
	buf, err := cfg.Dump()
	if err != nil {
		return inv.fail(err)
	}
	fmt.Fprintf(stdout, "%s\n", buf)
	return 0
}
