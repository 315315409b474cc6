// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// ParseFlags parses args with f, then checks that exactly one
// positional argument was given per name in positional. Usage errors
// and help are written to stderr.
//
// If ok is false the program should exit with exitCode: 0 after
// "-help", 2 after a usage error.
func ParseFlags(f FlagSet, prog string, args []string, stderr io.Writer, positional ...string) (ok bool, exitCode int) {
	usage := prog + " [options]"
	if len(positional) > 0 {
		usage += " " + strings.Join(positional, " ")
	}
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	switch err := f.Parse(args); {
	case err == flag.ErrHelp:
		fmt.Fprintf(stderr, "usage: %s\n", usage)
		f.SetOutput(stderr)
		f.PrintDefaults()
		return false, 0
	case err != nil:
		fmt.Fprintf(stderr, "%s: %s (try -help)\n", prog, err)
		return false, 2
	case f.NArg() > len(positional):
		fmt.Fprintf(stderr, "%s: unexpected arguments %q\nusage: %s\n", prog, f.Args()[len(positional):], usage)
		return false, 2
	case f.NArg() < len(positional):
		fmt.Fprintf(stderr, "%s: missing %s\nusage: %s\n", prog, strings.Join(positional[f.NArg():], " "), usage)
		return false, 2
	}
	return true, 0
}
