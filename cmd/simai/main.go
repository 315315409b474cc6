// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/simai-sdk/simai-go/lib/cli"
	"github.com/simai-sdk/simai-go/lib/cmd"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"config":        cli.DumpConfig,
		"projects":      cli.Projects,
		"training-data": cli.TrainingData,
		"workspaces":    cli.Workspaces,
	})
)

func fixFlagOrder(args []string) []string {
	flags, _ := cli.GlobalFlagSet()
	return cmd.SubcommandToFront(args, flags)
}

func main() {
	os.Exit(handler.RunCommand(os.Args[0], fixFlagOrder(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr))
}
