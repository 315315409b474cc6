// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the subcommands of the simai command line
// tool.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/simai-sdk/simai-go/lib/cmd"
	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
	"github.com/simai-sdk/simai-go/sdk/go/simai"
	"github.com/sirupsen/logrus"
	"rsc.io/getopt"
)

// Group is a cmd.Multi that accepts global flags before its
// subcommand, as in "simai training-data -p ci list".
type Group cmd.Multi

func (g Group) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, _ := GlobalFlagSet()
	return cmd.Multi(g).RunCommand(prog, cmd.SubcommandToFront(args, flags), stdin, stdout, stderr)
}

// record is implemented by all SDK objects.
type record interface {
	ID() string
	Fields() simai.RawRecord
}

// invocation is one run of a subcommand: its flags, logger and
// output streams.
type invocation struct {
	flags  *getopt.FlagSet
	values *GlobalFlagValues
	logger *logrus.Logger
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
}

func newInvocation(stdout, stderr io.Writer) *invocation {
	flags, values := GlobalFlagSet()
	return &invocation{
		flags:  flags,
		values: values,
		stdout: stdout,
		stderr: stderr,
	}
}

// parse parses args, which must include one positional argument
// per name in positional. If ok is false, the command should exit
// with code.
func (inv *invocation) parse(prog string, args []string, positional ...string) (ok bool, code int) {
	if ok, code := cmd.ParseFlags(inv.flags, prog, args, inv.stderr, positional...); !ok {
		return false, code
	}
	switch inv.values.Format {
	case "json", "yaml", "id":
	default:
		fmt.Fprintf(inv.stderr, "unknown output format %q (try json, yaml, or id)\n", inv.values.Format)
		return false, 2
	}
	level := "warn"
	if inv.values.Verbose {
		level = "debug"
	}
	inv.logger = ctxlog.New(inv.stderr, "text", level)
	inv.ctx = ctxlog.Context(context.Background(), inv.logger)
	return true, 0
}

// loadConfig loads the selected profile, then applies SIMAI_*
// environment variables and command line overrides. Without a config
// file, the environment alone must be sufficient.
func (inv *invocation) loadConfig() (*simai.Config, error) {
	cfg, err := simai.LoadConfigFile(inv.values.Config, inv.values.Profile, inv.logger)
	if err != nil && inv.values.Config == "" && inv.values.Profile == "" && !haveConfigFile() {
		inv.logger.WithError(err).Debug("using environment only")
		cfg, err = &simai.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(nil); err != nil {
		return nil, err
	}
	err = cfg.Override(simai.Config{
		URL:          inv.values.URL,
		Organization: inv.values.Organization,
	})
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Finish()
}

func haveConfigFile() bool {
	for _, p := range simai.ConfigSearchPath() {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func (inv *invocation) session() (*simai.Session, error) {
	cfg, err := inv.loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := simai.NewClientFromConfig(inv.ctx, cfg, simai.ClientOptions{Prompt: inv.stderr})
	if err != nil {
		return nil, err
	}
	return simai.NewSession(client), nil
}

// fail reports err and returns the exit code for it.
func (inv *invocation) fail(err error) int {
	var terr *simai.TransactionError
	if errors.As(err, &terr) && len(terr.Messages()) > 0 {
		for _, msg := range terr.Messages() {
			fmt.Fprintf(inv.stderr, "error: %s\n", msg)
		}
	} else {
		fmt.Fprintf(inv.stderr, "error: %s\n", err)
	}
	if errors.Is(err, simai.ErrInvalidArgument) || errors.Is(err, simai.ErrConfiguration) {
		return 2
	}
	return 1
}

// printOne writes one object in the selected format.
func (inv *invocation) printOne(obj record) error {
	if inv.values.Format == "id" {
		_, err := fmt.Fprintln(inv.stdout, obj.ID())
		return err
	}
	return inv.encode(obj.Fields())
}

// printList writes a list of objects in the selected format.
func printList[T record](inv *invocation, objs []T) error {
	if inv.values.Format == "id" {
		for _, obj := range objs {
			if _, err := fmt.Fprintln(inv.stdout, obj.ID()); err != nil {
				return err
			}
		}
		return nil
	}
	recs := make([]simai.RawRecord, 0, len(objs))
	for _, obj := range objs {
		recs = append(recs, obj.Fields())
	}
	return inv.encode(recs)
}

func (inv *invocation) encode(v interface{}) error {
	if inv.values.Format == "yaml" {
		buf, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		_, err = inv.stdout.Write(buf)
		return err
	}
	enc := json.NewEncoder(inv.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	return nil
}
