// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/simai-sdk/simai-go/sdk/go/simai"
	"rsc.io/getopt"
)

// GlobalFlagValues holds the flags accepted by every subcommand.
type GlobalFlagValues struct {
	Profile      string
	Config       string
	Format       string
	Verbose      bool
	URL          string
	Organization string
}

// GlobalFlagSet returns a flag set with the flags accepted by every
// subcommand, and the values they will be stored in. Subcommands add
// their own flags to it.
func GlobalFlagSet() (*getopt.FlagSet, *GlobalFlagValues) {
	values := &GlobalFlagValues{Format: "json"}
	flags := getopt.NewFlagSet("", flag.ContinueOnError)
	flags.StringVar(&values.Profile, "profile", "", "Configuration profile to use (default \"default\")")
	flags.Alias("p", "profile")
	flags.StringVar(&values.Config, "config", "", "Configuration file (default: first of $SIMAI_CONFIG, ~/.config/ansys_simai.yml, ...)")
	flags.Alias("c", "config")
	flags.StringVar(&values.Format, "format", values.Format, "Output format: json, yaml, or id")
	flags.Alias("f", "format")
	flags.BoolVar(&values.Verbose, "verbose", false, "Print debug messages on stderr")
	flags.Alias("v", "verbose")
	flags.StringVar(&values.URL, "url", "", "API URL, overriding the configuration file")
	flags.StringVar(&values.Organization, "organization", "", "Organization, overriding the configuration file")
	flags.Alias("o", "organization")
	return flags, values
}

// equalityFlag collects repeated field=value flags. A value that is
// valid JSON (a number, true, null, a quoted string...) is used as
// decoded, anything else as a plain string.
type equalityFlag simai.Equalities

func (f equalityFlag) String() string {
	var pairs []string
	for k, v := range f {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (f equalityFlag) Set(s string) error {
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return fmt.Errorf("invalid filter %q: expected field=value", s)
	}
	f[field] = filterValue(value)
	return nil
}

// filterValue decodes value as a single JSON value, keeping numbers
// exact, or returns it as a string if it is not one.
func filterValue(value string) interface{} {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || dec.More() {
		return value
	}
	return v
}
