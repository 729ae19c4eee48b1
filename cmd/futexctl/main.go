// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	_ "embed"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/kernelsync/futex/cmd/flagvar"
	"github.com/kernelsync/futex/cmd/pflagvar"
	"github.com/kernelsync/futex/cmdline2"
	"github.com/kernelsync/futex/vlog"
)

//go:embed fixtures.yaml
var builtinFixtures []byte

// preScanFlags holds the one flag futexctl wants settled before cmdline2's
// own parsing begins, so verbose logging is live for cmdline2.Parse itself.
// Registered through pflagvar onto a private pflag.FlagSet and parsed
// independently of the cmdline2 command tree, the way several real CLIs
// pre-scan os.Args for a global toggle before committing to a subcommand.
type preScanFlags struct {
	Verbose bool `flag:"verbose,false,log futex.Table activity to stderr while scenarios run"`
}

func init() {
	var psf preScanFlags
	fs := pflag.NewFlagSet("futexctl-prescan", pflag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	if err := pflagvar.RegisterFlagsInStruct(fs, "flag", &psf, nil, nil); err != nil {
		panic(err)
	}
	fs.Parse(os.Args[1:])
	if psf.Verbose {
		vlog.ConfigureLogger(vlog.LogToStderr(true), vlog.Level(2))
	}
}

type runArgs struct {
	Fixtures string `flag:"fixtures,,path to a YAML fixture file; defaults to the built-in scenario set"`
}

func main() {
	var ra runArgs
	runCmd := &cmdline2.Command{
		Name:     "run",
		Short:    "Run scenarios against a real futex.Table",
		Long:     "Run executes one or more named scenarios (or all of them) against a fresh futex.Table and reports pass/fail for each.",
		ArgsName: "[scenario ...]",
		ArgsLong: "[scenario ...] names scenarios to run; with no arguments, every scenario in the fixture set runs.",
		Runner:   cmdline2.RunnerFunc(func(env *cmdline2.Env, args []string) error { return runRunner(env, args, &ra) }),
	}
	if err := flagvar.RegisterFlagsInStruct(&runCmd.Flags, "flag", &ra, nil, nil); err != nil {
		panic(err)
	}

	listCmd := &cmdline2.Command{
		Name:   "list",
		Short:  "List available scenario names",
		Runner: cmdline2.RunnerFunc(listRunner),
	}

	root := &cmdline2.Command{
		Name:     "futexctl",
		Short:    "Replay futex.Table scenarios",
		Long:     "Futexctl replays the end-to-end scenarios this module's futex package is built against, using a real futex.Table and real goroutines rather than mocks.",
		Children: []*cmdline2.Command{runCmd, listCmd},
	}
	cmdline2.Main(root)
}

func loadFixtures(path string) (Fixtures, error) {
	data := builtinFixtures
	if path != "" {
		var err error
		data, err = ioutil.ReadFile(path)
		if err != nil {
			return Fixtures{}, fmt.Errorf("futexctl: reading fixtures: %w", err)
		}
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("futexctl: parsing fixtures: %w", err)
	}
	return f, nil
}

func listRunner(env *cmdline2.Env, args []string) error {
	f, err := loadFixtures("")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(f.Scenarios))
	for _, s := range f.Scenarios {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(env.Stdout, n)
	}
	return nil
}

func runRunner(env *cmdline2.Env, args []string, ra *runArgs) error {
	f, err := loadFixtures(ra.Fixtures)
	if err != nil {
		return err
	}
	selected := f.Scenarios
	if len(args) > 0 {
		want := map[string]bool{}
		for _, a := range args {
			want[a] = true
		}
		selected = selected[:0]
		for _, s := range f.Scenarios {
			if want[s.Name] {
				selected = append(selected, s)
			}
		}
	}
	if len(selected) == 0 {
		return env.UsageErrorf("no matching scenarios")
	}

	failed := 0
	for _, s := range selected {
		pass, failures := run(s)
		status := "PASS"
		if !pass {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(env.Stdout, "%-40s %s\n", s.Name, status)
		for _, msg := range failures {
			fmt.Fprintf(env.Stdout, "    %s\n", msg)
		}
	}
	if failed > 0 {
		return cmdline2.ErrExitCode(1)
	}
	return nil
}
