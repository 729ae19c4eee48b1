// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"gopkg.in/yaml.v2"
)

// TestBuiltinFixturesPass runs every scenario embedded in fixtures.yaml and
// requires each one to pass, the same way `futexctl run` does with no
// arguments.
func TestBuiltinFixturesPass(t *testing.T) {
	var f Fixtures
	if err := yaml.Unmarshal(builtinFixtures, &f); err != nil {
		t.Fatalf("parsing embedded fixtures: %v", err)
	}
	if len(f.Scenarios) == 0 {
		t.Fatal("embedded fixtures contain no scenarios")
	}
	for _, s := range f.Scenarios {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			pass, failures := run(s)
			if !pass {
				t.Errorf("scenario %q failed:", s.Name)
				for _, msg := range failures {
					t.Errorf("  %s", msg)
				}
			}
		})
	}
}

// TestRunUnknownOp confirms a malformed step is reported as a failure
// rather than silently ignored.
func TestRunUnknownOp(t *testing.T) {
	s := Scenario{
		Name: "bogus",
		Steps: []Step{
			{Op: "not-a-real-op"},
		},
	}
	pass, failures := run(s)
	if pass {
		t.Fatal("expected an unknown op to fail the scenario")
	}
	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure, got %v", failures)
	}
}

// TestRunExpectUnknownWaiter confirms expect reports a failure, rather than
// hanging forever, when it names a waiter that no wait step started.
func TestRunExpectUnknownWaiter(t *testing.T) {
	s := Scenario{
		Name: "dangling-expect",
		Steps: []Step{
			{Op: "expect", Waiter: "nobody", Want: "Ok"},
		},
	}
	pass, failures := run(s)
	if pass {
		t.Fatal("expected a reference to an unknown waiter to fail the scenario")
	}
	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure, got %v", failures)
	}
}

// TestParseTimeoutAndCount exercises the small parsing helpers directly,
// since a bad parse would otherwise only surface as an obscure step
// failure deep inside run.
func TestParseTimeoutAndCount(t *testing.T) {
	if _, err := parseTimeout("not-a-duration"); err == nil {
		t.Fatal("expected an error for an unparseable timeout")
	}
	if _, err := parseCount("not-a-number"); err == nil {
		t.Fatal("expected an error for an unparseable count")
	}
}
