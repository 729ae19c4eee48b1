// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main implements futexctl, a small command-line harness that
// replays named scenarios against a real futex.Table and a real goroutine
// scheduler, and reports which ones behaved as described.
package main

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kernelsync/futex"
	"github.com/kernelsync/futex/vlog"
)

// Fixtures is the top-level shape of a scenario fixture file.
type Fixtures struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is one named sequence of steps run against a single, fresh
// futex.Table.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is a single action in a Scenario. Op selects the action, and with it
// which of the fields below are used.
type Step struct {
	Op string `yaml:"op"` // store, wait, wake, requeue, expect, sleep

	// store
	Addr  string `yaml:"addr,omitempty"`
	Value uint32 `yaml:"value,omitempty"`

	// wait (also uses Addr above)
	Waiter   string `yaml:"waiter,omitempty"`
	Expected uint32 `yaml:"expected,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"` // "infinite", "0", or a time.Duration string

	// wake (also uses Addr above)
	Count string `yaml:"count,omitempty"` // "all" or an integer

	// requeue
	From         string `yaml:"from,omitempty"`
	WakeCount    string `yaml:"wake_count,omitempty"`
	To           string `yaml:"to,omitempty"`
	RequeueCount string `yaml:"requeue_count,omitempty"`

	// expect (also uses Waiter above)
	Want string `yaml:"want,omitempty"` // Ok, Busy, TimedOut, InvalidArgs

	// sleep
	Millis int `yaml:"millis,omitempty"`
}

// run executes s against a fresh Table and reports whether every expect
// step observed the status it named.
func run(s Scenario) (pass bool, failures []string) {
	addrs := map[string]*uint32{}
	addrOf := func(name string) *uint32 {
		if a, ok := addrs[name]; ok {
			return a
		}
		a := new(uint32)
		addrs[name] = a
		return a
	}

	table := futex.NewTable()
	results := map[string]<-chan futex.Status{}

	pass = true
	fail := func(format string, args ...interface{}) {
		pass = false
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	for _, step := range s.Steps {
		switch step.Op {
		case "store":
			atomic.StoreUint32(addrOf(step.Addr), step.Value)

		case "wait":
			addr := addrOf(step.Addr)
			timeout, err := parseTimeout(step.Timeout)
			if err != nil {
				fail("step %+v: %v", step, err)
				continue
			}
			ch := make(chan futex.Status, 1)
			results[step.Waiter] = ch
			go func(expected uint32, timeout time.Duration) {
				ch <- table.Wait(futex.Local, addr, expected, timeout)
			}(step.Expected, timeout)

		case "wake":
			count, err := parseCount(step.Count)
			if err != nil {
				fail("step %+v: %v", step, err)
				continue
			}
			status := table.Wake(futex.Local, addrOf(step.Addr), count)
			vlog.Infof("futexctl: wake %s count=%s -> %s", step.Addr, step.Count, status)

		case "requeue":
			wakeCount, err := parseCount(step.WakeCount)
			if err != nil {
				fail("step %+v: %v", step, err)
				continue
			}
			requeueCount, err := parseCount(step.RequeueCount)
			if err != nil {
				fail("step %+v: %v", step, err)
				continue
			}
			status := table.Requeue(futex.Local, addrOf(step.From), wakeCount, step.Expected, addrOf(step.To), requeueCount)
			vlog.Infof("futexctl: requeue %s -> %s -> %s", step.From, step.To, status)

		case "expect":
			ch, ok := results[step.Waiter]
			if !ok {
				fail("expect: unknown waiter %q", step.Waiter)
				continue
			}
			select {
			case got := <-ch:
				if got.String() != step.Want {
					fail("waiter %q: got %s, want %s", step.Waiter, got, step.Want)
				}
			case <-time.After(2 * time.Second):
				fail("waiter %q: did not complete within 2s, want %s", step.Waiter, step.Want)
			}

		case "sleep":
			time.Sleep(time.Duration(step.Millis) * time.Millisecond)

		default:
			fail("unknown step op %q", step.Op)
		}
	}
	return pass, failures
}

func parseTimeout(s string) (time.Duration, error) {
	switch s {
	case "", "infinite":
		return futex.Infinite, nil
	case "0":
		return 0, nil
	default:
		return time.ParseDuration(s)
	}
}

func parseCount(s string) (int, error) {
	if s == "all" {
		return futex.All, nil
	}
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
