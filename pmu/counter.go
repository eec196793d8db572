// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmu drives the host's hardware performance-monitoring unit
// through Linux's perf_event_open(2) interface: it opens counters,
// reads them in counting mode, and decodes sampling-mode mmap rings
// into call-stack samples. See pmu/pmudata for the per-CPU-family
// event name tables it consults to resolve raw event codes.
package pmu

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mperf-go/mperf/event"
)

// counterID discriminates the eight architectural counters mirroring
// event.Kind's PMU family from a custom, by-name raw counter resolved
// through a CPU family's event table (pmu/pmudata), per spec.md §4.3.
type counterID uint8

const (
	counterInvalid counterID = iota
	counterCycles
	counterInstructions
	counterLLCReferences
	counterLLCMisses
	counterBranchInstructions
	counterBranchMisses
	counterStalledCyclesFrontend
	counterStalledCyclesBackend
	counterCustom
)

// Counter names one hardware counter mperf knows how to program: one
// of the eight architectural counters, or a Custom counter naming a
// raw event by the host CPU family's event table. PreferringRaw marks
// an architectural counter as willing to open the family's vendor
// alias for it instead of the generic PERF_TYPE_HARDWARE code, when
// one exists.
type Counter struct {
	id        counterID
	rawName   string // set only when id == counterCustom
	preferRaw bool
}

var (
	CounterCycles                = Counter{id: counterCycles}
	CounterInstructions          = Counter{id: counterInstructions}
	CounterLLCReferences         = Counter{id: counterLLCReferences}
	CounterLLCMisses             = Counter{id: counterLLCMisses}
	CounterBranchInstructions    = Counter{id: counterBranchInstructions}
	CounterBranchMisses          = Counter{id: counterBranchMisses}
	CounterStalledCyclesFrontend = Counter{id: counterStalledCyclesFrontend}
	CounterStalledCyclesBackend  = Counter{id: counterStalledCyclesBackend}
)

// Custom names a raw counter by the event name it's listed under in
// the host CPU family's table (e.g. "LONGEST_LAT_CACHE.MISS" on
// Skylake), resolved at driver-open time via pmudata.Family.Lookup.
func Custom(name string) Counter {
	return Counter{id: counterCustom, rawName: name}
}

// PreferringRaw returns a copy of c that, when the host family defines
// a vendor-specific alias for c, opens that raw event instead of c's
// generic PERF_TYPE_HARDWARE code.
func (c Counter) PreferringRaw() Counter {
	c.preferRaw = true
	return c
}

// PreferRaw reports whether c was built with PreferringRaw.
func (c Counter) PreferRaw() bool { return c.preferRaw }

// RawName returns the family-table event name a Custom counter
// resolves against, or "" for an architectural counter.
func (c Counter) RawName() string { return c.rawName }

// Kind maps a Counter to the event.Kind its readings are published
// under.
func (c Counter) Kind() event.Kind {
	switch c.id {
	case counterCycles:
		return event.KindPMUCycles
	case counterInstructions:
		return event.KindPMUInstructions
	case counterLLCReferences:
		return event.KindPMULLCReferences
	case counterLLCMisses:
		return event.KindPMULLCMisses
	case counterBranchInstructions:
		return event.KindPMUBranchInstructions
	case counterBranchMisses:
		return event.KindPMUBranchMisses
	case counterStalledCyclesFrontend:
		return event.KindPMUStalledCyclesFrontend
	case counterStalledCyclesBackend:
		return event.KindPMUStalledCyclesBackend
	default:
		return event.KindPMUCustomRaw
	}
}

func (c Counter) String() string {
	switch c.id {
	case counterCycles:
		return "cycles"
	case counterInstructions:
		return "instructions"
	case counterLLCReferences:
		return "llc_references"
	case counterLLCMisses:
		return "llc_misses"
	case counterBranchInstructions:
		return "branch_instructions"
	case counterBranchMisses:
		return "branch_misses"
	case counterStalledCyclesFrontend:
		return "stalled_cycles_frontend"
	case counterStalledCyclesBackend:
		return "stalled_cycles_backend"
	case counterCustom:
		if c.rawName != "" {
			return "raw:" + c.rawName
		}
		return "raw"
	default:
		return "unknown"
	}
}

// ParseCounter resolves a flag-friendly counter name (as printed by
// Counter.String, or "raw:<event-name>" for a custom counter) back to
// its Counter value.
func ParseCounter(name string) (Counter, bool) {
	switch name {
	case "cycles":
		return CounterCycles, true
	case "instructions":
		return CounterInstructions, true
	case "llc_references":
		return CounterLLCReferences, true
	case "llc_misses":
		return CounterLLCMisses, true
	case "branch_instructions":
		return CounterBranchInstructions, true
	case "branch_misses":
		return CounterBranchMisses, true
	case "stalled_cycles_frontend":
		return CounterStalledCyclesFrontend, true
	case "stalled_cycles_backend":
		return CounterStalledCyclesBackend, true
	}
	if rest, ok := strings.CutPrefix(name, "raw:"); ok && rest != "" {
		return Custom(rest), true
	}
	return Counter{}, false
}

// ErrUnsupportedCounter is returned when a requested Counter has no
// native perf_event_open encoding on this host/CPU family.
var ErrUnsupportedCounter = errors.New("pmu: counter not supported on this host")

// ErrUnknownFamily is returned when the host CPU family has no entry
// in pmudata and a raw event code cannot be resolved by name.
var ErrUnknownFamily = errors.New("pmu: unknown CPU family")

// maxCountersInGroup bounds how many counters mperf will place in a
// single perf_event group absent a family-specific override (see
// pmudata.Family.MaxCounters), matching spec.md §4.3's default group
// size of 3 (Cycles, Instructions, and one more counter per group).
const maxCountersInGroup = 3
