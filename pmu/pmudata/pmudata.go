// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmudata embeds the per-CPU-family raw event name tables the
// pmu package's raw-counter path resolves against. Each family is a
// JSON document generated once from the vendor's published event
// list; embed.FS keeps them part of the compiled binary instead of
// requiring a code-generation step at build time, the way the
// original's build.rs did.
package pmudata

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

//go:embed families/*.json
var familiesFS embed.FS

// Well-known CPU family ids, matched against cpuid.Info to select a
// Family below.
const (
	AMDZen1 = "zen1"
	AMDZen2 = "zen2"
	AMDZen3 = "zen3"
	AMDZen4 = "zen4"

	IntelHaswell    = "haswell"
	IntelBroadwell  = "broadwell"
	IntelSkylake    = "skylake"
	IntelIceLake    = "icelake"
	IntelAlderLake  = "alderlake"
	IntelRaptorLake = "raptorlake"

	Unknown = "unknown"
)

// EventDesc names one raw performance counter event the family
// defines, with its perf_event_open raw config code.
type EventDesc struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
	Code uint64 `json:"-"`

	// CodeHex carries Code as "0xNN" on the wire, matching the
	// original event tables' format so they can be embedded verbatim.
	CodeHex string `json:"code"`
}

// Alias maps an alternate event name to its canonical EventDesc.Name.
type Alias struct {
	Origin string `json:"origin"`
	Target string `json:"target"`
}

// Family is one CPU family's raw event table.
type Family struct {
	FamilyID string      `json:"family_id"`
	Name     string      `json:"name"`
	Vendor   string      `json:"vendor"`
	Arch     string      `json:"arch"`
	Events   []EventDesc `json:"events"`
	Aliases  []Alias     `json:"aliases"`

	// LeaderEvent, if set, names the raw event that should open the
	// group for sampling-mode captures on this family: some uncore
	// PMUs only report useful data when read alongside a specific
	// fixed counter.
	LeaderEvent string `json:"leader_event,omitempty"`

	// MaxCounters, if set, overrides the package default for how many
	// counters mperf places in one perf_event group on this family
	// (some parts limit simultaneous PMU slots below the usual 3-4).
	MaxCounters int `json:"max_counters,omitempty"`

	byName map[string]EventDesc
}

func (f *Family) index() {
	f.byName = make(map[string]EventDesc, len(f.Events))
	for _, e := range f.Events {
		f.byName[e.Name] = e
	}
	for _, a := range f.Aliases {
		if e, ok := f.byName[a.Target]; ok {
			f.byName[a.Origin] = e
		}
	}
}

// Lookup resolves a raw event name (or alias) to its EventDesc.
func (f *Family) Lookup(name string) (EventDesc, bool) {
	e, ok := f.byName[name]
	return e, ok
}

var families = map[string]*Family{}

func init() {
	entries, err := familiesFS.ReadDir("families")
	if err != nil {
		panic(fmt.Sprintf("pmudata: reading embedded families: %v", err))
	}
	for _, entry := range entries {
		data, err := familiesFS.ReadFile("families/" + entry.Name())
		if err != nil {
			panic(fmt.Sprintf("pmudata: reading %s: %v", entry.Name(), err))
		}
		var f Family
		if err := json.Unmarshal(data, &f); err != nil {
			panic(fmt.Sprintf("pmudata: parsing %s: %v", entry.Name(), err))
		}
		for i := range f.Events {
			code, err := parseHex(f.Events[i].CodeHex)
			if err != nil {
				panic(fmt.Sprintf("pmudata: %s event %s: %v", entry.Name(), f.Events[i].Name, err))
			}
			f.Events[i].Code = code
		}
		f.index()
		families[f.FamilyID] = &f
	}
}

func parseHex(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("code %q does not start with 0x", s)
	}
	return strconv.ParseUint(s[2:], 16, 64)
}

// Find returns the Family registered under id, or false if none is
// embedded for it.
func Find(id string) (*Family, bool) {
	f, ok := families[id]
	return f, ok
}
