// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Scenario names the capture mode a recording ran under, set once at
// record time. The post-processor validates it when reading info.json
// but picks the PMU or roofline join for each event by its Kind, not
// by Scenario.
type Scenario string

const (
	// ScenarioSnapshot is a plain sampling-mode PMU capture: no
	// instrumented roofline loop markers are expected in events.bin.
	ScenarioSnapshot Scenario = "snapshot"
	// ScenarioRoofline pairs sampling-mode PMU counters with
	// collector-emitted loop_start/loop_end markers.
	ScenarioRoofline Scenario = "roofline"
)

// RecordInfo is the top-level content of info.json: everything the
// post-processor needs about a capture that isn't carried in the
// event log itself. See spec.md §6.
type RecordInfo struct {
	Scenario Scenario     `json:"scenario"`
	Info     ScenarioInfo `json:"info"`
}

// ScenarioInfo carries the fields that distinguish one recorded
// process from the host it ran on. PerfPID is the pid the PMU driver
// attached to (the recorder itself when no -pid is given outside the
// roofline scenario); InstPID is the pid of the instrumented target
// process, or zero when there is none. mperf-recorder launches a
// single process for a roofline capture, so both fields name it there.
// The roofline join writes a roofline_loop_runs row for a loop that
// ends in PerfPID and a roofline_ops row for one that ends in InstPID.
type ScenarioInfo struct {
	PerfPID         uint32   `json:"perf_pid"`
	InstPID         uint32   `json:"inst_pid"`
	Command         []string `json:"command"`
	CPUModel        string   `json:"cpu_model"`
	CPUVendor       string   `json:"cpu_vendor"`
	EnabledCounters []string `json:"enabled_counters"`
}

// WriteRecordInfo serializes info as info.json.
func WriteRecordInfo(w io.Writer, info *RecordInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// ReadRecordInfo parses an info.json document.
func ReadRecordInfo(r io.Reader) (*RecordInfo, error) {
	var info RecordInfo
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return nil, fmt.Errorf("event: decoding info.json: %w", err)
	}
	switch info.Scenario {
	case ScenarioSnapshot, ScenarioRoofline:
	default:
		return nil, fmt.Errorf("event: info.json: unknown scenario %q", info.Scenario)
	}
	return &info, nil
}

// LoadRecordInfoFile reads and parses the info.json file at path.
func LoadRecordInfoFile(path string) (*RecordInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecordInfo(f)
}
