// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package postprocess implements the join described in spec.md §4.6:
// it reads a closed capture directory's events.bin, proc_map.json and
// strings.json, symbolizes sampled instruction pointers, pairs
// roofline loop-start/end events by correlation id, and materializes
// the result into perf.db, a SQLite relational store.
//
// View creation (hotspots, roofline) is explicitly out of scope per
// spec.md §1; Store.DB exposes the open database for that external
// presentation layer to build on.
package postprocess

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/internal/mlog"
	"github.com/mperf-go/mperf/postprocess/stats"
	"github.com/mperf-go/mperf/postprocess/symbolize"
)

var log = mlog.New("postprocess")

// Result summarizes one post-processing run: counts a caller
// (cmd/mperf-postprocess) can log or fold into a final report.
type Result struct {
	PMURows             int
	RooflineOpsRows     int
	RooflineLoopRows    int
	ProcMapRows         int
	DroppedOrphanStats  int
	Confidence          stats.Summary
}

// Run executes the full pipeline over the capture directory at dir,
// writing perf.db into dir and returning a summary Result. Any
// returned error is fatal to post-processing per spec.md §7: the
// caller is expected to exit non-zero and leave dir's partial perf.db
// in place for inspection, exactly as Run leaves it.
func Run(dir string) (*Result, error) {
	info, err := event.LoadRecordInfoFile(filepath.Join(dir, "info.json"))
	if err != nil {
		return nil, fmt.Errorf("postprocess: loading info.json: %w", err)
	}

	strs, err := event.LoadStringsFile(filepath.Join(dir, "strings.json"))
	if err != nil {
		return nil, fmt.Errorf("postprocess: loading strings.json: %w", err)
	}

	maps, err := event.LoadProcMapsFile(filepath.Join(dir, "proc_map.json"))
	if err != nil {
		return nil, fmt.Errorf("postprocess: loading proc_map.json: %w", err)
	}
	resolver := symbolize.NewResolver(event.NewProcMapSet(maps))

	store, err := OpenStore(filepath.Join(dir, "perf.db"), info.Info.EnabledCounters)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	for _, s := range strs {
		if err := store.InsertString(s.ID, s.Value); err != nil {
			return nil, fmt.Errorf("postprocess: inserting string %d: %w", s.ID, err)
		}
	}

	data, err := mmapEventsFile(filepath.Join(dir, "events.bin"))
	if err != nil {
		return nil, err
	}
	if data != nil {
		defer unix.Munmap(data)
	}

	p := newProcessor(info, resolver, store)

	r := event.NewReader(bytes.NewReader(data))
	for r.Next() {
		e := r.Event
		if p.seenUID[e.UniqueID] {
			return nil, &CorruptInputError{
				Reason: fmt.Sprintf("duplicate unique_id %s", e.UniqueID),
				Offset: r.Offset(),
			}
		}
		p.seenUID[e.UniqueID] = true

		var joinErr error
		if e.Kind.IsRoofline() {
			joinErr = p.roofline(e, r.Offset())
		} else {
			joinErr = p.pmu(e)
		}
		if joinErr != nil {
			return nil, joinErr
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("postprocess: reading events.bin: %w", err)
	}
	if err := p.flushPMUGroup(); err != nil {
		return nil, err
	}
	if err := p.finalizeRoofline(); err != nil {
		return nil, err
	}

	result := &Result{
		PMURows:            p.pmuRows,
		RooflineOpsRows:    p.rooflineOpsRows,
		RooflineLoopRows:   p.rooflineLoopRows,
		ProcMapRows:        len(p.seenIP),
		DroppedOrphanStats: p.droppedOrphanStats,
		Confidence:         stats.ConfidenceSummary(p.confidences),
	}
	log.Info().
		Int("pmu_rows", result.PMURows).
		Int("roofline_ops_rows", result.RooflineOpsRows).
		Int("roofline_loop_rows", result.RooflineLoopRows).
		Int("proc_map_rows", result.ProcMapRows).
		Int("dropped_orphan_stats", result.DroppedOrphanStats).
		Msg("capture joined")
	return result, nil
}

// mmapEventsFile memory-maps events.bin read-only, per spec.md §4.6
// step 3. An empty events.bin (a run that recorded zero loops and zero
// samples) maps to a nil slice rather than an error; a missing
// events.bin is an error.
func mmapEventsFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("postprocess: opening events.bin: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("postprocess: statting events.bin: %w", err)
	}
	if fi.Size() == 0 {
		return nil, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("postprocess: mmap events.bin: %w", err)
	}
	return data, nil
}
