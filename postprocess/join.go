// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package postprocess

import (
	"encoding/json"
	"fmt"

	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/postprocess/symbolize"
)

// processor holds the running state of both joins as Run streams
// events.bin forward exactly once: the PMU join's current lead-event
// group, and the roofline join's in-flight loop dictionary.
type processor struct {
	info     *event.RecordInfo
	resolver *symbolize.Resolver
	store    *Store

	seenUID map[event.UID]bool
	seenIP  map[uint64]bool

	// PMU join state: the group currently being accumulated, keyed by
	// its lead event's correlation id.
	haveGroup   bool
	groupCorr   event.UID
	groupLead   *event.Event
	groupValues map[string]uint64

	pmuRows    int
	confidences []float64

	// Roofline join state.
	loops              map[event.UID]*loopAccum
	rooflineOpsRows    int
	rooflineLoopRows   int
	droppedOrphanStats int

	// pendingStats/pendingEnds buffer roofline stat and LoopEnd events
	// that arrived before the LoopStart they reference, per spec.md §8's
	// boundary behavior: producer-thread interleaving on disk can put a
	// LoopEnd (or its stats) ahead of its own LoopStart in the merged
	// log even though they share one correlation id. Both are keyed by
	// the not-yet-seen LoopStart's unique_id and replayed once that
	// LoopStart arrives; anything left at end of stream is a genuine
	// orphan.
	pendingStats map[event.UID][]*event.Event
	pendingEnds  map[event.UID]pendingEnd
}

// pendingEnd is a buffered RooflineLoopEnd awaiting its LoopStart,
// plus the byte offset it was read from (for the fatal orphan error
// if its LoopStart never appears).
type pendingEnd struct {
	event  *event.Event
	offset int64
}

// loopAccum is one in-flight roofline loop invocation, keyed by its
// LoopStart's unique_id per spec.md §4.6 step 4.
type loopAccum struct {
	pid, tid           uint32
	fileName, funcName string
	line               uint32
	startTS            uint64
	stats              map[string]uint64
}

func newProcessor(info *event.RecordInfo, resolver *symbolize.Resolver, store *Store) *processor {
	return &processor{
		info:        info,
		resolver:    resolver,
		store:       store,
		seenUID:     make(map[event.UID]bool),
		seenIP:      make(map[uint64]bool),
		groupValues:  make(map[string]uint64),
		loops:        make(map[event.UID]*loopAccum),
		pendingStats: make(map[event.UID][]*event.Event),
		pendingEnds:  make(map[event.UID]pendingEnd),
	}
}

// pmu folds one PMU/OS event into the current lead-event group,
// flushing the previous group first if e starts a new one. See
// spec.md §4.6 step 3.
func (p *processor) pmu(e *event.Event) error {
	if !p.haveGroup || e.CorrelationID != p.groupCorr {
		if err := p.flushPMUGroup(); err != nil {
			return err
		}
		p.haveGroup = true
		p.groupCorr = e.CorrelationID
		p.groupLead = e
		p.groupValues = make(map[string]uint64)
	}
	// A reading with time_running == 0 stays out of the counter columns.
	if e.TimeRunning == 0 {
		return nil
	}
	p.groupValues[e.Kind.String()] = e.Value
	return nil
}

// flushPMUGroup materializes the group accumulated so far into one
// pmu_counters row, per spec.md §4.6 step 3's flush rule: events with
// time_running == 0 are skipped from aggregation to avoid a
// divide-by-zero in confidence, per the Open Question's resolution.
func (p *processor) flushPMUGroup() error {
	if !p.haveGroup {
		return nil
	}
	lead := p.groupLead
	values := p.groupValues
	p.haveGroup = false
	p.groupLead = nil
	p.groupValues = nil

	if lead.TimeRunning == 0 {
		return nil
	}

	confidence := float64(lead.TimeRunning) / float64(lead.TimeEnabled)

	var ip uint64
	ips := make([]uint64, 0, len(lead.Callstack))
	for _, f := range lead.Callstack {
		if f.IsLocation {
			continue
		}
		ips = append(ips, f.IP)
	}
	if len(ips) > 0 {
		ip = ips[0]
	}

	for _, frameIP := range ips {
		if p.seenIP[frameIP] {
			continue
		}
		p.seenIP[frameIP] = true
		res := p.resolver.Resolve(lead.ProcessID, frameIP)
		if err := p.store.InsertProcMap(frameIP, res.FuncName, res.FileName, res.Line); err != nil {
			return fmt.Errorf("postprocess: inserting proc_map row for ip %#x: %w", frameIP, err)
		}
	}

	callStackJSON, err := json.Marshal(ips)
	if err != nil {
		return fmt.Errorf("postprocess: encoding call_stack: %w", err)
	}

	row := PMUCounterRow{
		UniqueID:    lead.UniqueID.String(),
		ProcessID:   lead.ProcessID,
		ThreadID:    lead.ThreadID,
		TimeEnabled: lead.TimeEnabled,
		TimeRunning: lead.TimeRunning,
		Confidence:  confidence,
		IP:          ip,
		CallStack:   string(callStackJSON),
		Counters:    values,
	}
	if err := p.store.InsertPMUCounters(row); err != nil {
		return fmt.Errorf("postprocess: inserting pmu_counters row: %w", err)
	}
	p.pmuRows++
	p.confidences = append(p.confidences, confidence)
	return nil
}

// roofline folds one roofline-family event into the loop dictionary,
// emitting a roofline_ops and/or roofline_loop_runs row on LoopEnd.
// See spec.md §4.6 step 4.
func (p *processor) roofline(e *event.Event, offset int64) error {
	switch {
	case e.Kind == event.KindRooflineLoopStart:
		acc := &loopAccum{
			pid:      e.ProcessID,
			tid:      e.ThreadID,
			fileName: e.RooflineFile,
			funcName: symbolize.UnknownFunc,
			line:     e.RooflineLine,
			startTS:  e.Timestamp,
			stats:    make(map[string]uint64),
		}
		p.loops[e.UniqueID] = acc

		// Replay any stats/LoopEnd that arrived before this LoopStart
		// (spec.md §8: producer-thread interleaving on disk).
		for _, se := range p.pendingStats[e.UniqueID] {
			acc.stats[se.Kind.String()] = se.Value
		}
		delete(p.pendingStats, e.UniqueID)

		if pe, ok := p.pendingEnds[e.UniqueID]; ok {
			delete(p.pendingEnds, e.UniqueID)
			return p.finishLoop(acc, e.UniqueID, pe.event)
		}
		return nil

	case e.Kind.IsRooflineStat():
		if acc, ok := p.loops[e.ParentID]; ok {
			acc.stats[e.Kind.String()] = e.Value
			return nil
		}
		// The LoopStart may simply not have been seen yet; buffer and
		// resolve at LoopStart time or, failing that, at end of stream.
		p.pendingStats[e.ParentID] = append(p.pendingStats[e.ParentID], e)
		return nil

	case e.Kind == event.KindRooflineLoopEnd:
		if acc, ok := p.loops[e.CorrelationID]; ok {
			delete(p.loops, e.CorrelationID)
			return p.finishLoop(acc, e.CorrelationID, e)
		}
		// Its LoopStart hasn't been seen yet; buffer it rather than
		// declaring it orphan immediately, since it may simply be
		// reordered ahead of its own start on disk.
		p.pendingEnds[e.CorrelationID] = pendingEnd{event: e, offset: offset}
		return nil
	}
	return nil
}

// finishLoop materializes the roofline_loop_runs and/or roofline_ops
// row for one completed loop invocation, per spec.md §4.6 step 4.
func (p *processor) finishLoop(acc *loopAccum, correlationID event.UID, end *event.Event) error {
	id := correlationID.String()
	if end.ProcessID == p.info.Info.PerfPID {
		if err := p.store.InsertRooflineLoopRun(RooflineLoopRunRow{
			ID: id, PID: acc.pid, TID: acc.tid,
			FileName: acc.fileName, FuncName: acc.funcName, Line: acc.line,
			StartTS: acc.startTS, EndTS: end.Timestamp,
		}); err != nil {
			return fmt.Errorf("postprocess: inserting roofline_loop_runs row: %w", err)
		}
		p.rooflineLoopRows++
	}
	if end.ProcessID == p.info.Info.InstPID {
		if err := p.store.InsertRooflineOps(RooflineOpsRow{
			ID: id, PID: acc.pid, TID: acc.tid,
			FileName: acc.fileName, FuncName: acc.funcName, Line: acc.line,
			BytesLoad:       acc.stats[event.KindRooflineBytesLoad.String()],
			BytesStore:      acc.stats[event.KindRooflineBytesStore.String()],
			ScalarIntOps:    acc.stats[event.KindRooflineScalarIntOps.String()],
			ScalarFloatOps:  acc.stats[event.KindRooflineScalarFloatOps.String()],
			ScalarDoubleOps: acc.stats[event.KindRooflineScalarDoubleOps.String()],
			VectorIntOps:    acc.stats[event.KindRooflineVectorIntOps.String()],
			VectorFloatOps:  acc.stats[event.KindRooflineVectorFloatOps.String()],
			VectorDoubleOps: acc.stats[event.KindRooflineVectorDoubleOps.String()],
		}); err != nil {
			return fmt.Errorf("postprocess: inserting roofline_ops row: %w", err)
		}
		p.rooflineOpsRows++
	}
	return nil
}

// finalizeRoofline is called once the event stream is exhausted. Any
// buffered LoopEnd whose LoopStart never appeared is a genuine orphan
// (spec.md §4.6 edge cases: fatal). Any buffered stat whose parent
// never appeared is dropped with a warning, exactly as an immediately-
// recognized orphan stat would be.
func (p *processor) finalizeRoofline() error {
	for corrID, pe := range p.pendingEnds {
		return &CorruptInputError{
			Reason: fmt.Sprintf("RooflineLoopEnd %s has no matching LoopStart", corrID),
			Offset: pe.offset,
		}
	}
	for parentID, stats := range p.pendingStats {
		for _, se := range stats {
			log.Warn().Str("kind", se.Kind.String()).Str("parent_id", parentID.String()).
				Msg("dropping orphan roofline stat event")
			p.droppedOrphanStats++
		}
	}
	return nil
}
