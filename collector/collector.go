// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collector is embedded into an instrumented process. It
// exposes the two entry points a compiler-instrumentation pass calls
// around a roofline loop, loop_begin and loop_end (wrapped with a
// C-ABI by cmd/mperf-collector), and emits event.Event records onto a
// shmem.Ring for the recorder to pick up. See spec.md §4.2.
package collector

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/internal/mlog"
	"github.com/mperf-go/mperf/shmem"
)

var log = mlog.New("collector")

// Environment variables the recorder sets before exec'ing the
// instrumented process, per spec.md §6.
const (
	EnvShmemID           = "MPERF_COLLECTOR_SHMEM_ID"
	EnvEnabled           = "MPERF_COLLECTOR_ENABLED"
	EnvRooflineInstrument = "MPERF_COLLECTOR_ROOFLINE_INSTRUMENTED"
)

// RingCapacity and RingSlotSize size the shared-memory ring the
// collector sends events over; a slot must fit one encoded Event.
// Collector events carry no callstack, so a slot bounds only a loop's
// RooflineFile (up to 662 bytes); it would also hold a full callstack
// of IP frames (see event.MaxCallstack), but not one of Location
// frames. cmd/mperf-recorder uses
// these same constants to create the ring the collector later opens,
// so the two sides never disagree about layout.
const (
	RingCapacity = 4096
	RingSlotSize = 768
)

// state is the process-wide singleton the first loop_begin call lazily
// initializes, per SPEC_FULL.md §9's "lazily-initialized process-wide
// singleton" design note. enabled and ring are immutable after init;
// counters is a per-thread monotonic UID counter.
type state struct {
	enabled bool
	ring    *shmem.Ring
	pid     uint32

	counters sync.Map // tid (int) -> *uint64
}

var (
	globalOnce  sync.Once
	globalState *state
)

func global() *state {
	globalOnce.Do(func() {
		globalState = initState()
	})
	return globalState
}

func initState() *state {
	s := &state{pid: uint32(os.Getpid())}

	if os.Getenv(EnvEnabled) == "" {
		return s
	}

	name := os.Getenv(EnvShmemID)
	if name == "" {
		log.Error().Msg("collector enabled but " + EnvShmemID + " is unset; disabling emission")
		return s
	}

	ring, err := shmem.OpenRing(name, RingCapacity, RingSlotSize)
	if err != nil {
		log.Error().Err(err).Str("shmem_id", name).Msg("opening collector ring, disabling emission")
		return s
	}

	s.ring = ring
	s.enabled = true
	return s
}

// nextUID mints a fresh event.UID for the calling thread, using a
// thread-local monotonic counter keyed by the OS thread id (the
// closest Go has to a C thread-local, since goroutines migrate
// threads but the runtime pins the calling goroutine to its OS thread
// for the duration of a cgo call).
func (s *state) nextUID() event.UID {
	tid := unix.Gettid()
	v, _ := s.counters.LoadOrStore(tid, new(uint64))
	counter := atomic.AddUint64(v.(*uint64), 1) - 1
	return event.NewUID(s.pid, uint32(tid), counter)
}

func (s *state) publish(e *event.Event) {
	if s.ring == nil {
		return
	}
	buf := encodeBuf.Get().(*encodeWriter)
	buf.reset()
	if err := event.Encode(buf, e); err != nil {
		encodeBuf.Put(buf)
		log.Error().Err(err).Msg("encoding collector event")
		return
	}
	if err := s.ring.SendSync(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("publishing collector event, dropping")
	}
	encodeBuf.Put(buf)
}

// encodeWriter is a reusable []byte sink satisfying io.Writer, so
// publish avoids an allocation per emitted event on the collector's
// synchronous, lock-light hot path.
type encodeWriter struct{ b []byte }

func (w *encodeWriter) reset()                      { w.b = w.b[:0] }
func (w *encodeWriter) Bytes() []byte                { return w.b }
func (w *encodeWriter) Write(p []byte) (int, error) { w.b = append(w.b, p...); return len(p), nil }

var encodeBuf = sync.Pool{New: func() any { return &encodeWriter{b: make([]byte, 0, RingSlotSize)} }}

// LoopInfo is the source-location metadata passed to loop_begin.
// Mirrored field-for-field by the C struct cmd/mperf-collector exports
// over cgo; see spec.md §6.
type LoopInfo struct {
	SourceLine uint32
	Filename   string
}

// LoopStats carries the eight roofline counters accumulated over one
// loop invocation, passed to loop_end. Mirrors the C LoopStats struct.
type LoopStats struct {
	BytesLoad        uint64
	BytesStore       uint64
	ScalarIntOps     uint64
	ScalarFloatOps   uint64
	ScalarDoubleOps  uint64
	VectorIntOps     uint64
	VectorFloatOps   uint64
	VectorDoubleOps  uint64
}

// LoopHandle is the opaque, heap-owned record returned by LoopBegin.
// Its only contract (per SPEC_FULL.md §9) is that the caller passes
// the same pointer back to LoopEnd; nothing else should dereference it.
type LoopHandle struct {
	id        event.UID
	timestamp uint64
	info      LoopInfo
}

func nowNanos() uint64 { return uint64(time.Now().UnixNano()) }

// LoopBegin allocates a LoopHandle for one loop invocation and returns
// it, or nil if profiling is disabled. It performs no I/O: the
// LoopStart event is not emitted until LoopEnd, matching the ordering
// invariant of spec.md §4.2 (LoopStart precedes every stat event,
// which precedes LoopEnd, all for the same handle).
func LoopBegin(info LoopInfo) *LoopHandle {
	s := global()
	if !s.enabled {
		return nil
	}
	return &LoopHandle{
		id:        s.nextUID(),
		timestamp: nowNanos(),
		info:      info,
	}
}

// rooflineStats pairs a non-zero LoopStats field with the event.Kind
// it's emitted under, in the fixed order spec.md §4.2 requires.
func rooflineStats(stats LoopStats) []struct {
	kind  event.Kind
	value uint64
} {
	all := []struct {
		kind  event.Kind
		value uint64
	}{
		{event.KindRooflineBytesLoad, stats.BytesLoad},
		{event.KindRooflineBytesStore, stats.BytesStore},
		{event.KindRooflineScalarIntOps, stats.ScalarIntOps},
		{event.KindRooflineScalarFloatOps, stats.ScalarFloatOps},
		{event.KindRooflineScalarDoubleOps, stats.ScalarDoubleOps},
		{event.KindRooflineVectorIntOps, stats.VectorIntOps},
		{event.KindRooflineVectorFloatOps, stats.VectorFloatOps},
		{event.KindRooflineVectorDoubleOps, stats.VectorDoubleOps},
	}
	out := all[:0]
	for _, s := range all {
		if s.value != 0 {
			out = append(out, s)
		}
	}
	return out
}

// LoopEnd emits the LoopStart event (with handle's id as its
// unique_id), one event per non-zero field of stats, and finally
// LoopEnd; the stat events and LoopEnd carry handle's id as
// correlation_id, and stat events additionally carry handle.id as
// parent_id so the post-processor's roofline join can attribute them.
// A nil handle (profiling disabled, or a double-release) is a no-op.
func LoopEnd(handle *LoopHandle, stats LoopStats) {
	if handle == nil {
		return
	}
	s := global()
	if !s.enabled || s.ring == nil {
		return
	}

	tid := uint32(unix.Gettid())

	s.publish(&event.Event{
		UniqueID:     handle.id,
		Kind:         event.KindRooflineLoopStart,
		ThreadID:     tid,
		ProcessID:    s.pid,
		Timestamp:    handle.timestamp,
		RooflineFile: handle.info.Filename,
		RooflineLine: handle.info.SourceLine,
	})

	for _, stat := range rooflineStats(stats) {
		s.publish(&event.Event{
			UniqueID:      s.nextUID(),
			CorrelationID: handle.id,
			ParentID:      handle.id,
			Kind:          stat.kind,
			ThreadID:      tid,
			ProcessID:     s.pid,
			Timestamp:     nowNanos(),
			Value:         stat.value,
		})
	}

	s.publish(&event.Event{
		UniqueID:      s.nextUID(),
		CorrelationID: handle.id,
		Kind:          event.KindRooflineLoopEnd,
		ThreadID:      tid,
		ProcessID:     s.pid,
		Timestamp:     nowNanos(),
	})
}
