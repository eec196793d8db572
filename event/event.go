// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event defines the on-disk and on-wire record format shared
// by the collector, the PMU driver and the post-processor: the 128-bit
// identifier scheme, the Event record itself, and its EventKind
// partitions.
package event

import "fmt"

// UID is a 128-bit composite identifier: the high word packs the
// emitting process id into its top 32 bits and the thread id into its
// low 32 bits; the low word is a counter that is monotonic per
// (process id, thread id) pair. This gives globally unique ids without
// any cross-thread coordination.
type UID struct {
	Hi uint64 // (process_id << 32) | thread_id
	Lo uint64 // monotonic counter
}

// NewUID composes a UID from its parts.
func NewUID(processID, threadID uint32, counter uint64) UID {
	return UID{Hi: uint64(processID)<<32 | uint64(threadID), Lo: counter}
}

// Zero reports whether u is the zero UID, used to mean "no parent".
func (u UID) Zero() bool { return u.Hi == 0 && u.Lo == 0 }

// ProcessID extracts the top 32 bits of the UID.
func (u UID) ProcessID() uint32 { return uint32(u.Hi >> 32) }

// ThreadID extracts the next 32 bits of the UID.
func (u UID) ThreadID() uint32 { return uint32(u.Hi) }

// Counter extracts the low 64 bits of the UID.
func (u UID) Counter() uint64 { return u.Lo }

// Less gives UIDs from the same (process, thread) pair their emission
// order. UIDs from different origins have no defined order.
func (u UID) Less(o UID) bool {
	if u.Hi != o.Hi {
		return u.Hi < o.Hi
	}
	return u.Lo < o.Lo
}

func (u UID) String() string {
	return fmt.Sprintf("%d.%d.%d", u.ProcessID(), u.ThreadID(), u.Counter())
}

// Kind discriminates the family and specific measurement of an Event.
// It is a closed enum partitioned into PMU, OS and Roofline families;
// IsPMU/IsOS/IsRoofline classify a Kind into its family.
type Kind uint8

const (
	KindPMUCycles Kind = iota
	KindPMUInstructions
	KindPMULLCReferences
	KindPMULLCMisses
	KindPMUBranchInstructions
	KindPMUBranchMisses
	KindPMUStalledCyclesFrontend
	KindPMUStalledCyclesBackend
	KindPMUCustomRaw

	KindOSCPUClock
	KindOSCPUMigrations
	KindOSPageFaults
	KindOSContextSwitches
	KindOSTotalTime
	KindOSUserTime
	KindOSSystemTime

	KindRooflineBytesLoad
	KindRooflineBytesStore
	KindRooflineScalarIntOps
	KindRooflineScalarFloatOps
	KindRooflineScalarDoubleOps
	KindRooflineVectorIntOps
	KindRooflineVectorFloatOps
	KindRooflineVectorDoubleOps
	KindRooflineLoopStart
	KindRooflineLoopEnd

	kindCount
)

var kindNames = [kindCount]string{
	KindPMUCycles:                "pmu_cycles",
	KindPMUInstructions:          "pmu_instructions",
	KindPMULLCReferences:         "pmu_llc_references",
	KindPMULLCMisses:             "pmu_llc_misses",
	KindPMUBranchInstructions:    "pmu_branch_instructions",
	KindPMUBranchMisses:          "pmu_branch_misses",
	KindPMUStalledCyclesFrontend: "pmu_stalled_cycles_frontend",
	KindPMUStalledCyclesBackend:  "pmu_stalled_cycles_backend",
	KindPMUCustomRaw:             "pmu_custom_raw",

	KindOSCPUClock:        "os_cpu_clock",
	KindOSCPUMigrations:   "os_cpu_migrations",
	KindOSPageFaults:      "os_page_faults",
	KindOSContextSwitches: "os_context_switches",
	KindOSTotalTime:       "os_total_time",
	KindOSUserTime:        "os_user_time",
	KindOSSystemTime:      "os_system_time",

	KindRooflineBytesLoad:        "roofline_bytes_load",
	KindRooflineBytesStore:       "roofline_bytes_store",
	KindRooflineScalarIntOps:     "roofline_scalar_int_ops",
	KindRooflineScalarFloatOps:   "roofline_scalar_float_ops",
	KindRooflineScalarDoubleOps:  "roofline_scalar_double_ops",
	KindRooflineVectorIntOps:     "roofline_vector_int_ops",
	KindRooflineVectorFloatOps:   "roofline_vector_float_ops",
	KindRooflineVectorDoubleOps:  "roofline_vector_double_ops",
	KindRooflineLoopStart:        "roofline_loop_start",
	KindRooflineLoopEnd:          "roofline_loop_end",
}

func (k Kind) String() string {
	if k < kindCount {
		if name := kindNames[k]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsPMU reports whether k belongs to the PMU event family.
func (k Kind) IsPMU() bool {
	return k >= KindPMUCycles && k <= KindPMUCustomRaw
}

// IsOS reports whether k belongs to the OS event family.
func (k Kind) IsOS() bool {
	return k >= KindOSCPUClock && k <= KindOSSystemTime
}

// IsRoofline reports whether k belongs to the roofline event family.
func (k Kind) IsRoofline() bool {
	return k >= KindRooflineBytesLoad && k <= KindRooflineLoopEnd
}

// IsRooflineStat reports whether k is one of the roofline measurement
// kinds that may be attributed to a loop via parent_id (excludes
// LoopStart/LoopEnd themselves).
func (k Kind) IsRooflineStat() bool {
	return k >= KindRooflineBytesLoad && k <= KindRooflineVectorDoubleOps
}

// CallFrame is a tagged variant: either a raw instruction pointer or a
// resolved source Location. Location's FunctionName/FileName index the
// companion string table by id.
type CallFrame struct {
	IsLocation bool

	IP uint64 // valid when !IsLocation

	FunctionName UID // string table id, valid when IsLocation
	FileName     UID // string table id, valid when IsLocation
	Line         uint32
}

// FrameIP returns a CallFrame wrapping a raw instruction pointer.
func FrameIP(ip uint64) CallFrame { return CallFrame{IP: ip} }

// FrameLocation returns a CallFrame wrapping a resolved source location.
func FrameLocation(functionName, fileName UID, line uint32) CallFrame {
	return CallFrame{IsLocation: true, FunctionName: functionName, FileName: fileName, Line: line}
}

// StringRef wraps a string-table id (assigned by the dispatcher's
// lightweight 64-bit unique_id(), not the 128-bit event UID scheme) in
// a UID so it can populate CallFrame.FunctionName/FileName, which the
// wire format widens to 128 bits for field-layout uniformity.
func StringRef(id uint64) UID { return UID{Lo: id} }

// StringID extracts the string-table id wrapped by StringRef.
func (u UID) StringID() uint64 { return u.Lo }

// AsIP returns the frame's instruction pointer. It panics if the frame
// is a Location, mirroring the post-processor's invariant that raw
// callstacks it consumes never contain resolved locations.
func (f CallFrame) AsIP() uint64 {
	if f.IsLocation {
		panic("event: CallFrame is a Location, not an IP")
	}
	return f.IP
}

// MaxCallstack bounds the number of frames carried by an Event, per
// spec.md §3 ("up to ~32 frames").
const MaxCallstack = 32

// Event is the fundamental capture record. See spec.md §3 for field
// semantics and §3/§8 for the invariants this type's producers and
// consumers must uphold.
type Event struct {
	UniqueID      UID
	CorrelationID UID
	ParentID      UID

	Kind Kind

	ThreadID  uint32
	ProcessID uint32

	TimeEnabled uint64
	TimeRunning uint64

	Value uint64

	Timestamp uint64

	IP uint64

	Callstack []CallFrame

	// RooflineFile and RooflineLine carry the loop's compile-time
	// source location on RooflineLoopStart events, exactly as the
	// instrumentation pass passed them to loop_begin. Unlike
	// CallFrame.Location, these are not string-table ids: loop
	// locations are emitted once per loop invocation rather than once
	// per sampled frame, so interning buys nothing and the collector
	// can send the literal string cheaply. Zero value on every other
	// event kind.
	RooflineFile string
	RooflineLine uint32
}
