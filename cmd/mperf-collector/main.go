// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mperf-collector is built with -buildmode=c-shared to give a
// compiler-instrumentation pass a C ABI around package collector's
// loop_begin/loop_end entry points, per spec.md §4.2. The exported
// names match the original ABI in collector/src/ffi.rs.
package main

/*
#include <stdint.h>

typedef struct {
	uint32_t    source_line;
	const char* filename;
} mperf_loop_info;

typedef struct {
	uint64_t bytes_load;
	uint64_t bytes_store;
	uint64_t scalar_int_ops;
	uint64_t scalar_float_ops;
	uint64_t scalar_double_ops;
	uint64_t vector_int_ops;
	uint64_t vector_float_ops;
	uint64_t vector_double_ops;
} mperf_loop_stats;
*/
import "C"

import (
	"runtime/cgo"

	"github.com/mperf-go/mperf/collector"
)

// mperf_roofline_internal_notify_loop_begin is called by instrumented
// code immediately before a profiled loop. It returns an opaque,
// non-zero token the instrumented code must pass back unchanged to
// ..._notify_loop_end, or zero if profiling is disabled for this run.
//
// The token is a runtime/cgo.Handle rather than a raw Go pointer: cgo's
// pointer-passing rules forbid C code from retaining a Go pointer
// across calls, and a LoopHandle's whole purpose is to outlive the
// call that created it.
//
//export mperf_roofline_internal_notify_loop_begin
func mperf_roofline_internal_notify_loop_begin(info *C.mperf_loop_info) C.uintptr_t {
	handle := collector.LoopBegin(collector.LoopInfo{
		SourceLine: uint32(info.source_line),
		Filename:   C.GoString(info.filename),
	})
	if handle == nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(handle))
}

// mperf_roofline_internal_notify_loop_end closes out the loop
// invocation token identifies, emitting its events. A zero token
// (profiling was disabled at loop_begin time) is a no-op.
//
//export mperf_roofline_internal_notify_loop_end
func mperf_roofline_internal_notify_loop_end(token C.uintptr_t, stats *C.mperf_loop_stats) {
	if token == 0 {
		return
	}
	h := cgo.Handle(token)
	handle, _ := h.Value().(*collector.LoopHandle)
	h.Delete()

	collector.LoopEnd(handle, collector.LoopStats{
		BytesLoad:       uint64(stats.bytes_load),
		BytesStore:      uint64(stats.bytes_store),
		ScalarIntOps:    uint64(stats.scalar_int_ops),
		ScalarFloatOps:  uint64(stats.scalar_float_ops),
		ScalarDoubleOps: uint64(stats.scalar_double_ops),
		VectorIntOps:    uint64(stats.vector_int_ops),
		VectorFloatOps:  uint64(stats.vector_float_ops),
		VectorDoubleOps: uint64(stats.vector_double_ops),
	})
}

func main() {}
