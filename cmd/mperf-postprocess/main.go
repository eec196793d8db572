// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mperf-postprocess joins a closed capture directory into
// perf.db. It is a thin wrapper over postprocess.Run; the join
// algorithm itself lives in that package so it can be unit tested
// without a subprocess. See spec.md §1.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mperf-go/mperf/internal/mlog"
	"github.com/mperf-go/mperf/postprocess"
)

var log = mlog.New("mperf-postprocess")

func main() {
	dir := flag.String("dir", "", "capture directory to post-process (required)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "mperf-postprocess: -dir is required")
		os.Exit(2)
	}

	result, err := postprocess.Run(*dir)
	if err != nil {
		log.Fatal(err, "post-processing failed")
	}

	fmt.Printf("pmu_counters:        %d rows (confidence %.3f - %.3f)\n",
		result.PMURows, result.Confidence.Min, result.Confidence.Max)
	fmt.Printf("roofline_ops:        %d rows\n", result.RooflineOpsRows)
	fmt.Printf("roofline_loop_runs:  %d rows\n", result.RooflineLoopRows)
	fmt.Printf("proc_map:            %d rows\n", result.ProcMapRows)
	if result.DroppedOrphanStats > 0 {
		fmt.Printf("dropped orphan stat events: %d\n", result.DroppedOrphanStats)
	}
}
