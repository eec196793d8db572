// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mperf-stat runs a short counting-mode PMU capture against a
// pid (or the calling process itself) and prints the resulting counter
// values, the way `perf stat` does. It is a thin wrapper over
// pmu.CountingDriver; CLI ergonomics beyond this are explicitly out of
// scope per spec.md §1.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mperf-go/mperf/internal/mlog"
	"github.com/mperf-go/mperf/pmu"
)

var log = mlog.New("mperf-stat")

func main() {
	counters := flag.String("counters", "cycles,instructions", "comma-separated counter names")
	pid := flag.Int("pid", 0, "pid to attach to (0 means the calling process)")
	duration := flag.Duration("duration", time.Second, "how long to count for")
	preferRaw := flag.Bool("prefer-raw-events", false, "open each architectural counter's vendor-specific raw alias when the host CPU family defines one")
	flag.Parse()

	list, err := parseCounters(*counters, *preferRaw)
	if err != nil {
		log.Fatal(err, "parsing -counters")
	}

	driver, err := pmu.NewCountingDriver(list, *pid)
	if err != nil {
		log.Fatal(err, "opening counting driver")
	}
	defer driver.Close()

	if err := driver.Reset(); err != nil {
		log.Fatal(err, "resetting counters")
	}
	if err := driver.Start(); err != nil {
		log.Fatal(err, "starting counters")
	}

	time.Sleep(*duration)

	if err := driver.Stop(); err != nil {
		log.Fatal(err, "stopping counters")
	}

	readings, err := driver.Read()
	if err != nil {
		log.Fatal(err, "reading counters")
	}

	printReadings(readings, *duration)
}

func parseCounters(s string, preferRaw bool) ([]pmu.Counter, error) {
	var out []pmu.Counter
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c, ok := pmu.ParseCounter(name)
		if !ok {
			return nil, fmt.Errorf("mperf-stat: unknown counter %q", name)
		}
		if preferRaw && c.RawName() == "" {
			c = c.PreferringRaw()
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mperf-stat: no counters requested")
	}
	return out, nil
}

func printReadings(readings []pmu.CounterReading, elapsed time.Duration) {
	fmt.Fprintf(os.Stdout, "# %s\n", elapsed)
	for _, r := range readings {
		confidence := 1.0
		if r.TimeEnabled > 0 {
			confidence = float64(r.TimeRunning) / float64(r.TimeEnabled)
		}
		fmt.Fprintf(os.Stdout, "%-24s %15d  (%.1f%% scheduled)\n", r.Counter, r.Value, confidence*100)
	}
}
