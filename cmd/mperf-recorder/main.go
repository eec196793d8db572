// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mperf-recorder drives one capture end to end: it opens the
// PMU sampling driver, optionally launches and instruments a target
// command for a roofline capture, and owns the dispatcher that turns
// both into a capture directory (events.bin, strings.json, info.json,
// proc_map.json). Post-processing that directory into perf.db is
// cmd/mperf-postprocess's job, kept separate per spec.md §1.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mperf-go/mperf/collector"
	"github.com/mperf-go/mperf/dispatcher"
	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/internal/cpuid"
	"github.com/mperf-go/mperf/internal/mlog"
	"github.com/mperf-go/mperf/pmu"
	"github.com/mperf-go/mperf/shmem"
)

var log = mlog.New("mperf-recorder")

func main() {
	output := flag.String("output", "", "capture directory to write (required)")
	scenarioFlag := flag.String("scenario", "snapshot", "capture scenario: snapshot or roofline")
	countersFlag := flag.String("counters", "cycles,instructions", "comma-separated PMU counters to sample")
	samplePeriod := flag.Uint64("sample-period", 1000000, "perf_event_open sample_period, in counter occurrences")
	pid := flag.Int("pid", 0, "pid to attach to (0 means the calling process); ignored in the roofline scenario, which attaches to the launched command")
	duration := flag.Duration("duration", 5*time.Second, "how long to record outside the roofline scenario, which records until the launched command exits")
	preferRaw := flag.Bool("prefer-raw-events", false, "open each architectural counter's vendor-specific raw alias when the host CPU family defines one")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "mperf-recorder: -output is required")
		os.Exit(2)
	}

	if err := run(*output, *scenarioFlag, *countersFlag, *samplePeriod, *pid, flag.Args(), *duration, *preferRaw); err != nil {
		writeErrorFile(*output, err)
		log.Fatal(err, "recording failed")
	}
}

func run(outputDir, scenarioFlag, countersFlag string, samplePeriod uint64, pid int, command []string, duration time.Duration, preferRaw bool) error {
	scenario, err := parseScenario(scenarioFlag)
	if err != nil {
		return err
	}
	list, err := parseCounters(countersFlag, preferRaw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("mperf-recorder: creating %s: %w", outputDir, err)
	}

	info, err := cpuid.Host()
	if err != nil {
		return fmt.Errorf("mperf-recorder: reading CPU info: %w", err)
	}

	var proc *exec.Cmd
	var ring *shmem.Ring
	driverPID := pid
	instPID := 0

	if scenario == event.ScenarioRoofline {
		if len(command) == 0 {
			return fmt.Errorf("mperf-recorder: roofline scenario requires a command to launch")
		}
		shmemName := fmt.Sprintf("mperf-%d", os.Getpid())
		ring, err = shmem.CreateRing(shmemName, collector.RingCapacity, collector.RingSlotSize)
		if err != nil {
			return fmt.Errorf("mperf-recorder: creating collector ring: %w", err)
		}
		defer ring.Close()

		proc = exec.Command(command[0], command[1:]...)
		proc.Env = append(os.Environ(),
			collector.EnvEnabled+"=1",
			collector.EnvShmemID+"="+shmemName,
			collector.EnvRooflineInstrument+"=1",
		)
		proc.Stdout, proc.Stderr = os.Stdout, os.Stderr
		if err := proc.Start(); err != nil {
			return fmt.Errorf("mperf-recorder: launching %s: %w", command[0], err)
		}
		driverPID = proc.Process.Pid
		instPID = proc.Process.Pid
	}

	reportedPerfPID := driverPID
	if driverPID == 0 {
		reportedPerfPID = os.Getpid()
	}

	recordInfo := &event.RecordInfo{
		Scenario: scenario,
		Info: event.ScenarioInfo{
			PerfPID:         uint32(reportedPerfPID),
			InstPID:         uint32(instPID),
			Command:         command,
			CPUModel:        info.ModelName,
			CPUVendor:       info.Vendor,
			EnabledCounters: counterNames(list),
		},
	}

	disp, jh, err := dispatcher.New(outputDir)
	if err != nil {
		return err
	}

	sampling, err := pmu.NewSamplingDriver(list, samplePeriod, driverPID)
	if err != nil {
		jh.Join()
		return fmt.Errorf("mperf-recorder: opening sampling driver: %w", err)
	}
	if err := sampling.Start(); err != nil {
		sampling.Close()
		jh.Join()
		return fmt.Errorf("mperf-recorder: starting sampling driver: %w", err)
	}

	procMaps := newProcMapCollector()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go pollLoop(ctx, &wg, sampling, disp, procMaps)

	if ring != nil {
		wg.Add(1)
		go ringConsumer(ctx, &wg, ring, disp)
	}

	if proc != nil {
		if err := proc.Wait(); err != nil {
			log.Warn().Err(err).Msg("instrumented command exited non-zero")
		}
		// Give the ring consumer a moment to drain events the collector
		// posted before the process exited; the ring has no "flush"
		// signal of its own.
		time.Sleep(50 * time.Millisecond)
	} else {
		time.Sleep(duration)
	}

	cancel()
	wg.Wait()

	sampling.Stop()
	sampling.Close()
	jh.Join()

	if err := writeRecordInfo(outputDir, recordInfo); err != nil {
		return err
	}
	if err := writeProcMaps(outputDir, procMaps.snapshot()); err != nil {
		return err
	}

	log.Info().Str("output", outputDir).Str("scenario", string(scenario)).Msg("capture complete")
	return nil
}

func parseScenario(s string) (event.Scenario, error) {
	switch event.Scenario(s) {
	case event.ScenarioSnapshot, event.ScenarioRoofline:
		return event.Scenario(s), nil
	}
	return "", fmt.Errorf("mperf-recorder: unknown scenario %q", s)
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
			return nil, fmt.Errorf("mperf-recorder: unknown counter %q", name)
		}
		if preferRaw && c.RawName() == "" {
			c = c.PreferringRaw()
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mperf-recorder: no counters requested")
	}
	return out, nil
}

func counterNames(counters []pmu.Counter) []string {
	names := make([]string, len(counters))
	for i, c := range counters {
		names[i] = c.Kind().String()
	}
	return names
}

// uidGenerator mints event.UIDs on behalf of sampled (pid, tid) pairs,
// mirroring collector.state.nextUID's per-origin monotonic counter
// scheme but scoped to the recorder process, which mints UIDs for
// threads it observes rather than its own.
type uidGenerator struct {
	mu       sync.Mutex
	counters map[uint64]uint64
}

func (g *uidGenerator) next(pid, tid uint32) event.UID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.counters == nil {
		g.counters = make(map[uint64]uint64)
	}
	key := uint64(pid)<<32 | uint64(tid)
	counter := g.counters[key]
	g.counters[key] = counter + 1
	return event.NewUID(pid, tid, counter)
}

func pollLoop(ctx context.Context, wg *sync.WaitGroup, sampling *pmu.SamplingDriver, disp *dispatcher.EventDispatcher, procMaps *procMapCollector) {
	defer wg.Done()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	var uidGen uidGenerator
	for {
		select {
		case <-ctx.Done():
			drainOnce(sampling, disp, procMaps, &uidGen)
			return
		case <-ticker.C:
			drainOnce(sampling, disp, procMaps, &uidGen)
		}
	}
}

// drainOnce polls every sampling ring once, grouping samples that land
// in the same Poll call and share an identical kernel timestamp into
// one correlation_id, per spec.md §8 scenario 3. Rings are independent
// per counter rather than one PERF_FORMAT_GROUP leader (see pmu.
// SamplingDriver), so this timestamp coincidence is the closest
// available proxy for "one physical sample group"; counters whose
// overflow periods never align simply get their own single-member
// group, which the post-processor's join handles the same way.
func drainOnce(sampling *pmu.SamplingDriver, disp *dispatcher.EventDispatcher, procMaps *procMapCollector, uidGen *uidGenerator) {
	batch := make(map[uint64]event.UID)

	err := sampling.Poll(func(c pmu.Counter, rec pmu.Record) {
		switch rec.Kind {
		case pmu.RecordSample:
			s := rec.Sample
			corr, ok := batch[s.Time]
			if !ok {
				corr = uidGen.next(s.PID, s.TID)
				batch[s.Time] = corr
			}

			callstack := make([]event.CallFrame, 0, len(s.Callchain)+1)
			callstack = append(callstack, event.FrameIP(s.IP))
			for _, ip := range s.Callchain {
				callstack = append(callstack, event.FrameIP(ip))
			}

			disp.PublishEvent(&event.Event{
				UniqueID:      uidGen.next(s.PID, s.TID),
				CorrelationID: corr,
				Kind:          c.Kind(),
				ThreadID:      s.TID,
				ProcessID:     s.PID,
				TimeEnabled:   s.TimeEnabled,
				TimeRunning:   s.TimeRunning,
				Value:         s.Value,
				Timestamp:     s.Time,
				Callstack:     callstack,
			})
		case pmu.RecordMmap:
			procMaps.add(rec.Mmap)
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("polling sampling rings")
	}
}

func ringConsumer(ctx context.Context, wg *sync.WaitGroup, ring *shmem.Ring, disp *dispatcher.EventDispatcher) {
	defer wg.Done()
	for {
		data, err := ring.Recv(ctx)
		if err != nil {
			return
		}
		e, err := event.Decode(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			log.Error().Err(err).Msg("decoding collector event, dropping")
			continue
		}
		disp.PublishEvent(e)
	}
}

// procMapCollector accumulates PERF_RECORD_MMAP entries by pid as the
// poll loop observes them, for proc_map.json.
type procMapCollector struct {
	mu    sync.Mutex
	byPID map[uint32]*event.ProcMap
}

func newProcMapCollector() *procMapCollector {
	return &procMapCollector{byPID: make(map[uint32]*event.ProcMap)}
}

func (c *procMapCollector) add(m pmu.Mmap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pm, ok := c.byPID[m.PID]
	if !ok {
		pm = &event.ProcMap{PID: m.PID}
		c.byPID[m.PID] = pm
	}
	pm.Entries = append(pm.Entries, event.ProcMapEntry{
		Filename: m.Filename,
		Address:  m.Address,
		Size:     m.Len,
	})
}

func (c *procMapCollector) snapshot() []event.ProcMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.ProcMap, 0, len(c.byPID))
	for _, pm := range c.byPID {
		out = append(out, *pm)
	}
	return out
}

func writeRecordInfo(dir string, info *event.RecordInfo) error {
	f, err := os.Create(filepath.Join(dir, "info.json"))
	if err != nil {
		return fmt.Errorf("mperf-recorder: creating info.json: %w", err)
	}
	defer f.Close()
	return event.WriteRecordInfo(f, info)
}

func writeProcMaps(dir string, maps []event.ProcMap) error {
	f, err := os.Create(filepath.Join(dir, "proc_map.json"))
	if err != nil {
		return fmt.Errorf("mperf-recorder: creating proc_map.json: %w", err)
	}
	defer f.Close()
	return event.WriteProcMaps(f, maps)
}

// errorReport is the error.json document written to a capture
// directory on a fatal error, per spec.md §6.
type errorReport struct {
	Error string `json:"error"`
}

func writeErrorFile(dir string, recordErr error) {
	if dir == "" {
		return
	}
	f, err := os.Create(filepath.Join(dir, "error.json"))
	if err != nil {
		log.Error().Err(err).Msg("creating error.json")
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(errorReport{Error: recordErr.Error()}); err != nil {
		log.Error().Err(err).Msg("writing error.json")
	}
}
