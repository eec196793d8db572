// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"encoding/binary"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mperf-go/mperf/pmu/pmudata"
)

// CountingDriver multiplexes requested counters across one or more
// perf_event groups and reads each back with PERF_FORMAT_GROUP, so a
// single read syscall per group returns every counter's value
// alongside the enabled/running time the kernel scheduled it for.
// Counters beyond one group's capacity are split across multiple
// groups per PlanGroup's policy (spec.md §4.3).
type CountingDriver struct {
	groups []*countingGroup
}

type countingGroup struct {
	counters []Counter
	fds      []int // fds[0] is the group leader
}

// CounterReading is one counter's value from a single Read call, plus
// the scheduling fractions needed to compute event.Event's confidence
// (time_running / time_enabled).
type CounterReading struct {
	Counter     Counter
	Value       uint64
	TimeEnabled uint64
	TimeRunning uint64
}

// NewCountingDriver opens counters for pid (0 meaning: the calling
// process/thread), each with cpu -1 so it counts on any CPU. It
// resolves the host's CPU family (for any Custom or PreferringRaw
// counter) and plans the requested counters into one or more
// perf_event groups before opening them.
func NewCountingDriver(counters []Counter, pid int) (*CountingDriver, error) {
	if len(counters) == 0 {
		return nil, errors.New("pmu: no counters requested")
	}

	family, err := resolveFamily(counters)
	if err != nil {
		return nil, errors.Wrap(err, "resolving host CPU family")
	}

	plan := PlanGroup(counters, family)
	groups := make([]*countingGroup, 0, len(plan))
	for _, gc := range plan {
		g, err := openCountingGroup(gc, family, pid)
		if err != nil {
			for _, opened := range groups {
				closeAll(opened.fds)
			}
			return nil, err
		}
		groups = append(groups, g)
	}

	return &CountingDriver{groups: groups}, nil
}

func openCountingGroup(counters []Counter, family *pmudata.Family, pid int) (*countingGroup, error) {
	fds := make([]int, 0, len(counters))
	for i, c := range counters {
		typ, config, err := resolveCounter(c, family)
		if err != nil {
			closeAll(fds)
			return nil, err
		}

		attr := &perfEventAttr{
			Type:       typ,
			Config:     config,
			ReadFormat: formatGroup | formatID | formatTotalTimeEnabled | formatTotalTimeRunning,
			Flags:      attrFlagDisabled | attrFlagExcludeKernel | attrFlagExcludeHV | attrFlagInherit,
		}
		if pid > 0 {
			attr.Flags |= attrFlagEnableOnExec
		}

		groupFD := -1
		if i > 0 {
			groupFD = fds[0]
		}

		fd, err := perfEventOpen(attr, pid, -1, groupFD, 0)
		if err != nil {
			closeAll(fds)
			return nil, errors.Wrapf(err, "opening counter %s", c)
		}
		fds = append(fds, fd)
	}
	return &countingGroup{counters: counters, fds: fds}, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

// Start enables every group via its leader's fd.
func (d *CountingDriver) Start() error { return d.each(unix.PERF_EVENT_IOC_ENABLE) }

// Stop disables every group.
func (d *CountingDriver) Stop() error { return d.each(unix.PERF_EVENT_IOC_DISABLE) }

// Reset zeroes every group's counters without changing whether
// they're enabled.
func (d *CountingDriver) Reset() error { return d.each(unix.PERF_EVENT_IOC_RESET) }

func (d *CountingDriver) each(req uintptr) error {
	for _, g := range d.groups {
		if err := g.ioctl(req, unix.PERF_IOC_FLAG_GROUP); err != nil {
			return err
		}
	}
	return nil
}

func (g *countingGroup) ioctl(req, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(g.fds[0]), req, arg)
	if errno != 0 {
		return errors.Wrap(errno, "pmu: counter group ioctl")
	}
	return nil
}

// groupReadHeader is the PERF_FORMAT_GROUP|ID|TOTAL_TIME_ENABLED|
// TOTAL_TIME_RUNNING layout: a fixed header followed by one
// (value, id) pair per counter in the group.
type groupReadHeader struct {
	Nr          uint64
	TimeEnabled uint64
	TimeRunning uint64
}

// Read reads every group with one syscall each, returning readings in
// the order NewCountingDriver's plan laid the groups out (Cycles and
// Instructions appear once per group they lead).
func (d *CountingDriver) Read() ([]CounterReading, error) {
	var readings []CounterReading
	for _, g := range d.groups {
		rs, err := g.read()
		if err != nil {
			return nil, err
		}
		readings = append(readings, rs...)
	}
	return readings, nil
}

func (g *countingGroup) read() ([]CounterReading, error) {
	n := len(g.fds)
	size := int(unsafe.Sizeof(groupReadHeader{})) + n*16
	buf := make([]byte, size)

	if _, err := unix.Read(g.fds[0], buf); err != nil {
		return nil, errors.Wrap(err, "pmu: reading counter group")
	}

	hdr := (*groupReadHeader)(unsafe.Pointer(&buf[0]))
	readings := make([]CounterReading, n)
	body := buf[unsafe.Sizeof(groupReadHeader{}):]
	for i := range g.fds {
		value := binary.LittleEndian.Uint64(body[i*16:])
		readings[i] = CounterReading{
			Counter:     g.counters[i],
			Value:       value,
			TimeEnabled: hdr.TimeEnabled,
			TimeRunning: hdr.TimeRunning,
		}
	}
	return readings, nil
}

// Close releases every group's file descriptors.
func (d *CountingDriver) Close() error {
	for _, g := range d.groups {
		closeAll(g.fds)
	}
	return nil
}
