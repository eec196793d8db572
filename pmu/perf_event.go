// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"syscall"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/mperf-go/mperf/pmu/pmudata"
)

// perfEventAttr mirrors struct perf_event_attr from
// include/uapi/linux/perf_event.h, trimmed to the fields mperf sets.
// Field layout must match the kernel ABI exactly.
type perfEventAttr struct {
	Type        uint32
	Size        uint32
	Config      uint64
	SamplePeriod uint64
	SampleType  uint64
	ReadFormat  uint64
	Flags       uint64
	WakeupEvents uint32
	BPType      uint32
	BPAddr      uint64
	BPLen       uint64
	BranchSampleType uint64
	SampleRegsUser   uint64
	SampleStackUser  uint32
	ClockID          int32
	SampleRegsIntr   uint64
	AuxWatermark     uint32
	SampleMaxStack   uint16
	_                uint16
}

// perf_type_id values.
const (
	perfTypeHardware = 0
	perfTypeSoftware = 1
	perfTypeRaw      = 4
)

// perf_hw_id values (PERF_TYPE_HARDWARE configs).
const (
	perfCountHWCPUCycles            = 0
	perfCountHWInstructions         = 1
	perfCountHWCacheReferences      = 2
	perfCountHWCacheMisses          = 3
	perfCountHWBranchInstructions   = 4
	perfCountHWBranchMisses         = 5
	perfCountHWStalledCyclesFrontend = 7
	perfCountHWStalledCyclesBackend  = 8
)

// perf_event_attr flag bits this package sets.
const (
	attrFlagDisabled      = 1 << 0
	attrFlagInherit       = 1 << 1
	attrFlagExcludeKernel = 1 << 5
	attrFlagExcludeHV     = 1 << 6
	attrFlagEnableOnExec  = 1 << 12
)

// read_format bits.
const (
	formatTotalTimeEnabled = 1 << 0
	formatTotalTimeRunning = 1 << 1
	formatID               = 1 << 2
	formatGroup            = 1 << 3
)

// sample_type bits used by the sampling driver.
const (
	sampleIP        = 1 << 0
	sampleTID       = 1 << 1
	sampleTime      = 1 << 2
	sampleID        = 1 << 6
	sampleCPU       = 1 << 7
	sampleRead      = 1 << 4
	sampleCallchain = 1 << 5
)

// perf_event_open flags.
const peoFlagCloexec = 1 << 3

// hardwareConfig returns the PERF_TYPE_HARDWARE config value for the
// eight architectural counters mperf knows about natively, regardless
// of CPU family.
func hardwareConfig(c Counter) (typ uint32, config uint64, ok bool) {
	switch c.id {
	case counterCycles:
		return perfTypeHardware, perfCountHWCPUCycles, true
	case counterInstructions:
		return perfTypeHardware, perfCountHWInstructions, true
	case counterLLCReferences:
		return perfTypeHardware, perfCountHWCacheReferences, true
	case counterLLCMisses:
		return perfTypeHardware, perfCountHWCacheMisses, true
	case counterBranchInstructions:
		return perfTypeHardware, perfCountHWBranchInstructions, true
	case counterBranchMisses:
		return perfTypeHardware, perfCountHWBranchMisses, true
	case counterStalledCyclesFrontend:
		return perfTypeHardware, perfCountHWStalledCyclesFrontend, true
	case counterStalledCyclesBackend:
		return perfTypeHardware, perfCountHWStalledCyclesBackend, true
	default:
		return 0, 0, false
	}
}

// resolveCounter picks c's perf_event_open type/config, consulting
// family (the host CPU's raw event table, or nil if it couldn't be
// determined) in spec.md §4.3 order: a Custom counter resolves by
// name through family; an architectural counter built with
// PreferringRaw tries family's alias for it first; anything else (or
// any family miss) falls back to hardwareConfig.
func resolveCounter(c Counter, family *pmudata.Family) (typ uint32, config uint64, err error) {
	if name := c.RawName(); name != "" {
		if family == nil {
			return 0, 0, errors.Wrapf(ErrUnknownFamily, "resolving raw counter %q", name)
		}
		ev, ok := family.Lookup(name)
		if !ok {
			return 0, 0, errors.Wrapf(ErrUnsupportedCounter, "raw counter %q not in family %s", name, family.FamilyID)
		}
		return perfTypeRaw, ev.Code, nil
	}

	if c.PreferRaw() && family != nil {
		if ev, ok := family.Lookup(c.String()); ok {
			return perfTypeRaw, ev.Code, nil
		}
	}

	typ, config, ok := hardwareConfig(c)
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnsupportedCounter, "counter %s", c)
	}
	return typ, config, nil
}

// perfEventOpen wraps the perf_event_open(2) syscall, which
// golang.org/x/sys/unix does not export (it's arch-specific and has
// no stable syscall number table in that package).
func perfEventOpen(attr *perfEventAttr, pid, cpu, groupFD int, flags uint) (int, error) {
	attr.Size = uint32(unsafe.Sizeof(*attr))
	flags |= peoFlagCloexec

	fd, _, errno := syscall.Syscall6(
		sysPerfEventOpen,
		uintptr(unsafe.Pointer(attr)),
		uintptr(pid),
		uintptr(cpu),
		uintptr(groupFD),
		uintptr(flags),
		0,
	)
	if errno != 0 {
		return -1, diagnoseErrno(errno)
	}
	return int(fd), nil
}

// diagnoseErrno turns a bare errno from perf_event_open into the
// specific explanation the man page gives for it, the way a caller
// debugging a failed capture actually needs.
func diagnoseErrno(errno syscall.Errno) error {
	msgs := map[syscall.Errno]string{
		syscall.E2BIG:      "perf_event_attr size is incorrect for this kernel",
		syscall.EACCES:     "insufficient capabilities to create this event",
		syscall.EBUSY:      "another event already has exclusive access to the PMU",
		syscall.EFAULT:     "attr points to an invalid address",
		syscall.EINVAL:     "the specified event is invalid (bad config or unsupported sample_type)",
		syscall.EMFILE:     "process has reached its limit of open perf events",
		syscall.ENODEV:     "this CPU does not support the requested event type",
		syscall.ENOENT:     "the event's type field is not valid",
		syscall.ENOSPC:     "hardware breakpoint capacity exhausted",
		syscall.ENOSYS:     "sample type not supported by this kernel",
		syscall.EOPNOTSUPP: "event not supported by this hardware",
		syscall.EPERM:      "insufficient capability for exclusive PMU access",
		syscall.ESRCH:      "target pid does not exist",
	}
	if msg, ok := msgs[errno]; ok {
		return errors.Wrap(errno, msg)
	}
	return errors.Wrap(errno, "perf_event_open failed")
}
