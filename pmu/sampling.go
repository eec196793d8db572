// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Record is a decoded PERF_RECORD_* entry pulled off a sampling ring.
// It is a tagged union: exactly one of Sample or Mmap is meaningful,
// selected by Kind.
type Record struct {
	Kind RecordKind
	Sample
	Mmap
}

// RecordKind discriminates a Record's payload.
type RecordKind uint8

const (
	RecordSample RecordKind = iota
	RecordMmap
)

// Sample is a PERF_RECORD_SAMPLE: one counter overflow, with the
// instruction pointer and call stack active at that moment.
type Sample struct {
	IP          uint64
	PID, TID    uint32
	CPU         uint32
	Time        uint64
	TimeEnabled uint64
	TimeRunning uint64
	Value       uint64
	Callchain   []uint64
}

// Mmap is a PERF_RECORD_MMAP: a process mapped a new region, the
// information event.ProcMap entries are built from.
type Mmap struct {
	PID      uint32
	Address  uint64
	Len      uint64
	PageOff  uint64
	Filename string
}

// Callchain boundary markers, per include/uapi/linux/perf_event.h's
// perf_callchain_context enum: the kernel interleaves one of these
// into PERF_SAMPLE_CALLCHAIN whenever the IP source switches domains.
// Excluding kernel/hv samples (as mperf always does) still leaves the
// PERF_CONTEXT_USER marker immediately before the first real frame.
const (
	callchainHV          = 0xffffffffffffffe0
	callchainKernel      = 0xffffffffffffff80
	callchainUser        = 0xfffffffffffffe00
	callchainGuest       = 0xfffffffffffff800
	callchainGuestKernel = 0xfffffffffffff780
	callchainGuestUser   = 0xfffffffffffff600
)

func isCallchainMarker(ip uint64) bool {
	switch ip {
	case callchainHV, callchainKernel, callchainUser, callchainGuest, callchainGuestKernel, callchainGuestUser:
		return true
	}
	return false
}

// mmapPages is the number of data pages in each per-counter ring,
// rounded up to the next power of two as perf_event_open requires.
const mmapPages = 64

// Offsets of data_head/data_tail within struct perf_event_mmap_page,
// per include/uapi/linux/perf_event.h; the kernel pads the rest of the
// control page to 1024 bytes regardless of field layout changes.
const (
	mmapPageDataHeadOffset = 0x400
	mmapPageDataTailOffset = 0x408
)

// SamplingDriver owns one perf_event_open ring per counter and decodes
// PERF_RECORD_SAMPLE/PERF_RECORD_MMAP entries out of it.
type SamplingDriver struct {
	rings []*samplingRing
}

type samplingRing struct {
	counter  Counter
	fd       int
	mmap     []byte
	dataHead *uint64
	dataTail *uint64
	data     []byte
}

// NewSamplingDriver opens one sampling-mode counter per entry in
// counters, each triggering a sample every samplePeriod occurrences,
// restricted to pid if nonzero.
func NewSamplingDriver(counters []Counter, samplePeriod uint64, pid int) (*SamplingDriver, error) {
	family, err := resolveFamily(counters)
	if err != nil {
		return nil, errors.Wrap(err, "resolving host CPU family")
	}
	counters = WithLeaderEvent(counters, family)

	pageSize := os.Getpagesize()
	mmapSize := (1 + mmapPages) * pageSize

	var rings []*samplingRing
	for _, c := range counters {
		typ, config, err := resolveCounter(c, family)
		if err != nil {
			closeRings(rings)
			return nil, err
		}

		attr := &perfEventAttr{
			Type:           typ,
			Config:         config,
			SamplePeriod:   samplePeriod,
			SampleType:     sampleIP | sampleTID | sampleTime | sampleID | sampleCPU | sampleRead | sampleCallchain,
			ReadFormat:     formatTotalTimeEnabled | formatTotalTimeRunning,
			Flags:          attrFlagExcludeKernel | attrFlagExcludeHV | attrFlagInherit,
			SampleMaxStack: MaxCallstackFrames,
		}
		if pid > 0 {
			attr.Flags |= attrFlagEnableOnExec
		} else {
			attr.Flags |= attrFlagDisabled
		}

		fd, err := perfEventOpen(attr, pid, -1, -1, 0)
		if err != nil {
			closeRings(rings)
			return nil, errors.Wrapf(err, "opening sampling counter %s", c)
		}

		mm, err := unix.Mmap(fd, 0, mmapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			unix.Close(fd)
			closeRings(rings)
			return nil, errors.Wrapf(err, "mmapping ring for counter %s", c)
		}

		rings = append(rings, &samplingRing{
			counter:  c,
			fd:       fd,
			mmap:     mm,
			dataHead: (*uint64)(unsafe.Pointer(&mm[mmapPageDataHeadOffset])),
			dataTail: (*uint64)(unsafe.Pointer(&mm[mmapPageDataTailOffset])),
			data:     mm[pageSize:],
		})
	}

	return &SamplingDriver{rings: rings}, nil
}

func closeRings(rings []*samplingRing) {
	for _, r := range rings {
		unix.Munmap(r.mmap)
		unix.Close(r.fd)
	}
}

// MaxCallstackFrames bounds how deep the kernel unwinds a sampled
// call stack, matching event.MaxCallstack.
const MaxCallstackFrames = 32

// Start enables every counter's ring.
func (d *SamplingDriver) Start() error {
	for _, r := range d.rings {
		if err := ioctlFD(r.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
			return err
		}
	}
	return nil
}

// Stop disables every counter's ring.
func (d *SamplingDriver) Stop() error {
	for _, r := range d.rings {
		if err := ioctlFD(r.fd, unix.PERF_EVENT_IOC_DISABLE, 0); err != nil {
			return err
		}
	}
	return nil
}

// Close unmaps and closes every ring.
func (d *SamplingDriver) Close() error {
	closeRings(d.rings)
	return nil
}

// Poll drains every ready ring and invokes fn for each decoded Record,
// in FIFO order per-ring. It does not block; callers typically call it
// on a timer or after an epoll/ppoll wakeup on the counters' fds.
func (d *SamplingDriver) Poll(fn func(Counter, Record)) error {
	for _, r := range d.rings {
		if err := r.drain(fn); err != nil {
			return errors.Wrapf(err, "draining ring for counter %s", r.counter)
		}
	}
	return nil
}

func (r *samplingRing) drain(fn func(Counter, Record)) error {
	head := atomic.LoadUint64(r.dataHead)
	tail := atomic.LoadUint64(r.dataTail)

	for tail < head {
		hdrBuf := r.read(tail, 8)
		typ := binary.LittleEndian.Uint32(hdrBuf[0:4])
		recSize := uint64(binary.LittleEndian.Uint16(hdrBuf[6:8]))
		if recSize < 8 {
			return errors.Errorf("pmu: malformed ring record (size %d)", recSize)
		}

		body := r.read(tail+8, recSize-8)

		switch typ {
		case perfRecordSample:
			rec, err := decodeSample(body)
			if err == nil {
				fn(r.counter, rec)
			}
		case perfRecordMmap:
			rec, err := decodeMmap(body)
			if err == nil {
				fn(r.counter, rec)
			}
		}

		tail += recSize
	}
	atomic.StoreUint64(r.dataTail, tail)
	return nil
}

func (r *samplingRing) read(offset, n uint64) []byte {
	size := uint64(len(r.data))
	start := offset % size
	out := make([]byte, n)
	if start+n <= size {
		copy(out, r.data[start:start+n])
	} else {
		first := size - start
		copy(out, r.data[start:])
		copy(out[first:], r.data[:n-first])
	}
	return out
}

const (
	perfRecordMmap   = 1
	perfRecordSample = 9
)

func decodeSample(body []byte) (Record, error) {
	if len(body) < 8+4+4+8+8+4+4+8+8+8+8 {
		return Record{}, errors.New("pmu: truncated sample record")
	}
	d := &reader{buf: body}
	ip := d.u64()
	pid := d.u32()
	tid := d.u32()
	t := d.u64()
	_ = d.u64() // id
	cpu := d.u32()
	_ = d.u32() // reserved
	// PERF_SAMPLE_READ with a single, non-grouped counter and
	// FORMAT_TOTAL_TIME_ENABLED|RUNNING: value, time_enabled, time_running.
	value := d.u64()
	timeEnabled := d.u64()
	timeRunning := d.u64()
	nrChain := d.u64()
	chain := make([]uint64, 0, nrChain)
	droppedLeaf := false
	for i := uint64(0); i < nrChain; i++ {
		frame := d.u64()
		if isCallchainMarker(frame) {
			continue
		}
		// The first real frame after any context marker mirrors ip
		// (spec.md §4.4/§9: "the kernel's first callchain entry
		// duplicates ip; drop it to avoid double-counting the leaf
		// function").
		if !droppedLeaf {
			droppedLeaf = true
			continue
		}
		chain = append(chain, frame)
	}
	if d.err != nil {
		return Record{}, d.err
	}
	return Record{
		Kind: RecordSample,
		Sample: Sample{
			IP: ip, PID: pid, TID: tid, CPU: cpu,
			Time: t, TimeEnabled: timeEnabled, TimeRunning: timeRunning,
			Value: value, Callchain: chain,
		},
	}, nil
}

func decodeMmap(body []byte) (Record, error) {
	if len(body) < 4+4+8+8+8 {
		return Record{}, errors.New("pmu: truncated mmap record")
	}
	d := &reader{buf: body}
	pid := d.u32()
	_ = d.u32() // tid
	addr := d.u64()
	length := d.u64()
	pgoff := d.u64()
	filename := cString(d.rest())
	if d.err != nil {
		return Record{}, d.err
	}
	return Record{
		Kind: RecordMmap,
		Mmap: Mmap{PID: pid, Address: addr, Len: length, PageOff: pgoff, Filename: filename},
	}, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) need(n int) []byte {
	if r.err != nil || len(r.buf) < n {
		if r.err == nil {
			r.err = errors.New("pmu: short record")
		}
		return make([]byte, n)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u32() uint32 { return binary.LittleEndian.Uint32(r.need(4)) }
func (r *reader) u64() uint64 { return binary.LittleEndian.Uint64(r.need(8)) }
func (r *reader) rest() []byte {
	out := r.buf
	r.buf = nil
	return out
}

func ioctlFD(fd int, req, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errors.Wrap(errno, "pmu: ring ioctl")
	}
	return nil
}
