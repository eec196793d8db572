// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmem

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// ErrWouldBlock is returned by SendSync when the ring is full: the
// consumer has not kept pace with the producer.
var ErrWouldBlock = errors.New("shmem: ring is full")

// Ring is a single-producer/single-consumer, fixed-capacity byte-slot
// channel backed by a shared Region. Each slot holds up to slotSize
// bytes of one message, length-prefixed within the slot; a Semaphore
// counts how many slots hold unread messages, and a pair of counters
// (head, tail) give each side an independent, wraparound index into
// the slot array.
//
// Layout of the backing region: [semaphore: 8][head: 8][tail: 8][slots...].
type Ring struct {
	region   *Region
	sem      *Semaphore
	head     *uint64 // consumer-owned: next slot to read
	tail     *uint64 // producer-owned: next slot to write
	capacity uint64
	slotSize int
	slots    []byte
}

const ringHeaderSize = SemaphoreSize + 8 + 8

// RingSize returns the number of bytes a ring with capacity slots of
// slotSize bytes each requires, for callers sizing a Region up front.
func RingSize(capacity, slotSize int) int {
	return ringHeaderSize + capacity*(4+slotSize)
}

// CreateRing creates a new named ring with room for capacity messages
// of at most slotSize bytes.
func CreateRing(name string, capacity, slotSize int) (*Ring, error) {
	region, err := Create(name, RingSize(capacity, slotSize))
	if err != nil {
		return nil, err
	}
	return newRing(region, capacity, slotSize, true), nil
}

// OpenRing attaches to a ring a peer process already created with
// CreateRing. capacity and slotSize must match exactly.
func OpenRing(name string, capacity, slotSize int) (*Ring, error) {
	region, err := Open(name, RingSize(capacity, slotSize))
	if err != nil {
		return nil, err
	}
	return newRing(region, capacity, slotSize, false), nil
}

func newRing(region *Region, capacity, slotSize int, owner bool) *Ring {
	data := region.Bytes()

	var sem *Semaphore
	if owner {
		sem = NewSemaphore(data[0:8])
	} else {
		sem = OpenSemaphore(data[0:8])
	}

	head := (*uint64)(unsafe.Pointer(&data[8]))
	tail := (*uint64)(unsafe.Pointer(&data[16]))
	if owner {
		atomic.StoreUint64(head, 0)
		atomic.StoreUint64(tail, 0)
	}

	return &Ring{
		region:   region,
		sem:      sem,
		head:     head,
		tail:     tail,
		capacity: uint64(capacity),
		slotSize: slotSize,
		slots:    data[ringHeaderSize:],
	}
}

// Name returns the backing region's name.
func (r *Ring) Name() string { return r.region.Name() }

func (r *Ring) slot(index uint64) []byte {
	stride := 4 + r.slotSize
	off := (index % r.capacity) * uint64(stride)
	return r.slots[off : off+uint64(stride)]
}

// SendSync writes data into the next slot and signals the consumer.
// It returns ErrWouldBlock without writing anything if the ring has no
// free slots, i.e. the consumer is capacity slots behind.
func (r *Ring) SendSync(data []byte) error {
	if len(data) > r.slotSize {
		return errors.Errorf("shmem: message of %d bytes exceeds slot size %d", len(data), r.slotSize)
	}

	head := atomic.LoadUint64(r.head)
	tail := atomic.LoadUint64(r.tail)
	if tail-head >= r.capacity {
		return ErrWouldBlock
	}

	slot := r.slot(tail)
	binary.LittleEndian.PutUint32(slot[:4], uint32(len(data)))
	copy(slot[4:], data)

	atomic.StoreUint64(r.tail, tail+1)
	r.sem.Post()
	return nil
}

// RecvSync blocks until a message is available and returns a copy of
// it. The returned slice is safe to retain past the next Recv call.
func (r *Ring) RecvSync() []byte {
	r.sem.Wait()
	return r.take()
}

// Recv blocks until a message is available or ctx is done, polling
// the semaphore since the ring has no epoll-style wakeup primitive.
func (r *Ring) Recv(ctx context.Context) ([]byte, error) {
	for {
		if r.sem.TryWait() {
			return r.take(), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Microsecond):
		}
	}
}

func (r *Ring) take() []byte {
	head := atomic.LoadUint64(r.head)
	slot := r.slot(head)
	n := binary.LittleEndian.Uint32(slot[:4])
	out := make([]byte, n)
	copy(out, slot[4:4+n])
	atomic.StoreUint64(r.head, head+1)
	return out
}

// Close unmaps the ring's backing region.
func (r *Ring) Close() error {
	return r.region.Close()
}
