// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmem

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// SemaphoreSize is the number of bytes of a Region a Semaphore
// occupies. Callers composing a Semaphore with other shared state in
// one Region (as Ring does) must offset their own data past it.
const SemaphoreSize = 8

// Semaphore is a counting semaphore stored in the first 8 bytes of a
// shared Region. It has no kernel-assisted blocking (x/sys/unix has no
// sem_init equivalent either), so Wait spins with a bounded backoff
// instead of sleeping on a futex.
type Semaphore struct {
	word *uint64
}

// NewSemaphore wraps the 8 bytes at the start of data as a semaphore,
// initializing its count to zero. Only the owning side of a region
// should do this.
func NewSemaphore(data []byte) *Semaphore {
	s := &Semaphore{word: (*uint64)(unsafe.Pointer(&data[0]))}
	atomic.StoreUint64(s.word, 0)
	return s
}

// OpenSemaphore wraps the 8 bytes at the start of data as a semaphore
// a peer has already initialized.
func OpenSemaphore(data []byte) *Semaphore {
	return &Semaphore{word: (*uint64)(unsafe.Pointer(&data[0]))}
}

// Post increments the semaphore's count, releasing one Wait.
func (s *Semaphore) Post() {
	atomic.AddUint64(s.word, 1)
}

// TryWait decrements the count and returns true if it was nonzero, or
// returns false immediately without blocking if it was zero.
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadUint64(s.word)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(s.word, v, v-1) {
			return true
		}
	}
}

// Wait blocks until the count is nonzero, then decrements it.
func (s *Semaphore) Wait() {
	spins := 0
	for !s.TryWait() {
		spins++
		if spins < 1000 {
			continue
		}
		time.Sleep(time.Microsecond)
	}
}

// Count returns the semaphore's current value, for diagnostics.
func (s *Semaphore) Count() uint64 {
	return atomic.LoadUint64(s.word)
}
