// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSemaphorePostWait(t *testing.T) {
	buf := make([]byte, SemaphoreSize)
	sem := NewSemaphore(buf)

	assert.False(t, sem.TryWait())

	sem.Post()
	sem.Post()
	assert.Equal(t, uint64(2), sem.Count())

	assert.True(t, sem.TryWait())
	assert.True(t, sem.TryWait())
	assert.False(t, sem.TryWait())
}

func TestSemaphoreOpenSharesState(t *testing.T) {
	buf := make([]byte, SemaphoreSize)
	owner := NewSemaphore(buf)
	peer := OpenSemaphore(buf)

	owner.Post()
	assert.True(t, peer.TryWait())
}

func TestSemaphoreWaitBlocksUntilPost(t *testing.T) {
	buf := make([]byte, SemaphoreSize)
	sem := NewSemaphore(buf)

	done := make(chan struct{})
	go func() {
		sem.Wait()
		close(done)
	}()

	sem.Post()
	<-done
}
