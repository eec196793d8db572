// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmem

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRingName(t *testing.T) string {
	return fmt.Sprintf("mperf_test_ring_%d_%s", os.Getpid(), t.Name())
}

func TestRingSendRecvSync(t *testing.T) {
	name := testRingName(t)

	tx, err := CreateRing(name, 4, 32)
	require.NoError(t, err)
	defer tx.Close()

	rx, err := OpenRing(name, 4, 32)
	require.NoError(t, err)
	defer rx.Close()

	require.NoError(t, tx.SendSync([]byte("frame one")))
	require.NoError(t, tx.SendSync([]byte("frame two")))

	assert.Equal(t, "frame one", string(rx.RecvSync()))
	assert.Equal(t, "frame two", string(rx.RecvSync()))
}

func TestRingFullReturnsWouldBlock(t *testing.T) {
	name := testRingName(t)

	tx, err := CreateRing(name, 1, 8)
	require.NoError(t, err)
	defer tx.Close()

	require.NoError(t, tx.SendSync([]byte("one")))
	assert.ErrorIs(t, tx.SendSync([]byte("two")), ErrWouldBlock)
}

func TestRingCapacityOneBoundary(t *testing.T) {
	name := testRingName(t)

	tx, err := CreateRing(name, 1, 8)
	require.NoError(t, err)
	defer tx.Close()
	rx, err := OpenRing(name, 1, 8)
	require.NoError(t, err)
	defer rx.Close()

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("m%d", i)
		require.NoError(t, tx.SendSync([]byte(msg)))
		assert.ErrorIs(t, tx.SendSync([]byte("overflow")), ErrWouldBlock)
		assert.Equal(t, msg, string(rx.RecvSync()))
	}
}

func TestRingRejectsOversizeMessage(t *testing.T) {
	name := testRingName(t)

	tx, err := CreateRing(name, 2, 4)
	require.NoError(t, err)
	defer tx.Close()

	err = tx.SendSync([]byte("way too long for four bytes"))
	assert.Error(t, err)
}

func TestRingRecvRespectsContextCancellation(t *testing.T) {
	name := testRingName(t)

	rx, err := CreateRing(name, 2, 8)
	require.NoError(t, err)
	defer rx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRingAsyncRecvWakesOnSend(t *testing.T) {
	name := testRingName(t)

	tx, err := CreateRing(name, 2, 8)
	require.NoError(t, err)
	defer tx.Close()
	rx, err := OpenRing(name, 2, 8)
	require.NoError(t, err)
	defer rx.Close()

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = tx.SendSync([]byte("async"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "async", string(got))
}
