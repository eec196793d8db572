// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmem

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegionName(t *testing.T) string {
	return fmt.Sprintf("mperf_test_%d_%s", os.Getpid(), t.Name())
}

func TestRegionCreateOpenRoundTrip(t *testing.T) {
	name := testRegionName(t)

	w, err := Create(name, 64)
	require.NoError(t, err)
	defer w.Close()

	copy(w.Bytes(), []byte("hello shared world"))

	r, err := Open(name, 64)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, byte('h'), r.Bytes()[0])
	assert.Equal(t, "hello shared world", string(r.Bytes()[:len("hello shared world")]))
}

func TestRegionRejectsBadName(t *testing.T) {
	_, err := Create("../escape", 64)
	assert.Error(t, err)
}
