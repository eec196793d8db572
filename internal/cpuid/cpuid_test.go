// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostReadsProcCPUInfo(t *testing.T) {
	info, err := Host()
	require.NoError(t, err)
	assert.NotEmpty(t, info.Vendor)
}
