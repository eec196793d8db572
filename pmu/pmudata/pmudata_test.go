// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmudata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSkylake(t *testing.T) {
	f, ok := Find("skylake")
	require.True(t, ok)
	assert.Equal(t, "GenuineIntel", f.Vendor)

	e, ok := f.Lookup("LONGEST_LAT_CACHE.MISS")
	require.True(t, ok)
	assert.Equal(t, uint64(0x412E), e.Code)
}

func TestLookupByAlias(t *testing.T) {
	f, ok := Find("skylake")
	require.True(t, ok)

	e, ok := f.Lookup("llc_misses")
	require.True(t, ok)
	assert.Equal(t, "LONGEST_LAT_CACHE.MISS", e.Name)
}

func TestFindUnknownFamilyID(t *testing.T) {
	_, ok := Find("not_a_real_family")
	assert.False(t, ok)
}

func TestParseHexRejectsMissingPrefix(t *testing.T) {
	_, err := parseHex("412E")
	assert.Error(t, err)
}
