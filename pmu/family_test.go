// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mperf-go/mperf/internal/cpuid"
	"github.com/mperf-go/mperf/pmu/pmudata"
)

func TestHostFamilySkylake(t *testing.T) {
	id := HostFamily(cpuid.Info{Vendor: "GenuineIntel", Family: 6, Model: 0x5E})
	assert.Equal(t, pmudata.IntelSkylake, id)
}

func TestHostFamilyZen3(t *testing.T) {
	id := HostFamily(cpuid.Info{Vendor: "AuthenticAMD", Family: 0x19, Model: 0x21})
	assert.Equal(t, pmudata.AMDZen3, id)
}

func TestHostFamilyUnknownVendor(t *testing.T) {
	id := HostFamily(cpuid.Info{Vendor: "BogusVendor"})
	assert.Equal(t, pmudata.Unknown, id)
}
