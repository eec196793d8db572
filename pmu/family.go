// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"github.com/pkg/errors"

	"github.com/mperf-go/mperf/internal/cpuid"
	"github.com/mperf-go/mperf/pmu/pmudata"
)

// HostFamily identifies the running CPU's pmudata family id. Unlike
// the original's raw CPUID leaf 1 decode, this works off the
// vendor/family/model triple cpuid.Host already extracted from
// /proc/cpuinfo, where the kernel has already folded the extended
// family/model nibbles in.
func HostFamily(info cpuid.Info) string {
	switch info.Vendor {
	case "GenuineIntel":
		switch {
		case info.Family == 6 && (info.Model == 0x4E || info.Model == 0x5E):
			return pmudata.IntelSkylake
		case info.Family == 6 && (info.Model == 0x3C || info.Model == 0x45 || info.Model == 0x46):
			return pmudata.IntelHaswell
		case info.Family == 6 && (info.Model == 0x3D || info.Model == 0x47):
			return pmudata.IntelBroadwell
		case info.Family == 6 && info.Model == 0x7E:
			return pmudata.IntelIceLake
		case info.Family == 6 && (info.Model == 0x97 || info.Model == 0x9A):
			return pmudata.IntelAlderLake
		case info.Family == 6 && (info.Model == 0xB7 || info.Model == 0xBA):
			return pmudata.IntelRaptorLake
		}
	case "AuthenticAMD":
		switch {
		case info.Family == 0x19 && info.Model <= 0x21:
			return pmudata.AMDZen3
		case info.Family == 0x19:
			return pmudata.AMDZen4
		case info.Family == 0x17:
			return pmudata.AMDZen2
		}
	}
	return pmudata.Unknown
}

// HostCounterFamily is a convenience wrapper that reads the host's CPU
// identity and resolves its pmudata.Family in one call.
func HostCounterFamily() (*pmudata.Family, error) {
	info, err := cpuid.Host()
	if err != nil {
		return nil, err
	}
	id := HostFamily(info)
	family, ok := pmudata.Find(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFamily, "CPU family %q", id)
	}
	return family, nil
}

// resolveFamily returns the host's pmudata.Family for use in resolving
// counters, the way NewCountingDriver and NewSamplingDriver need it.
// It only treats a host CPU family lookup failure as fatal when some
// requested counter actually needs family resolution (a Custom
// counter, or one built with PreferringRaw); a driver opening purely
// architectural counters must still work on a host cpuid can't
// identify.
func resolveFamily(counters []Counter) (*pmudata.Family, error) {
	needed := false
	for _, c := range counters {
		if c.RawName() != "" || c.PreferRaw() {
			needed = true
			break
		}
	}

	family, err := HostCounterFamily()
	if err != nil {
		if needed {
			return nil, err
		}
		return nil, nil
	}
	return family, nil
}
