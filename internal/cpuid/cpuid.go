// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpuid identifies the host CPU family so the pmu package can
// pick a matching counter-name table out of pmudata. golang.org/x/sys/cpu
// exposes feature bits (AVX, AVX512, ...) but not the raw vendor/family/
// model triple the x86 PMU event tables are keyed on, so that triple is
// read from /proc/cpuinfo, the same source every Linux monitoring agent
// in this position uses.
package cpuid

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// Info describes the identifying fields of the host CPU.
type Info struct {
	Vendor    string // e.g. "GenuineIntel", "AuthenticAMD"
	Family    int    // "cpu family" in /proc/cpuinfo
	Model     int    // "model" in /proc/cpuinfo
	Stepping  int
	ModelName string
	HasAVX2   bool
	HasAVX512 bool
}

// Host reads /proc/cpuinfo for the first logical CPU's identifying
// fields, augmented with the feature bits x/sys/cpu already detected
// at process start.
func Host() (Info, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return Info{}, errors.Wrap(err, "cpuid: open /proc/cpuinfo")
	}
	defer f.Close()

	info := Info{
		HasAVX2:   cpu.X86.HasAVX2,
		HasAVX512: cpu.X86.HasAVX512F,
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			// end of the first processor's block
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "vendor_id":
			info.Vendor = value
		case "model name":
			info.ModelName = value
		case "cpu family":
			info.Family, _ = strconv.Atoi(value)
		case "model":
			info.Model, _ = strconv.Atoi(value)
		case "stepping":
			info.Stepping, _ = strconv.Atoi(value)
		}
	}
	if err := sc.Err(); err != nil {
		return Info{}, errors.Wrap(err, "cpuid: reading /proc/cpuinfo")
	}

	if info.Vendor == "" {
		return Info{}, errors.New("cpuid: /proc/cpuinfo has no vendor_id field")
	}
	return info, nil
}
