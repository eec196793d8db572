// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbolize resolves an instruction pointer sampled in some
// process into a (function name, file name, line) triple, using the
// process's captured event.ProcMap to find which mapped file the IP
// falls in and that file's DWARF line table to resolve the offset.
//
// It is adapted from perfsession.Symbolize: the same ELF+DWARF walk,
// generalized from perf.data's RecordMmap bookkeeping to mperf's own
// event.ProcMap entries, and demangles C++/Rust symbol names before
// returning them since mperf's roofline targets are as often
// C/C++/Rust as Go.
package symbolize

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/internal/mlog"
)

var log = mlog.New("symbolize")

// UnknownFunc and UnknownFile make up the fallback triple (with line 0)
// for an IP that no mapping covers. Matches spec.md §4.6's "unknown
// addresses map to [unknown], unknown, 0". An IP inside a mapping whose
// file has no usable DWARF info, or whose offset no function entry
// covers, gets UnknownFunc with the mapped file's name instead.
const (
	UnknownFunc = "[unknown]"
	UnknownFile = "unknown"
)

// Resolved is the (func, file, line) triple symbolize.Resolver.Resolve
// produces for one IP.
type Resolved struct {
	FuncName string
	FileName string
	Line     uint32
}

func unknown() Resolved { return Resolved{FuncName: UnknownFunc, FileName: UnknownFile} }

// Resolver symbolizes IPs against a capture's proc_map.json, caching
// one parsed ELF+DWARF table per backing filename so repeated samples
// into the same shared object don't reopen or re-walk it.
type Resolver struct {
	maps *event.ProcMapSet

	mu     sync.Mutex
	tables map[string]*objectTable // filename -> parsed DWARF tables, nil if unusable
}

// NewResolver builds a Resolver over a capture's parsed proc_map.json.
func NewResolver(maps *event.ProcMapSet) *Resolver {
	return &Resolver{maps: maps, tables: make(map[string]*objectTable)}
}

// Resolve maps ip, observed in pid, to a source location. It always
// returns a usable Resolved value: on any failure to map or
// symbolize, it falls back to UnknownFunc (and, when no mapping covers
// ip, UnknownFile) rather than returning an error, since
// an unresolvable sample is expected input (spec.md §4.6 scenario 4),
// not a corrupt-input error.
func (r *Resolver) Resolve(pid uint32, ip uint64) Resolved {
	procMap, ok := r.maps.Lookup(pid)
	if !ok {
		return unknown()
	}
	entry, ok := procMap.Find(ip)
	if !ok {
		return unknown()
	}

	tab := r.tableFor(entry.Filename)
	if tab == nil {
		return Resolved{FuncName: UnknownFunc, FileName: entry.Filename}
	}

	offset := ip - entry.Address
	fn, line := tab.find(offset)
	res := Resolved{FileName: entry.Filename}
	if fn == "" {
		res.FuncName = UnknownFunc
	} else {
		res.FuncName = demangle.Filter(fn)
	}
	if line != nil {
		res.Line = uint32(line.Line)
		if line.File != nil && line.File.Name != "" {
			res.FileName = line.File.Name
		}
	}
	return res
}

func (r *Resolver) tableFor(filename string) *objectTable {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tab, ok := r.tables[filename]; ok {
		return tab
	}
	tab, err := newObjectTable(filename)
	if err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("symbolize: no usable debug info")
	}
	r.tables[filename] = tab
	return tab
}

// objectTable is one ELF/DWARF object's sorted function-range and
// line tables, enough to answer "what function and line is this
// file-relative offset in".
type objectTable struct {
	functab []funcRange
	linetab []dwarf.LineEntry
}

type funcRange struct {
	name          string
	lowpc, highpc uint64
}

func newObjectTable(filename string) (*objectTable, error) {
	elff, err := elf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening ELF: %w", err)
	}
	defer elff.Close()

	if elff.Section(".debug_info") == nil {
		return nil, fmt.Errorf("no .debug_info section")
	}
	dwarff, err := elff.DWARF()
	if err != nil {
		return nil, fmt.Errorf("loading DWARF: %w", err)
	}

	return &objectTable{
		functab: dwarfFuncTable(dwarff),
		linetab: dwarfLineTable(dwarff),
	}, nil
}

func (t *objectTable) find(offset uint64) (funcName string, line *dwarf.LineEntry) {
	i := sort.Search(len(t.functab), func(i int) bool {
		return offset < t.functab[i].highpc
	})
	if i < len(t.functab) && t.functab[i].lowpc <= offset && offset < t.functab[i].highpc {
		funcName = t.functab[i].name
	}

	i = sort.Search(len(t.linetab), func(i int) bool {
		return offset < t.linetab[i].Address
	})
	if i != 0 && !t.linetab[i-1].EndSequence {
		line = &t.linetab[i-1]
	}
	return
}

func dwarfFuncTable(dwarff *dwarf.Data) []funcRange {
	r := dwarff.Reader()
	var out []funcRange
	for {
		ent, err := r.Next()
		if ent == nil || err != nil {
			break
		}
		if ent.Tag != dwarf.TagSubprogram {
			continue
		}
		r.SkipChildren()

		name, ok := ent.Val(dwarf.AttrName).(string)
		if !ok {
			continue
		}
		lowpc, ok := ent.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}
		var highpc uint64
		switch hp := ent.Val(dwarf.AttrHighpc).(type) {
		case uint64:
			highpc = hp
		case int64:
			highpc = lowpc + uint64(hp)
		default:
			continue
		}
		out = append(out, funcRange{name, lowpc, highpc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lowpc < out[j].lowpc })
	return out
}

func dwarfLineTable(dwarff *dwarf.Data) []dwarf.LineEntry {
	var out []dwarf.LineEntry
	dr := dwarff.Reader()
	for {
		ent, err := dr.Next()
		if ent == nil || err != nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			dr.SkipChildren()
			continue
		}
		lr, err := dwarff.LineReader(ent)
		if err != nil || lr == nil {
			continue
		}
		for {
			var lent dwarf.LineEntry
			if err := lr.Next(&lent); err != nil {
				if err != io.EOF {
					log.Warn().Err(err).Msg("symbolize: reading DWARF line table")
				}
				break
			}
			out = append(out, lent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
