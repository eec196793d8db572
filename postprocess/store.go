// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package postprocess

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns perf.db, the relational output described in spec.md §6.
// It is opened exclusively by one post-processing run; spec.md §5
// explicitly does not support concurrent writers.
type Store struct {
	db      *sql.DB
	columns []string // counter columns of pmu_counters, in RecordInfo's EnabledCounters order
}

// OpenStore opens perf.db at path, creating it if needed, and drops
// and recreates its base tables (so post-processing is idempotent over
// one capture directory). columns names one column of
// pmu_counters per enabled counter, in the order RecordInfo.Info.
// EnabledCounters lists them, per spec.md §4.6's tie-break rule.
func OpenStore(path string, columns []string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("postprocess: opening %s: %w", path, err)
	}

	s := &Store{db: db, columns: append([]string(nil), columns...)}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the open database so an external presentation layer can
// CREATE VIEW against the base tables postprocess populates (hotspots,
// roofline); building those views is explicitly out of scope per
// spec.md §1.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) createTables() error {
	stmts := []string{
		`DROP TABLE IF EXISTS proc_map`,
		`CREATE TABLE proc_map (
			ip        INTEGER PRIMARY KEY,
			func_name TEXT NOT NULL,
			file_name TEXT NOT NULL,
			line      INTEGER NOT NULL
		)`,
		`DROP TABLE IF EXISTS strings`,
		`CREATE TABLE strings (
			id     INTEGER PRIMARY KEY,
			string TEXT NOT NULL
		)`,
		`DROP TABLE IF EXISTS roofline_ops`,
		`CREATE TABLE roofline_ops (
			id                TEXT PRIMARY KEY,
			pid               INTEGER NOT NULL,
			tid               INTEGER NOT NULL,
			file_name         TEXT NOT NULL,
			func_name         TEXT NOT NULL,
			line              INTEGER NOT NULL,
			bytes_load        INTEGER NOT NULL DEFAULT 0,
			bytes_store       INTEGER NOT NULL DEFAULT 0,
			scalar_int_ops    INTEGER NOT NULL DEFAULT 0,
			scalar_float_ops  INTEGER NOT NULL DEFAULT 0,
			scalar_double_ops INTEGER NOT NULL DEFAULT 0,
			vector_int_ops    INTEGER NOT NULL DEFAULT 0,
			vector_float_ops  INTEGER NOT NULL DEFAULT 0,
			vector_double_ops INTEGER NOT NULL DEFAULT 0
		)`,
		`DROP TABLE IF EXISTS roofline_loop_runs`,
		`CREATE TABLE roofline_loop_runs (
			id        TEXT PRIMARY KEY,
			pid       INTEGER NOT NULL,
			tid       INTEGER NOT NULL,
			file_name TEXT NOT NULL,
			func_name TEXT NOT NULL,
			line      INTEGER NOT NULL,
			start_ts  INTEGER NOT NULL,
			end_ts    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("postprocess: %s: %w", stmt, err)
		}
	}
	return s.createPMUCountersTable()
}

func (s *Store) createPMUCountersTable() error {
	var b strings.Builder
	b.WriteString(`DROP TABLE IF EXISTS pmu_counters; CREATE TABLE pmu_counters (
		unique_id    TEXT NOT NULL,
		process_id   INTEGER NOT NULL,
		thread_id    INTEGER NOT NULL,
		time_enabled INTEGER NOT NULL,
		time_running INTEGER NOT NULL,
		confidence   REAL NOT NULL,
		ip           INTEGER NOT NULL,
		call_stack   TEXT NOT NULL`)
	for _, col := range s.columns {
		if err := checkIdent(col); err != nil {
			return fmt.Errorf("postprocess: enabled counter %q: %w", col, err)
		}
		fmt.Fprintf(&b, ",\n\t\t%s INTEGER NOT NULL DEFAULT 0", col)
	}
	b.WriteString(")")

	if _, err := s.db.Exec(b.String()); err != nil {
		return fmt.Errorf("postprocess: creating pmu_counters: %w", err)
	}
	return nil
}

// checkIdent rejects anything that would let a crafted RecordInfo
// inject SQL via the counter column list; an event.Kind name (see
// event.Kind.String) is always snake_case already and passes through.
func checkIdent(name string) error {
	if name == "" {
		return fmt.Errorf("empty column name")
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return fmt.Errorf("invalid column name %q", name)
		}
	}
	return nil
}

// InsertString adds one strings.json entry to the strings table.
func (s *Store) InsertString(id uint64, value string) error {
	_, err := s.db.Exec(`INSERT INTO strings (id, string) VALUES (?, ?)`, id, value)
	return err
}

// InsertProcMap adds one resolved-IP row, ignored if ip was already
// inserted (the PMU join only calls this once per new IP, but a
// duplicate is harmless, not corrupt input).
func (s *Store) InsertProcMap(ip uint64, funcName, fileName string, line uint32) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO proc_map (ip, func_name, file_name, line) VALUES (?, ?, ?, ?)`,
		ip, funcName, fileName, line,
	)
	return err
}

// PMUCounterRow is one flushed lead-event group from the PMU join.
type PMUCounterRow struct {
	UniqueID    string
	ProcessID   uint32
	ThreadID    uint32
	TimeEnabled uint64
	TimeRunning uint64
	Confidence  float64
	IP          uint64
	CallStack   string // JSON array of IPs
	Counters    map[string]uint64
}

// InsertPMUCounters writes one pmu_counters row, populating counter
// columns in the Store's fixed column order; a counter with no
// reading in this group is left at its 0 default.
func (s *Store) InsertPMUCounters(row PMUCounterRow) error {
	cols := []string{"unique_id", "process_id", "thread_id", "time_enabled", "time_running", "confidence", "ip", "call_stack"}
	args := []any{row.UniqueID, row.ProcessID, row.ThreadID, row.TimeEnabled, row.TimeRunning, row.Confidence, row.IP, row.CallStack}
	for _, col := range s.columns {
		cols = append(cols, col)
		args = append(args, row.Counters[col])
	}

	placeholders := strings.Repeat("?,", len(cols))
	placeholders = placeholders[:len(placeholders)-1]
	stmt := fmt.Sprintf("INSERT INTO pmu_counters (%s) VALUES (%s)", strings.Join(cols, ","), placeholders)
	_, err := s.db.Exec(stmt, args...)
	return err
}

// RooflineOpsRow is one flushed roofline_ops entry: the instrumented
// process's per-invocation arithmetic/memory counts for one loop.
type RooflineOpsRow struct {
	ID                 string
	PID, TID           uint32
	FileName, FuncName string
	Line               uint32

	BytesLoad, BytesStore                         uint64
	ScalarIntOps, ScalarFloatOps, ScalarDoubleOps uint64
	VectorIntOps, VectorFloatOps, VectorDoubleOps uint64
}

// InsertRooflineOps writes one roofline_ops row.
func (s *Store) InsertRooflineOps(r RooflineOpsRow) error {
	_, err := s.db.Exec(`INSERT INTO roofline_ops (
		id, pid, tid, file_name, func_name, line,
		bytes_load, bytes_store,
		scalar_int_ops, scalar_float_ops, scalar_double_ops,
		vector_int_ops, vector_float_ops, vector_double_ops
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.PID, r.TID, r.FileName, r.FuncName, r.Line,
		r.BytesLoad, r.BytesStore,
		r.ScalarIntOps, r.ScalarFloatOps, r.ScalarDoubleOps,
		r.VectorIntOps, r.VectorFloatOps, r.VectorDoubleOps,
	)
	return err
}

// RooflineLoopRunRow is one flushed roofline_loop_runs entry: the
// baseline process's timing for one loop invocation.
type RooflineLoopRunRow struct {
	ID                 string
	PID, TID           uint32
	FileName, FuncName string
	Line               uint32
	StartTS, EndTS     uint64
}

// InsertRooflineLoopRun writes one roofline_loop_runs row.
func (s *Store) InsertRooflineLoopRun(r RooflineLoopRunRow) error {
	_, err := s.db.Exec(`INSERT INTO roofline_loop_runs (
		id, pid, tid, file_name, func_name, line, start_ts, end_ts
	) VALUES (?,?,?,?,?,?,?,?)`,
		r.ID, r.PID, r.TID, r.FileName, r.FuncName, r.Line, r.StartTS, r.EndTS,
	)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
