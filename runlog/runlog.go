// Package runlog persists evolution histories to sqlite, so that long
// imaginary time runs can be inspected and resumed across processes.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableRun    = "run"
	tableRecord = "record"
)

// Log is an append only store of evolution records grouped by run.
type Log struct {
	Path string

	db *sql.DB
}

// Record is one energy measurement point of a run.
type Record struct {
	Sweep     int
	Tau       float64
	Time      float64
	Energy    float64
	GaugeDiff float64
}

// Open creates or opens the log at dbPath.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Log{Path: dbPath, db: db}, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, name TEXT, config TEXT, created INTEGER) STRICT`, tableRun)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run INTEGER, sweep INTEGER, tau REAL, time REAL, energy REAL, gaugediff REAL, PRIMARY KEY (run, sweep)) STRICT`, tableRecord)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// NewRun registers a run with its name and serialized configuration,
// returning the run id.
func (l *Log) NewRun(name, config string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (name, config, created) VALUES (?, ?, ?)`, tableRun)
	res, err := l.db.ExecContext(ctx, sqlStr, name, config, time.Now().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return id, nil
}

// Append stores one record of the run.
func (l *Log) Append(run int64, r Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (run, sweep, tau, time, energy, gaugediff) VALUES (?, ?, ?, ?, ?, ?)`, tableRecord)
	if _, err := l.db.ExecContext(ctx, sqlStr, run, r.Sweep, r.Tau, r.Time, r.Energy, r.GaugeDiff); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, r))
	}
	return nil
}

// Records returns the records of a run in sweep order.
func (l *Log) Records(run int64) ([]Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT sweep, tau, time, energy, gaugediff FROM %s WHERE run=? ORDER BY sweep`, tableRecord)
	rows, err := l.db.QueryContext(ctx, sqlStr, run)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Sweep, &r.Tau, &r.Time, &r.Energy, &r.GaugeDiff); err != nil {
			return nil, errors.Wrap(err, "")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// LastEnergy returns the most recent energy of a run.
func (l *Log) LastEnergy(run int64) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT energy FROM %s WHERE run=? ORDER BY sweep DESC LIMIT 1`, tableRecord)
	var energy float64
	err := l.db.QueryRowContext(ctx, sqlStr, run).Scan(&energy)
	switch {
	case err == sql.ErrNoRows:
		return 0, errors.Errorf("run %d has no records", run)
	case err != nil:
		return 0, errors.Wrap(err, "")
	}
	return energy, nil
}
