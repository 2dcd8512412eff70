package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/laptime/internal/laps"
)

// Run status values.
const (
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Run is one processed telemetry file.
type Run struct {
	RunID          string    `json:"run_id"`
	SourcePath     string    `json:"source_path"`
	RunNumber      int       `json:"run_number"`
	CarNumber      int       `json:"car_number"`
	SampleInterval float64   `json:"sample_interval"`
	SampleCount    int       `json:"sample_count"`
	Columns        []string  `json:"columns"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ColumnTime is one reporting column value of a stored lap.
type ColumnTime struct {
	Column  string  `json:"column"`
	Seconds float64 `json:"seconds"`
}

// StoredLap is a lap row read back from the store, with its reporting
// columns in position order.
type StoredLap struct {
	Lap         int          `json:"lap"`
	Total       float64      `json:"total"`
	Partial     bool         `json:"partial"`
	StartSample int          `json:"start_sample"`
	EndSample   int          `json:"end_sample"`
	Times       []ColumnTime `json:"times"`
}

// SaveRun writes run and the laps of table in one transaction. A missing
// RunID is generated and written back into run.
func (db *DB) SaveRun(ctx context.Context, run *Run, table *laps.LapTable) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunComplete
	}
	if table != nil && run.Columns == nil {
		run.Columns = table.Columns()
	}
	cols, err := json.Marshal(run.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	err = retryOnBusy(func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var runErr interface{}
		if run.Error != "" {
			runErr = run.Error
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lap_runs (
				run_id, source_path, run_number, car_number, sample_interval,
				sample_count, columns_json, status, error, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.SourcePath, run.RunNumber, run.CarNumber, run.SampleInterval,
			run.SampleCount, string(cols), run.Status, runErr, run.CreatedAt.UnixNano(),
		); err != nil {
			return err
		}

		if table != nil {
			if err := insertLaps(ctx, tx, run.RunID, table); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

func insertLaps(ctx context.Context, tx *sql.Tx, runID string, table *laps.LapTable) error {
	lapStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO laps (run_id, lap_index, total_seconds, partial, start_sample, end_sample)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lapStmt.Close()

	timeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lap_sector_times (run_id, lap_index, column_name, position, seconds)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer timeStmt.Close()

	columns := table.SectorColumns()
	for _, rec := range table.All() {
		if _, err := lapStmt.ExecContext(ctx, runID, rec.Lap, rec.Total, rec.Partial, rec.Span.Start, rec.Span.End); err != nil {
			return fmt.Errorf("lap %d: %w", rec.Lap, err)
		}
		for pos, col := range columns {
			v, _ := rec.Value(col)
			if _, err := timeStmt.ExecContext(ctx, runID, rec.Lap, col, pos, v); err != nil {
				return fmt.Errorf("lap %d column %s: %w", rec.Lap, col, err)
			}
		}
	}
	return nil
}

// Runs returns stored runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, source_path, run_number, car_number, sample_interval,
		       sample_count, columns_json, status, COALESCE(error, ''), created_at
		FROM lap_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			cols    string
			created int64
		)
		if err := rows.Scan(&r.RunID, &r.SourcePath, &r.RunNumber, &r.CarNumber, &r.SampleInterval,
			&r.SampleCount, &cols, &r.Status, &r.Error, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &r.Columns); err != nil {
			return nil, fmt.Errorf("run %s columns: %w", r.RunID, err)
		}
		r.CreatedAt = time.Unix(0, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Laps returns the stored laps of a run in lap order.
func (db *DB) Laps(ctx context.Context, runID string) ([]StoredLap, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT l.lap_index, l.total_seconds, l.partial, l.start_sample, l.end_sample,
		       t.column_name, t.seconds
		FROM laps l
		LEFT JOIN lap_sector_times t ON t.run_id = l.run_id AND t.lap_index = l.lap_index
		WHERE l.run_id = ?
		ORDER BY l.lap_index, t.position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredLap
	for rows.Next() {
		var (
			lap     StoredLap
			column  sql.NullString
			seconds sql.NullFloat64
		)
		if err := rows.Scan(&lap.Lap, &lap.Total, &lap.Partial, &lap.StartSample, &lap.EndSample, &column, &seconds); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Lap != lap.Lap {
			out = append(out, lap)
		}
		if column.Valid {
			last := &out[len(out)-1]
			last.Times = append(last.Times, ColumnTime{Column: column.String, Seconds: seconds.Float64})
		}
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its laps.
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `DELETE FROM lap_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", runID, sql.ErrNoRows)
		}
		return nil
	})
}
