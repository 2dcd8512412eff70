package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/testutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "laps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func buildTable(t *testing.T) *laps.LapTable {
	t.Helper()
	defs := testutil.StripTrack("SF", "T1", "SA", "SB")
	e, err := laps.NewEngine(testutil.Registry(t, defs), laps.EngineConfig{})
	require.NoError(t, err)

	var samples []laps.Sample
	for _, p := range testutil.Route(defs, "SF", "T1", "T1", "SA", "SB", "SF", "T1", "SA", "SF", "T1") {
		samples = append(samples, laps.Sample{Lat: p.Lat, Lon: p.Lon})
	}
	return e.Run(samples)
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Already at latest.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateUp())
	version, _, _ = db.MigrateVersion()
	assert.Equal(t, uint(2), version)
}

func TestOpenDBWithoutMigrations(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestSaveRunRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	table := buildTable(t)
	require.Equal(t, 3, table.Len())

	run := &Run{
		SourcePath:     "data/F4-7_Tr2.csv",
		RunNumber:      2,
		CarNumber:      7,
		SampleInterval: laps.DefaultSampleInterval,
		SampleCount:    10,
		CreatedAt:      time.Unix(1700000000, 0),
	}
	require.NoError(t, db.SaveRun(ctx, run, table))
	require.NotEmpty(t, run.RunID, "run id is generated")

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	want := *run
	want.Status = RunComplete
	want.Columns = table.Columns()
	if diff := cmp.Diff(want, runs[0]); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	stored, err := db.Laps(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, table.Len())

	for i, rec := range table.All() {
		got := stored[i]
		assert.Equal(t, rec.Lap, got.Lap)
		assert.Equal(t, rec.Total, got.Total)
		assert.Equal(t, rec.Partial, got.Partial)
		assert.Equal(t, rec.Span.Start, got.StartSample)
		assert.Equal(t, rec.Span.End, got.EndSample)

		var wantTimes []ColumnTime
		for _, col := range table.SectorColumns() {
			v, _ := rec.Value(col)
			wantTimes = append(wantTimes, ColumnTime{Column: col, Seconds: v})
		}
		if diff := cmp.Diff(wantTimes, got.Times); diff != "" {
			t.Errorf("lap %d times mismatch (-want +got):\n%s", i, diff)
		}
	}
	assert.True(t, stored[2].Partial)
}

func TestSaveFailedRunWithoutLaps(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := &Run{RunID: "fixed-id", SourcePath: "bad.csv", Status: RunFailed, Error: "malformed input"}
	require.NoError(t, db.SaveRun(ctx, run, nil))

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "malformed input", runs[0].Error)

	stored, err := db.Laps(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Empty(t, stored)

	// Duplicate ids are rejected.
	assert.Error(t, db.SaveRun(ctx, &Run{RunID: "fixed-id", SourcePath: "bad.csv"}, nil))
}

func TestDeleteRunCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := &Run{SourcePath: "Tr1.csv"}
	require.NoError(t, db.SaveRun(ctx, run, buildTable(t)))
	require.NoError(t, db.DeleteRun(ctx, run.RunID))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM lap_sector_times`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM laps`).Scan(&n))
	assert.Zero(t, n)

	err := db.DeleteRun(ctx, run.RunID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return errors.New("constraint failed")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
