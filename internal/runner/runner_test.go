package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/laptime/internal/db"
	"github.com/banshee-data/laptime/internal/export"
	"github.com/banshee-data/laptime/internal/fsutil"
	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/observability"
	"github.com/banshee-data/laptime/internal/sector"
	"github.com/banshee-data/laptime/internal/telemetry"
	"github.com/banshee-data/laptime/internal/testutil"
	"github.com/banshee-data/laptime/internal/timeutil"
)

type fakeStore struct {
	mu   sync.Mutex
	runs []*db.Run
	err  error
}

func (s *fakeStore) SaveRun(_ context.Context, run *db.Run, _ *laps.LapTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && run.Status != db.RunFailed {
		return s.err
	}
	if run.RunID == "" {
		run.RunID = fmt.Sprintf("run-%d", len(s.runs)+1)
	}
	s.runs = append(s.runs, run)
	return nil
}

var trackDefs = testutil.StripTrack("SF", "T1", "SA", "SB")

func writeRun(mfs *fsutil.MemoryFileSystem, path string, route ...string) {
	mfs.WriteFile(path, []byte(testutil.SamplesCSV(testutil.Route(trackDefs, route...))))
}

func newRunner(t *testing.T, mutate func(*Config)) (*Runner, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	cfg := Config{
		Registry: testutil.Registry(t, trackDefs),
		CSV:      telemetry.DefaultCSVOptions(),
		FS:       mfs,
		Clock:    timeutil.NewMockClock(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r, mfs
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, sector.ErrConfiguration)

	reg := testutil.Registry(t, trackDefs)
	_, err = New(Config{Registry: reg, Engine: laps.EngineConfig{SampleInterval: -1}})
	assert.ErrorIs(t, err, sector.ErrConfiguration)

	_, err = New(Config{Registry: reg, Format: "pdf"})
	assert.Error(t, err)

	r, err := New(Config{Registry: reg})
	require.NoError(t, err)
	cols := r.Columns()
	assert.Equal(t, "Lap", cols[0])
	assert.Equal(t, "Total_Lap", cols[len(cols)-1])
}

func TestProcessFile(t *testing.T) {
	store := &fakeStore{}
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewLapCollector(reg)
	require.NoError(t, err)

	r, mfs := newRunner(t, func(c *Config) {
		c.Store = store
		c.Metrics = metrics
		c.OutDir = "/out"
	})
	writeRun(mfs, "/data/F4-7_Tr2.csv", "T1", "SF", "T1", "SA", "SB", "SF", "T1", "T1", "SF", "T1")

	res, err := r.ProcessFile(context.Background(), "/data/F4-7_Tr2.csv")
	require.NoError(t, err)

	assert.Equal(t, 10, res.Samples)
	assert.Equal(t, telemetry.RunName{Base: "F4-7_Tr2", Run: 2, Car: 7}, res.Name)
	require.Equal(t, 3, res.Table.Len())
	assert.True(t, res.Table.At(2).Partial)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "/out/F4-7_Tr2_laps.csv", res.Output)
	assert.True(t, mfs.Exists(res.Output))
	require.NotNil(t, res.Summary.Fastest)

	require.Len(t, store.runs, 1)
	stored := store.runs[0]
	assert.Equal(t, 7, stored.CarNumber)
	assert.Equal(t, 2, stored.RunNumber)
	assert.Equal(t, laps.DefaultSampleInterval, stored.SampleInterval)
	assert.Equal(t, res.Table.Columns(), stored.Columns)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Runs.WithLabelValues(db.RunComplete)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Samples.WithLabelValues("discarded")))
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Laps.WithLabelValues("complete")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Laps.WithLabelValues("partial")))
}

func TestProcessFile_Failures(t *testing.T) {
	store := &fakeStore{}
	r, mfs := newRunner(t, func(c *Config) { c.Store = store })
	mfs.WriteFile("/data/bad.csv", []byte("GPS_Lat;GPS_Long\nnorth;east\n"))

	_, err := r.ProcessFile(context.Background(), "/data/bad.csv")
	require.ErrorIs(t, err, telemetry.ErrMalformedInput)

	require.Len(t, store.runs, 1, "failed runs are recorded")
	assert.Equal(t, db.RunFailed, store.runs[0].Status)
	assert.Contains(t, store.runs[0].Error, "malformed input")

	_, err = r.ProcessFile(context.Background(), "/data/missing.csv")
	assert.Error(t, err)
}

func TestProcessFile_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	r, mfs := newRunner(t, func(c *Config) { c.Store = store })
	writeRun(mfs, "/data/Tr1.csv", "SF", "T1", "SF")

	_, err := r.ProcessFile(context.Background(), "/data/Tr1.csv")
	assert.ErrorContains(t, err, "disk full")
}

func TestProcessFile_Cancelled(t *testing.T) {
	store := &fakeStore{}
	r, mfs := newRunner(t, func(c *Config) { c.Store = store })
	writeRun(mfs, "/data/Tr1.csv", "SF", "T1", "SF")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ProcessFile(ctx, "/data/Tr1.csv")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.runs, "cancelled runs are not recorded")
}

func TestProcessAll_OrderAndIsolation(t *testing.T) {
	r, mfs := newRunner(t, func(c *Config) { c.Workers = 2 })

	var paths []string
	for i := 1; i <= 6; i++ {
		path := fmt.Sprintf("/data/Tr%d.csv", i)
		// Run i has i complete laps.
		route := []string{"SF"}
		for l := 0; l < i; l++ {
			route = append(route, "T1", "SA", "SF")
		}
		writeRun(mfs, path, route...)
		paths = append(paths, path)
	}

	results, err := r.ProcessAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, res := range results {
		assert.Equal(t, paths[i], res.Path)
		assert.Equal(t, i+1, res.Table.Len(), "engines do not share state")
		assert.Equal(t, i+1, res.Name.Run)
	}
}

func TestProcessAll_FirstErrorAborts(t *testing.T) {
	r, mfs := newRunner(t, func(c *Config) { c.Workers = 1 })
	writeRun(mfs, "/data/Tr1.csv", "SF", "T1", "SF")
	mfs.WriteFile("/data/Tr2.csv", []byte("Time\n0\n"))
	writeRun(mfs, "/data/Tr3.csv", "SF", "T1", "SF")

	results, err := r.ProcessAll(context.Background(), []string{"/data/Tr1.csv", "/data/Tr2.csv", "/data/Tr3.csv"})
	assert.ErrorIs(t, err, telemetry.ErrMalformedInput)
	assert.Nil(t, results)
}

func TestProcessAll_WithSQLiteStore(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "laps.db"))
	require.NoError(t, err)
	defer store.Close()

	r, mfs := newRunner(t, func(c *Config) {
		c.Store = store
		c.OutDir = "/out"
		c.Format = export.FormatJSON
	})
	writeRun(mfs, "/data/F4-3_Tr1.csv", "SF", "T1", "SA", "SF", "T1", "SB", "SF")
	writeRun(mfs, "/data/F4-3_Tr2.csv", "SF", "T1", "SF")

	results, err := r.ProcessAll(context.Background(), []string{"/data/F4-3_Tr1.csv", "/data/F4-3_Tr2.csv"})
	require.NoError(t, err)

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	stored, err := store.Laps(context.Background(), results[0].RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.True(t, strings.HasSuffix(results[1].Output, "F4-3_Tr2_laps.json"))
}

func TestProcessAll_DistinctExportNames(t *testing.T) {
	r, mfs := newRunner(t, func(c *Config) {
		c.OutDir = "/out"
		c.Workers = 2
	})
	writeRun(mfs, "/a/Tr1.csv", "SF", "T1", "SF", "T1", "SF")
	writeRun(mfs, "/b/Tr1.csv", "SF", "T1", "SF", "T1", "SF", "T1", "SF", "T1", "SF")

	results, err := r.ProcessAll(context.Background(), []string{"/a/Tr1.csv", "/b/Tr1.csv"})
	require.NoError(t, err)
	assert.Equal(t, "/out/Tr1_laps.csv", results[0].Output)
	assert.Equal(t, "/out/Tr1_2_laps.csv", results[1].Output)

	for i, wantLaps := range []int{2, 4} {
		data, err := mfs.ReadFile(results[i].Output)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, wantLaps+1, results[i].Output)
	}
}

func TestExportNames(t *testing.T) {
	got := exportNames([]string{"/a/Tr1.csv", "/b/Tr1.csv", "/c/tr1.csv", "/d/Tr1_2.csv", "/e/a b.csv", "/f/a_b.csv"})
	assert.Equal(t, []string{"Tr1", "Tr1_2", "tr1_3", "Tr1_2_2", "a_b", "a_b_2"}, got)
}
