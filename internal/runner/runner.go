// Package runner segments telemetry files into lap tables, one engine per
// file, and hands the results to the store and exporters.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/laptime/internal/db"
	"github.com/banshee-data/laptime/internal/export"
	"github.com/banshee-data/laptime/internal/fsutil"
	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/monitoring"
	"github.com/banshee-data/laptime/internal/observability"
	"github.com/banshee-data/laptime/internal/sector"
	"github.com/banshee-data/laptime/internal/security"
	"github.com/banshee-data/laptime/internal/telemetry"
	"github.com/banshee-data/laptime/internal/timeutil"
)

// chunkSize is the number of samples fed between cancellation checks.
const chunkSize = 4096

// Store persists processed runs. *db.DB implements it.
type Store interface {
	SaveRun(ctx context.Context, run *db.Run, table *laps.LapTable) error
}

// Config wires a Runner. Registry is required; everything else has a
// usable zero value.
type Config struct {
	Registry *sector.Registry
	Engine   laps.EngineConfig
	CSV      telemetry.CSVOptions
	// Workers bounds the files processed concurrently; 0 means unbounded.
	Workers int

	// OutDir enables per-run export files in Format.
	OutDir string
	Format string
	Export export.CSVOptions

	FS      fsutil.FileSystem
	Store   Store
	Metrics *observability.LapCollector
	Clock   timeutil.Clock
}

// Runner processes telemetry files.
type Runner struct {
	cfg     Config
	columns []string
}

// Result is the outcome of one file.
type Result struct {
	Path     string
	Name     telemetry.RunName
	RunID    string
	Samples  int
	Table    *laps.LapTable
	Summary  export.Summary
	Output   string
	Duration time.Duration
}

// New validates cfg by building a throwaway engine, so configuration errors
// surface before any file is read.
func New(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: no sector registry", sector.ErrConfiguration)
	}
	e, err := laps.NewEngine(cfg.Registry, cfg.Engine)
	if err != nil {
		return nil, err
	}
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Format == "" {
		cfg.Format = export.FormatCSV
	}
	if cfg.Format != export.FormatCSV && cfg.Format != export.FormatJSON {
		return nil, fmt.Errorf("unsupported export format %q", cfg.Format)
	}
	return &Runner{cfg: cfg, columns: e.Columns()}, nil
}

// Columns returns the reporting columns every result table carries.
func (r *Runner) Columns() []string { return append([]string(nil), r.columns...) }

// ProcessAll processes paths concurrently, at most Workers at a time. The
// first error cancels the remaining files and is returned; on success the
// results are in input order. Files whose run names map to the same export
// file get a numeric suffix in input order.
func (r *Runner) ProcessAll(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	outNames := exportNames(paths)

	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Workers > 0 {
		g.SetLimit(r.cfg.Workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			res, err := r.processFile(gctx, path, outNames[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// exportNames returns one export base name per path, unique ignoring case.
func exportNames(paths []string) []string {
	names := make([]string, len(paths))
	used := make(map[string]bool, len(paths))
	for i, path := range paths {
		base := security.SanitizeFilename(telemetry.ParseRunName(path).Base)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		if name != base {
			monitoring.Logf("export name %s already taken, writing %s as %s", base, path, name)
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

// ProcessFile loads, segments, stores and exports one telemetry file.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*Result, error) {
	return r.processFile(ctx, path, "")
}

// processFile is ProcessFile exporting under outName, or the run name when
// outName is empty.
func (r *Runner) processFile(ctx context.Context, path, outName string) (res *Result, err error) {
	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "laptime.ProcessFile")
	span.SetAttributes(attribute.String("laptime.path", path))
	defer span.End()

	start := r.cfg.Clock.Now()
	name := telemetry.ParseRunName(path)
	defer func() {
		elapsed := r.cfg.Clock.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.cfg.Metrics.ObserveRun(db.RunFailed, elapsed.Seconds())
			r.recordFailure(path, name, err)
			return
		}
		res.Duration = elapsed
		r.cfg.Metrics.ObserveRun(db.RunComplete, elapsed.Seconds())
		monitoring.WithFields(logrus.Fields{
			"run":      name.Base,
			"run_id":   res.RunID,
			"laps":     res.Table.Len(),
			"samples":  humanize.Comma(int64(res.Samples)),
			"duration": durafmt.ParseShort(elapsed).String(),
		}).Info("run processed")
	}()

	samples, err := telemetry.LoadSamples(r.cfg.FS, path, r.cfg.CSV)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("laptime.samples", len(samples)))

	table, err := r.segment(ctx, name.Base, samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	span.SetAttributes(attribute.Int("laptime.laps", table.Len()))
	r.cfg.Metrics.ObserveTable(name.Base, table)

	res = &Result{
		Path:    path,
		Name:    name,
		Samples: len(samples),
		Table:   table,
		Summary: export.Summarize(table),
	}

	if r.cfg.Store != nil {
		run := r.newRun(path, name, len(samples))
		run.Columns = table.Columns()
		if err := r.cfg.Store.SaveRun(ctx, run, table); err != nil {
			return nil, err
		}
		res.RunID = run.RunID
	}

	if r.cfg.OutDir != "" {
		if outName == "" {
			outName = name.Base
		}
		out, err := export.WriteFile(r.cfg.FS, r.cfg.OutDir, outName, r.cfg.Format, table, r.cfg.Export)
		if err != nil {
			return nil, err
		}
		res.Output = out
	}
	return res, nil
}

// segment runs one engine over samples, checking ctx between chunks.
func (r *Runner) segment(ctx context.Context, run string, samples []laps.Sample) (*laps.LapTable, error) {
	_, span := otel.Tracer(observability.TracerName).Start(ctx, "laptime.segment")
	defer span.End()

	engine, err := laps.NewEngine(r.cfg.Registry, r.cfg.Engine)
	if err != nil {
		return nil, err
	}
	for i, s := range samples {
		if i%chunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out := engine.Feed(s)
		r.cfg.Metrics.ObserveOutcome(out)
		if out.Kind == laps.LapBoundary {
			monitoring.Logf("%s: lap %d closed at sample %d (%.3fs)", run, out.Record.Lap, out.Index, out.Record.Total)
		}
	}
	return engine.Finish(), nil
}

func (r *Runner) newRun(path string, name telemetry.RunName, samples int) *db.Run {
	interval := r.cfg.Engine.SampleInterval
	if interval == 0 {
		interval = laps.DefaultSampleInterval
	}
	return &db.Run{
		SourcePath:     path,
		RunNumber:      name.Run,
		CarNumber:      name.Car,
		SampleInterval: interval,
		SampleCount:    samples,
		CreatedAt:      r.cfg.Clock.Now(),
	}
}

// recordFailure stores a failed run. Cancellations are not recorded.
func (r *Runner) recordFailure(path string, name telemetry.RunName, cause error) {
	if r.cfg.Store == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	run := r.newRun(path, name, 0)
	run.Status = db.RunFailed
	run.Error = cause.Error()
	if err := r.cfg.Store.SaveRun(context.Background(), run, nil); err != nil {
		monitoring.Logf("failed to record failed run %s: %v", path, err)
	}
}
