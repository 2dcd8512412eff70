// Command laptime splits logger telemetry exports into per-lap sector times.
//
//	laptime -sectors chennai_sectors.json -out-dir out data/*.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/laptime/internal/api"
	"github.com/banshee-data/laptime/internal/config"
	"github.com/banshee-data/laptime/internal/db"
	"github.com/banshee-data/laptime/internal/export"
	"github.com/banshee-data/laptime/internal/fsutil"
	"github.com/banshee-data/laptime/internal/monitoring"
	"github.com/banshee-data/laptime/internal/observability"
	"github.com/banshee-data/laptime/internal/runner"
	"github.com/banshee-data/laptime/internal/sector"
	"github.com/banshee-data/laptime/internal/telemetry"
	"github.com/banshee-data/laptime/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON run config (defaults apply when empty)")
	sectorsPath   = flag.String("sectors", "", "Sector layout JSON (overrides sectors_file)")
	dbPath        = flag.String("db", "", "SQLite database for processed runs (overrides db_path)")
	outDir        = flag.String("out-dir", "", "Directory for per-run lap tables; empty disables export")
	format        = flag.String("format", export.FormatCSV, "Export format: csv or json")
	workers       = flag.Int("workers", 0, "Files processed concurrently (overrides workers; 0 keeps config)")
	listen        = flag.String("listen", "", "Serve /metrics, and /api/runs when a database is set, on this address, e.g. :9102")
	serve         = flag.Bool("serve", false, "Keep serving -listen after processing until interrupted")
	traceExporter = flag.String("trace", "", "Tracing exporter: stdout or otlp; empty disables tracing")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logJSON       = flag.Bool("log-json", false, "Emit JSON log lines")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.NArg() == 0 && !*serve {
		flag.Usage()
		os.Exit(2)
	}

	if err := monitoring.SetLevel(*logLevel); err != nil {
		log.Fatalf("invalid -log-level: %v", err)
	}
	monitoring.SetJSON(*logJSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("laptime: %v", err)
	}
}

// loadConfig reads -config and applies flag overrides.
func loadConfig() (*config.LapConfig, error) {
	cfg := &config.LapConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadLapConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if *sectorsPath != "" {
		cfg.SectorsFile = sectorsPath
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *workers != 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expandInputs resolves glob arguments to a de-duplicated file list.
func expandInputs(fsys fsutil.FileSystem, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, arg := range args {
		matches, err := fsys.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fsys := fsutil.OSFileSystem{}

	var paths []string
	if len(args) > 0 {
		if paths, err = expandInputs(fsys, args); err != nil {
			return err
		}
	}

	reg, err := telemetry.LoadRegistryFile(fsys, cfg.GetSectorsFile())
	if err != nil {
		return err
	}
	monitoring.Logf("loaded %d sectors from %s", reg.Len(), cfg.GetSectorsFile())
	warnIfNoStartFinish(reg, cfg.GetSectorsFile())

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromFlag(*traceExporter))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown)

	metrics, err := observability.NewLapCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	rcfg := runner.Config{
		Registry: reg,
		Engine:   cfg.EngineConfig(),
		CSV:      cfg.CSVOptions(),
		Workers:  cfg.GetWorkers(),
		OutDir:   *outDir,
		Format:   *format,
		Export: export.CSVOptions{
			Delimiter:    cfg.GetCSVDelimiter(),
			DecimalComma: cfg.GetDecimalComma(),
		},
		FS:      fsys,
		Metrics: metrics,
	}
	var store *db.DB
	if p := cfg.GetDBPath(); p != "" {
		if store, err = db.NewDB(p); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		rcfg.Store = store
	}

	r, err := runner.New(rcfg)
	if err != nil {
		return err
	}

	if *listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if store != nil {
			info := api.Info{
				SampleInterval: cfg.GetSampleInterval(),
				Columns:        r.Columns(),
				Sectors:        reg.Len(),
			}
			mux.Handle("/api/", api.LoggingMiddleware(api.NewServer(store, info).ServeMux()))
		}
		srv := startServer(*listen, mux)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if len(paths) > 0 {
		results, err := r.ProcessAll(ctx, paths)
		if err != nil {
			return err
		}
		summaries := make([]export.RunSummary, len(results))
		for i, res := range results {
			summaries[i] = export.RunSummary{Run: res.Name.Base, Summary: res.Summary}
		}
		export.WriteSummaryTable(stdout, summaries)
	}

	if *serve && *listen != "" {
		monitoring.Logf("serving on %s until interrupted", *listen)
		<-ctx.Done()
	}
	return nil
}

// warnIfNoStartFinish logs a warning and returns true when reg has no
// start/finish sector, in which case every run yields an empty lap table.
func warnIfNoStartFinish(reg *sector.Registry, path string) bool {
	if reg.HasStartFinish() {
		return false
	}
	monitoring.WithFields(logrus.Fields{
		"sectors_file": path,
		"sector":       sector.StartFinish,
	}).Warn("sector layout has no start/finish sector; no laps will be recorded")
	return true
}

func startServer(addr string, h http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
		}
	}()
	monitoring.Logf("listening on %s", addr)
	return srv
}
