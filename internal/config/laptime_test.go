package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/telemetry"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &LapConfig{}

	if got := cfg.GetSampleInterval(); got != 0.005 {
		t.Errorf("GetSampleInterval() = %v, want 0.005", got)
	}
	if got := cfg.GetSectorsFile(); got != "sectors.json" {
		t.Errorf("GetSectorsFile() = %q", got)
	}
	if diff := cmp.Diff(laps.DefaultPlan(), cfg.GetPlan()); diff != "" {
		t.Errorf("GetPlan() mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.GetWorkers(); got != runtime.NumCPU() {
		t.Errorf("GetWorkers() = %d, want %d", got, runtime.NumCPU())
	}
	if got := cfg.GetDBPath(); got != "" {
		t.Errorf("GetDBPath() = %q, want empty", got)
	}
	want := telemetry.DefaultCSVOptions()
	if diff := cmp.Diff(want, cfg.CSVOptions()); diff != "" {
		t.Errorf("CSVOptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.SampleInterval == nil || *cfg.SampleInterval != 0.005 {
		t.Errorf("Expected sample_interval 0.005, got %v", cfg.SampleInterval)
	}
	if diff := cmp.Diff(laps.DefaultPlan(), cfg.GetPlan()); diff != "" {
		t.Errorf("defaults file plan differs from built-in plan (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(telemetry.DefaultCSVOptions(), cfg.CSVOptions()); diff != "" {
		t.Errorf("defaults file CSV options differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(laps.DefaultColumns(), cfg.EngineConfig().Columns); diff != "" {
		t.Errorf("defaults file columns differ (-want +got):\n%s", diff)
	}
}

func TestLoadLapConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "chennai.json")

	testJSON := `{
  // Practice day logger ran at 100 Hz.
  "sample_interval": 0.01,
  "combinations": [],
  "columns": ["T1", "SF"],
  "csv_delimiter": ",",
  "decimal_comma": false,
  "workers": 2,
  "db_path": "laps.db",
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadLapConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	ec := cfg.EngineConfig()
	if ec.SampleInterval != 0.01 {
		t.Errorf("SampleInterval = %v, want 0.01", ec.SampleInterval)
	}
	if ec.Plan == nil || len(ec.Plan) != 0 {
		t.Errorf("explicit empty combinations should disable combining, got %v", ec.Plan)
	}
	if diff := cmp.Diff([]string{"T1", "SF"}, ec.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetCSVDelimiter() != ',' || cfg.GetDecimalComma() {
		t.Errorf("unexpected CSV settings %q / %v", cfg.GetCSVDelimiter(), cfg.GetDecimalComma())
	}
	if cfg.GetWorkers() != 2 || cfg.GetDBPath() != "laps.db" {
		t.Errorf("unexpected workers/db %d %q", cfg.GetWorkers(), cfg.GetDBPath())
	}
	// Unset fields keep their defaults.
	if cfg.GetLatColumn() != "GPS_Lat" {
		t.Errorf("GetLatColumn() = %q", cfg.GetLatColumn())
	}
}

func TestLoadLapConfig_FileChecks(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "config.yaml")
	_ = os.WriteFile(yamlPath, []byte("{}"), 0644)
	if _, err := LoadLapConfig(yamlPath); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("expected extension error, got %v", err)
	}

	if _, err := LoadLapConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	big := filepath.Join(tmpDir, "big.json")
	_ = os.WriteFile(big, make([]byte, maxConfigSize+1), 0644)
	if _, err := LoadLapConfig(big); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}

	broken := filepath.Join(tmpDir, "broken.json")
	_ = os.WriteFile(broken, []byte(`{"sample_interval": `), 0644)
	if _, err := LoadLapConfig(broken); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"ok", `{}`, ""},
		{"zero interval", `{"sample_interval": 0}`, "sample_interval"},
		{"negative interval", `{"sample_interval": -0.005}`, "sample_interval"},
		{"long delimiter", `{"csv_delimiter": ";;"}`, "single character"},
		{"empty delimiter", `{"csv_delimiter": ""}`, "single character"},
		{"quote delimiter", `{"csv_delimiter": "\""}`, "not allowed"},
		{"comma with decimal comma", `{"csv_delimiter": ","}`, "decimal_comma"},
		{"same columns", `{"lat_column": "x", "lon_column": "x"}`, "must differ"},
		{"negative workers", `{"workers": -1}`, "workers"},
		{"bad plan", `{"combinations": [{"target": "Total_Lap", "sources": ["A"]}]}`, "combinations"},
		{"duplicate column", `{"columns": ["SF", "SF"]}`, "twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLapConfig([]byte(tt.json))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
