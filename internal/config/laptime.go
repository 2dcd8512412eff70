package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"unicode/utf8"

	"github.com/tailscale/hujson"

	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/telemetry"
)

// DefaultConfigPath is the path to the canonical run defaults file.
const DefaultConfigPath = "config/laptime.defaults.json"

const maxConfigSize = 1 * 1024 * 1024 // 1MB

// LapConfig is the run configuration for the lap timing tools. Pointer
// fields distinguish "not set" from zero values; the Get* methods supply the
// defaults for anything left out of the file.
type LapConfig struct {
	SampleInterval *float64 `json:"sample_interval,omitempty"`
	SectorsFile    *string  `json:"sectors_file,omitempty"`

	// Combinations is the reporting plan. Absent selects the built-in
	// plan; an empty list disables combining.
	Combinations laps.Plan `json:"combinations,omitempty"`
	Columns      []string  `json:"columns,omitempty"`

	CSVDelimiter *string `json:"csv_delimiter,omitempty"`
	DecimalComma *bool   `json:"decimal_comma,omitempty"`
	LatColumn    *string `json:"lat_column,omitempty"`
	LonColumn    *string `json:"lon_column,omitempty"`

	Workers *int    `json:"workers,omitempty"`
	DBPath  *string `json:"db_path,omitempty"`
}

// LoadLapConfig loads a LapConfig from a JSON file. Comments and trailing
// commas are accepted. Fields omitted from the file keep their defaults.
func LoadLapConfig(path string) (*LapConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseLapConfig(data)
}

// ParseLapConfig parses and validates config JSON.
func ParseLapConfig(data []byte) (*LapConfig, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg := &LapConfig{}
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *LapConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadLapConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LapConfig) Validate() error {
	if c.SampleInterval != nil && (!(*c.SampleInterval > 0) || math.IsInf(*c.SampleInterval, 0)) {
		return fmt.Errorf("sample_interval must be positive, got %f", *c.SampleInterval)
	}

	if c.CSVDelimiter != nil {
		d := *c.CSVDelimiter
		r, size := utf8.DecodeRuneInString(d)
		if size == 0 || size != len(d) || r == utf8.RuneError {
			return fmt.Errorf("csv_delimiter must be a single character, got %q", d)
		}
		if r == '"' || r == '\r' || r == '\n' {
			return fmt.Errorf("csv_delimiter %q is not allowed", d)
		}
		if r == ',' && c.GetDecimalComma() {
			return fmt.Errorf("csv_delimiter ',' conflicts with decimal_comma")
		}
	}

	if c.GetLatColumn() == c.GetLonColumn() {
		return fmt.Errorf("lat_column and lon_column must differ, both %q", c.GetLatColumn())
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.Combinations != nil {
		if err := c.Combinations.Validate(); err != nil {
			return fmt.Errorf("combinations: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if seen[col] {
			return fmt.Errorf("columns lists %q twice", col)
		}
		seen[col] = true
	}

	return nil
}

// GetSampleInterval returns the seconds per sample.
func (c *LapConfig) GetSampleInterval() float64 {
	if c.SampleInterval == nil {
		return laps.DefaultSampleInterval
	}
	return *c.SampleInterval
}

func (c *LapConfig) GetSectorsFile() string {
	if c.SectorsFile == nil {
		return "sectors.json"
	}
	return *c.SectorsFile
}

// GetPlan returns the configured combination plan, or the built-in one.
func (c *LapConfig) GetPlan() laps.Plan {
	if c.Combinations == nil {
		return laps.DefaultPlan()
	}
	return c.Combinations
}

func (c *LapConfig) GetCSVDelimiter() rune {
	if c.CSVDelimiter == nil {
		return ';'
	}
	r, _ := utf8.DecodeRuneInString(*c.CSVDelimiter)
	return r
}

func (c *LapConfig) GetDecimalComma() bool {
	if c.DecimalComma == nil {
		return true
	}
	return *c.DecimalComma
}

func (c *LapConfig) GetLatColumn() string {
	if c.LatColumn == nil || *c.LatColumn == "" {
		return "GPS_Lat"
	}
	return *c.LatColumn
}

func (c *LapConfig) GetLonColumn() string {
	if c.LonColumn == nil || *c.LonColumn == "" {
		return "GPS_Long"
	}
	return *c.LonColumn
}

// GetWorkers returns the number of files processed concurrently. Zero or
// unset means one per CPU.
func (c *LapConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetDBPath returns the SQLite path; empty disables the store.
func (c *LapConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// EngineConfig returns the engine parameters for this run.
func (c *LapConfig) EngineConfig() laps.EngineConfig {
	return laps.EngineConfig{
		SampleInterval: c.GetSampleInterval(),
		Plan:           c.GetPlan(),
		Columns:        append([]string(nil), c.Columns...),
	}
}

// CSVOptions returns the sample file parsing options for this run.
func (c *LapConfig) CSVOptions() telemetry.CSVOptions {
	return telemetry.CSVOptions{
		Delimiter:    c.GetCSVDelimiter(),
		DecimalComma: c.GetDecimalComma(),
		LatColumn:    c.GetLatColumn(),
		LonColumn:    c.GetLonColumn(),
	}
}
