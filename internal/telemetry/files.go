package telemetry

import (
	"fmt"

	"github.com/banshee-data/laptime/internal/fsutil"
	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/sector"
)

// LoadSamples opens path on fsys and parses it with ReadSamples.
func LoadSamples(fsys fsutil.FileSystem, path string, opts CSVOptions) ([]laps.Sample, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open samples: %w", err)
	}
	defer f.Close()

	samples, err := ReadSamples(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// LoadRegistryFile opens a sector layout on fsys and builds its registry.
func LoadRegistryFile(fsys fsutil.FileSystem, path string) (*sector.Registry, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sector layout: %w", err)
	}
	defer f.Close()

	reg, err := LoadRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
