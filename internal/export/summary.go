// Package export writes lap tables for downstream tools and summarises them.
package export

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/laptime/internal/laps"
)

// ColumnValue is one named value in reporting column order.
type ColumnValue struct {
	Column  string  `json:"column"`
	Seconds float64 `json:"seconds"`
}

// LapRef points at one lap of a table.
type LapRef struct {
	Lap   int     `json:"lap"`
	Total float64 `json:"total"`
}

// Summary condenses a lap table. The ideal lap is the sum of the best
// non-zero value of every reporting sector column; mean and standard
// deviation are over complete laps only.
type Summary struct {
	Laps         int           `json:"laps"`
	CompleteLaps int           `json:"complete_laps"`
	Fastest      *LapRef       `json:"fastest,omitempty"`
	Ideal        float64       `json:"ideal"`
	IdealSectors []ColumnValue `json:"ideal_sectors"`
	MeanLap      float64       `json:"mean_lap"`
	StdDevLap    float64       `json:"stddev_lap"`
}

// Summarize computes the summary of table.
func Summarize(table *laps.LapTable) Summary {
	s := Summary{Laps: table.Len(), IdealSectors: []ColumnValue{}}

	mins := table.MinNonZero()
	var best []float64
	for _, col := range table.SectorColumns() {
		v, ok := mins[col]
		if !ok {
			continue
		}
		s.IdealSectors = append(s.IdealSectors, ColumnValue{Column: col, Seconds: v})
		best = append(best, v)
	}
	s.Ideal = floats.Sum(best)

	if r, ok := table.Fastest(); ok {
		s.Fastest = &LapRef{Lap: r.Lap, Total: r.Total}
	}

	complete := table.Complete()
	s.CompleteLaps = complete.Len()
	totals := make([]float64, 0, complete.Len())
	for _, r := range complete.All() {
		totals = append(totals, r.Total)
	}
	switch len(totals) {
	case 0:
	case 1:
		s.MeanLap = totals[0]
	default:
		s.MeanLap, s.StdDevLap = stat.MeanStdDev(totals, nil)
	}
	return s
}
