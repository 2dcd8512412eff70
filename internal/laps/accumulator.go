package laps

import "gonum.org/v1/gonum/floats"

// Accumulator collects elapsed seconds per sector for one in-progress lap.
// Raw sector slots follow registry order; combined slots follow plan order
// and stay zero until Close.
type Accumulator struct {
	schema   *Schema
	times    []float64
	combined []float64
	closed   bool
}

func newAccumulator(schema *Schema) *Accumulator {
	return &Accumulator{
		schema:   schema,
		times:    make([]float64, len(schema.sectors)),
		combined: make([]float64, len(schema.targets)),
	}
}

// Credit adds seconds to a sector. Unknown sectors are ignored.
func (a *Accumulator) Credit(sector string, seconds float64) {
	if i, ok := a.schema.sectorIndex[sector]; ok {
		a.times[i] += seconds
	}
}

// Seconds returns the time credited to a raw sector so far.
func (a *Accumulator) Seconds(sector string) float64 {
	if i, ok := a.schema.sectorIndex[sector]; ok {
		return a.times[i]
	}
	return 0
}

// Combined returns the running total for a combination target. It is zero
// until the accumulator is closed.
func (a *Accumulator) Combined(target string) float64 {
	if i, ok := a.schema.targetIndex[target]; ok {
		return a.combined[i]
	}
	return 0
}

// Sum returns the sum of every slot, raw and combined.
func (a *Accumulator) Sum() float64 {
	return floats.Sum(a.times) + floats.Sum(a.combined)
}

// Close recomputes the combined totals from their sources. Sources missing
// from the registry contribute zero.
func (a *Accumulator) Close() {
	for ti, c := range a.schema.plan {
		total := 0.0
		for _, src := range c.Sources {
			total += a.Seconds(src)
		}
		a.combined[ti] = total
	}
	a.closed = true
}

// Closed reports whether Close has been called.
func (a *Accumulator) Closed() bool { return a.closed }
