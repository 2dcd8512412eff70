package laps

import (
	"iter"
	"math"
)

// LapTable is the append-only, ordered collection of finished laps.
type LapTable struct {
	columns []string
	records []LapRecord
}

// NewLapTable returns an empty table with the given reporting columns.
func NewLapTable(columns []string) *LapTable {
	return &LapTable{columns: append([]string(nil), columns...)}
}

// Append adds a record at the end of the table.
func (t *LapTable) Append(r LapRecord) {
	t.records = append(t.records, r)
}

// Len returns the number of records.
func (t *LapTable) Len() int { return len(t.records) }

// At returns the i-th record in completion order.
func (t *LapTable) At(i int) LapRecord { return t.records[i] }

// Records returns a copy of the records in completion order.
func (t *LapTable) Records() []LapRecord {
	out := make([]LapRecord, len(t.records))
	copy(out, t.records)
	return out
}

// All iterates the records in lap order.
func (t *LapTable) All() iter.Seq2[int, LapRecord] {
	return func(yield func(int, LapRecord) bool) {
		for i, r := range t.records {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Columns returns the reporting columns, Lap first and Total_Lap last.
func (t *LapTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// SectorColumns returns the reporting columns without Lap and Total_Lap.
func (t *LapTable) SectorColumns() []string {
	var out []string
	for _, c := range t.columns {
		if c == ColumnLap || c == ColumnTotal {
			continue
		}
		out = append(out, c)
	}
	return out
}

// MinNonZero returns, per reporting sector column, the smallest non-zero
// value over every record. A zero sector time means "not recorded", so
// columns that are zero in every lap are left out of the result.
func (t *LapTable) MinNonZero() map[string]float64 {
	out := make(map[string]float64)
	for _, c := range t.SectorColumns() {
		best := math.Inf(1)
		for _, r := range t.records {
			v, ok := r.Value(c)
			if !ok || v == 0 {
				continue
			}
			if v < best {
				best = v
			}
		}
		if !math.IsInf(best, 1) {
			out[c] = best
		}
	}
	return out
}

// Complete returns a copy of the table without the partial trailing lap.
func (t *LapTable) Complete() *LapTable {
	c := NewLapTable(t.columns)
	for _, r := range t.records {
		if !r.Partial {
			c.Append(r)
		}
	}
	return c
}

// Fastest returns the complete lap with the smallest positive total.
func (t *LapTable) Fastest() (LapRecord, bool) {
	var (
		best  LapRecord
		found bool
	)
	for _, r := range t.records {
		if r.Partial || r.Total <= 0 {
			continue
		}
		if !found || r.Total < best.Total {
			best = r
			found = true
		}
	}
	return best, found
}
