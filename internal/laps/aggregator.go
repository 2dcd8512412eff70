package laps

import (
	"fmt"

	"github.com/banshee-data/laptime/internal/sector"
	"gonum.org/v1/gonum/floats"
)

// Reporting column names that frame every lap row.
const (
	ColumnLap   = "Lap"
	ColumnTotal = "Total_Lap"
)

// Combination folds several raw sectors into one reporting sector.
type Combination struct {
	Target  string   `json:"target"`
	Sources []string `json:"sources"`
}

// Plan is an ordered list of combinations.
type Plan []Combination

// DefaultPlan returns the combinations used for the Chennai layout:
// S = SA + SB + SC and T10_T11 = T10E + T10_11.
func DefaultPlan() Plan {
	return Plan{
		{Target: "S", Sources: []string{"SA", "SB", "SC"}},
		{Target: "T10_T11", Sources: []string{"T10E", "T10_11"}},
	}
}

// DefaultColumns returns the Chennai report order between Lap and
// Total_Lap. Without an explicit column list the order is derived from the
// sector layout instead: each target takes the place of its first source, so
// a layout file listed in a different order reorders the report.
func DefaultColumns() []string {
	return []string{"SF", "T1", "T2", "T3", "S", "T4_5", "T6_7", "T8", "T9", "T10_T11", "T12"}
}

// Validate checks that targets are named, unique, and that every source
// feeds at most one target.
func (p Plan) Validate() error {
	targets := make(map[string]bool, len(p))
	sources := make(map[string]string)
	for _, c := range p {
		switch c.Target {
		case "":
			return fmt.Errorf("%w: combination without target", sector.ErrConfiguration)
		case ColumnLap, ColumnTotal:
			return fmt.Errorf("%w: combination target %q is reserved", sector.ErrConfiguration, c.Target)
		}
		if targets[c.Target] {
			return fmt.Errorf("%w: duplicate combination target %q", sector.ErrConfiguration, c.Target)
		}
		targets[c.Target] = true
		if len(c.Sources) == 0 {
			return fmt.Errorf("%w: combination %q has no sources", sector.ErrConfiguration, c.Target)
		}
		for _, src := range c.Sources {
			if prev, ok := sources[src]; ok {
				return fmt.Errorf("%w: sector %q feeds both %q and %q", sector.ErrConfiguration, src, prev, c.Target)
			}
			sources[src] = c.Target
		}
	}
	return nil
}

// Schema is the fixed layout shared by accumulators and records built for
// one registry and plan. It is read-only after construction.
type Schema struct {
	sectors     []string
	sectorIndex map[string]int
	plan        Plan
	targets     []string
	targetIndex map[string]int
	sourceOf    map[string]string
	columns     []string
}

// Columns returns the reporting columns, Lap first and Total_Lap last.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Sectors returns the raw sector names in registry order.
func (s *Schema) Sectors() []string {
	out := make([]string, len(s.sectors))
	copy(out, s.sectors)
	return out
}

// Aggregator turns closed accumulators into lap records.
type Aggregator struct {
	schema *Schema
}

// NewAggregator builds the reporting schema for reg and plan. Each
// combination target takes the column position of its first source present
// in the registry; targets with no source in the registry are appended
// after the registry sectors. A non-empty columns list overrides the
// derived order and must be a permutation of it.
func NewAggregator(reg *sector.Registry, plan Plan, columns []string) (*Aggregator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	names := reg.Names()
	s := &Schema{
		sectors:     names,
		sectorIndex: make(map[string]int, len(names)),
		plan:        plan,
		targetIndex: make(map[string]int, len(plan)),
		sourceOf:    make(map[string]string),
	}
	for i, n := range names {
		s.sectorIndex[n] = i
	}
	for i, c := range plan {
		if _, clash := s.sectorIndex[c.Target]; clash && !contains(c.Sources, c.Target) {
			return nil, fmt.Errorf("%w: combination target %q collides with a configured sector", sector.ErrConfiguration, c.Target)
		}
		s.targets = append(s.targets, c.Target)
		s.targetIndex[c.Target] = i
		for _, src := range c.Sources {
			s.sourceOf[src] = c.Target
		}
	}

	derived := deriveColumns(names, s.targets, s.sourceOf)
	if len(columns) > 0 {
		if err := checkPermutation(derived, columns); err != nil {
			return nil, err
		}
		derived = append([]string(nil), columns...)
	}
	s.columns = make([]string, 0, len(derived)+2)
	s.columns = append(s.columns, ColumnLap)
	s.columns = append(s.columns, derived...)
	s.columns = append(s.columns, ColumnTotal)

	return &Aggregator{schema: s}, nil
}

func deriveColumns(sectors, targets []string, sourceOf map[string]string) []string {
	placed := make(map[string]bool, len(targets))
	var cols []string
	for _, name := range sectors {
		target, isSource := sourceOf[name]
		if !isSource {
			cols = append(cols, name)
			continue
		}
		if !placed[target] {
			cols = append(cols, target)
			placed[target] = true
		}
	}
	for _, t := range targets {
		if !placed[t] {
			cols = append(cols, t)
		}
	}
	return cols
}

func checkPermutation(want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: column order lists %d columns, want %d (%v)", sector.ErrConfiguration, len(got), len(want), want)
	}
	seen := make(map[string]int, len(want))
	for _, c := range want {
		seen[c]++
	}
	for _, c := range got {
		if seen[c] == 0 {
			return fmt.Errorf("%w: column %q is not a reporting column (%v)", sector.ErrConfiguration, c, want)
		}
		seen[c]--
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Schema returns the aggregator's reporting schema.
func (a *Aggregator) Schema() *Schema { return a.schema }

// Columns returns the reporting columns.
func (a *Aggregator) Columns() []string { return a.schema.Columns() }

// NewAccumulator returns an all-zero accumulator for a fresh lap.
func (a *Aggregator) NewAccumulator() *Accumulator { return newAccumulator(a.schema) }

// Finalize closes acc and produces the immutable record for lap. The total
// is the sum of every accumulator slot minus the combined totals, which
// leaves exactly the raw sector times.
func (a *Aggregator) Finalize(lap int, acc *Accumulator, span Span, partial bool) LapRecord {
	acc.Close()
	combined := floats.Sum(acc.combined)
	r := LapRecord{
		Lap:      lap,
		Total:    acc.Sum() - combined,
		Partial:  partial,
		Span:     span,
		schema:   a.schema,
		raw:      append([]float64(nil), acc.times...),
		combined: append([]float64(nil), acc.combined...),
	}
	return r
}

// Span is the sample index range a lap covers, both ends inclusive.
type Span struct {
	Start int
	End   int
}

// LapRecord is one finished lap. Records are immutable; accessors return
// copies.
type LapRecord struct {
	Lap     int
	Total   float64
	Partial bool
	Span    Span

	schema   *Schema
	raw      []float64
	combined []float64
}

// Sector returns the raw time of a configured sector, including sectors that
// only appear folded into a combination.
func (r LapRecord) Sector(name string) (float64, bool) {
	if r.schema == nil {
		return 0, false
	}
	i, ok := r.schema.sectorIndex[name]
	if !ok {
		return 0, false
	}
	return r.raw[i], true
}

// Combined returns the total of a combination target.
func (r LapRecord) Combined(name string) (float64, bool) {
	if r.schema == nil {
		return 0, false
	}
	i, ok := r.schema.targetIndex[name]
	if !ok {
		return 0, false
	}
	return r.combined[i], true
}

// Value returns the reporting value of a column. Lap yields the lap index.
func (r LapRecord) Value(column string) (float64, bool) {
	switch column {
	case ColumnLap:
		return float64(r.Lap), true
	case ColumnTotal:
		return r.Total, true
	}
	if v, ok := r.Combined(column); ok {
		return v, true
	}
	return r.Sector(column)
}

// Columns returns the reporting columns of the record.
func (r LapRecord) Columns() []string {
	if r.schema == nil {
		return nil
	}
	return r.schema.Columns()
}

// Row returns the record's values in reporting column order.
func (r LapRecord) Row() []float64 {
	if r.schema == nil {
		return nil
	}
	row := make([]float64, len(r.schema.columns))
	for i, c := range r.schema.columns {
		row[i], _ = r.Value(c)
	}
	return row
}

// RawTotals returns a copy of the per-sector times keyed by sector name.
func (r LapRecord) RawTotals() map[string]float64 {
	out := make(map[string]float64, len(r.raw))
	if r.schema == nil {
		return out
	}
	for i, name := range r.schema.sectors {
		out[name] = r.raw[i]
	}
	return out
}

// CombinedTotals returns a copy of the combination totals keyed by target.
func (r LapRecord) CombinedTotals() map[string]float64 {
	out := make(map[string]float64, len(r.combined))
	if r.schema == nil {
		return out
	}
	for i, name := range r.schema.targets {
		out[name] = r.combined[i]
	}
	return out
}
