package laps

import (
	"fmt"
	"math"

	"github.com/banshee-data/laptime/internal/sector"
)

// DefaultSampleInterval is the logger sample spacing in seconds (200 Hz).
const DefaultSampleInterval = 0.005

// Sample is one telemetry reading. Its time is implied by its position in
// the stream.
type Sample struct {
	Lat float64
	Lon float64
}

// Point returns the sample position.
func (s Sample) Point() sector.Point { return sector.Point{Lat: s.Lat, Lon: s.Lon} }

// OutcomeKind tags what a sample did to the engine state.
type OutcomeKind uint8

const (
	// Discarded samples arrive before the first start/finish entry.
	Discarded OutcomeKind = iota
	// NoTransition samples stay in the open sector, or match no sector and
	// are absorbed by it.
	NoTransition
	// SectorChange closes the open sector and opens another one.
	SectorChange
	// LapStart is the first start/finish entry of the stream.
	LapStart
	// LapBoundary is a start/finish re-entry that closes a lap.
	LapBoundary
)

func (k OutcomeKind) String() string {
	switch k {
	case Discarded:
		return "discarded"
	case NoTransition:
		return "no_transition"
	case SectorChange:
		return "sector_change"
	case LapStart:
		return "lap_start"
	case LapBoundary:
		return "lap_boundary"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(k))
	}
}

// Outcome describes the effect of one sample.
type Outcome struct {
	Kind  OutcomeKind
	Index int
	Match sector.Match
	// Closed is the sector whose time was credited, for SectorChange and
	// LapBoundary.
	Closed string
	// Record is the finished lap, for LapBoundary.
	Record *LapRecord
}

// EngineConfig parameterises an Engine.
type EngineConfig struct {
	// SampleInterval in seconds; zero selects DefaultSampleInterval. It must
	// otherwise be positive and finite.
	SampleInterval float64
	// Plan lists the reporting combinations; nil selects DefaultPlan.
	Plan Plan
	// Columns optionally fixes the reporting sector column order.
	Columns []string
}

// Engine is the lap segmentation state machine. It consumes samples in
// stream order and appends a LapRecord every time the start/finish sector
// is re-entered.
type Engine struct {
	classifier *sector.Classifier
	aggregator *Aggregator
	interval   float64

	next        int    // index of the next sample
	current     string // open sector, empty before the first SF entry
	lap         int    // -1 until the first SF entry
	sectorStart int
	lapStart    int
	acc         *Accumulator
	table       *LapTable
}

// NewEngine builds an engine for reg.
func NewEngine(reg *sector.Registry, cfg EngineConfig) (*Engine, error) {
	interval := cfg.SampleInterval
	if interval == 0 {
		interval = DefaultSampleInterval
	}
	if !(interval > 0) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("%w: sample interval must be positive, got %v", sector.ErrConfiguration, interval)
	}
	plan := cfg.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	agg, err := NewAggregator(reg, plan, cfg.Columns)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		classifier: sector.NewClassifier(reg),
		aggregator: agg,
		interval:   interval,
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.next = 0
	e.current = ""
	e.lap = -1
	e.sectorStart = 0
	e.lapStart = 0
	e.acc = nil
	e.table = NewLapTable(e.aggregator.schema.columns)
}

// SampleInterval returns the seconds per sample.
func (e *Engine) SampleInterval() float64 { return e.interval }

// Columns returns the reporting columns of the records this engine emits.
func (e *Engine) Columns() []string { return e.aggregator.Columns() }

// LapIndex returns the index of the lap in progress, -1 before the first
// start/finish entry.
func (e *Engine) LapIndex() int { return e.lap }

// CurrentSector returns the open sector, empty when none is open.
func (e *Engine) CurrentSector() string { return e.current }

// Table returns the laps emitted so far.
func (e *Engine) Table() *LapTable { return e.table }

// Feed processes the next sample.
func (e *Engine) Feed(s Sample) Outcome {
	i := e.next
	e.next++

	m := e.classifier.Classify(s.Point())
	out := Outcome{Index: i, Match: m}

	if e.lap < 0 {
		if !m.Is(sector.StartFinish) {
			out.Kind = Discarded
			return out
		}
		e.lap = 0
		e.lapStart = i
		e.acc = e.aggregator.NewAccumulator()
		e.open(sector.StartFinish, i)
		out.Kind = LapStart
		return out
	}

	if !m.Matched() || m.Name == e.current {
		out.Kind = NoTransition
		return out
	}

	out.Closed = e.current
	e.closeSector(i)

	if m.Name == sector.StartFinish {
		rec := e.aggregator.Finalize(e.lap, e.acc, Span{Start: e.lapStart, End: i}, false)
		e.table.Append(rec)
		e.lap++
		e.lapStart = i
		e.acc = e.aggregator.NewAccumulator()
		e.open(sector.StartFinish, i)
		out.Kind = LapBoundary
		out.Record = &rec
		return out
	}

	e.open(m.Name, i)
	out.Kind = SectorChange
	return out
}

func (e *Engine) open(name string, i int) {
	e.current = name
	e.sectorStart = i
}

func (e *Engine) closeSector(i int) {
	e.acc.Credit(e.current, float64(i-e.sectorStart)*e.interval)
}

// Finish flushes the lap in progress and returns the table. The open sector
// is credited up to the last sample and the lap is appended as a partial
// record, unless it was opened by the very last sample. The engine is reset
// and may be reused for another stream.
func (e *Engine) Finish() *LapTable {
	last := e.next - 1
	if e.lap >= 0 && last > e.lapStart {
		e.closeSector(last)
		rec := e.aggregator.Finalize(e.lap, e.acc, Span{Start: e.lapStart, End: last}, true)
		e.table.Append(rec)
	}
	t := e.table
	e.reset()
	return t
}

// Run feeds every sample and finishes the stream.
func (e *Engine) Run(samples []Sample) *LapTable {
	for _, s := range samples {
		e.Feed(s)
	}
	return e.Finish()
}
