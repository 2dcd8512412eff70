// Package laps owns lap segmentation: the per-sample state machine that
// turns a classified GPS stream into per-lap sector times.
//
// Responsibilities: sector-boundary detection, start/finish handling,
// per-lap time accumulation, combination of raw sectors into reporting
// sectors, and the append-only lap table.
// Key types: Engine, Outcome, Accumulator, Aggregator, LapRecord, LapTable.
//
// Elapsed time is derived from sample position only: a sample at index i
// sits at i * SampleInterval seconds. Nothing in this package performs I/O
// and an Engine must not be shared between goroutines; independent streams
// use independent engines.
package laps
