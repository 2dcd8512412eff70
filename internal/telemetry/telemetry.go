// Package telemetry loads logger exports and sector layouts from disk.
//
// Sample files are semicolon separated CSV as written by the data logger's
// export tool, with decimal commas. Sector files are JSON lists of named
// bounding boxes.
package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dimchansky/utfbom"

	"github.com/banshee-data/laptime/internal/laps"
)

// ErrMalformedInput is wrapped by every loader error caused by file contents.
var ErrMalformedInput = errors.New("malformed input")

// CSVOptions controls how sample files are parsed.
type CSVOptions struct {
	Delimiter    rune
	DecimalComma bool
	LatColumn    string
	LonColumn    string
}

// DefaultCSVOptions matches the logger export format.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:    ';',
		DecimalComma: true,
		LatColumn:    "GPS_Lat",
		LonColumn:    "GPS_Long",
	}
}

func (o CSVOptions) withDefaults() CSVOptions {
	d := DefaultCSVOptions()
	if o.Delimiter == 0 {
		o.Delimiter = d.Delimiter
	}
	if o.LatColumn == "" {
		o.LatColumn = d.LatColumn
	}
	if o.LonColumn == "" {
		o.LonColumn = d.LonColumn
	}
	return o
}

// ReadSamples parses a sample CSV. Only the latitude and longitude columns
// are read; the sample time is implied by row order. Empty cells become NaN
// so the row still occupies its slot in the stream but matches no sector.
func ReadSamples(r io.Reader, opts CSVOptions) ([]laps.Sample, error) {
	opts = opts.withDefaults()
	if opts.DecimalComma && opts.Delimiter == ',' {
		return nil, fmt.Errorf("%w: decimal comma needs a delimiter other than ','", ErrMalformedInput)
	}

	cr := csv.NewReader(utfbom.SkipOnly(r))
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty sample file", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedInput, err)
	}
	latIdx, lonIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case opts.LatColumn:
			latIdx = i
		case opts.LonColumn:
			lonIdx = i
		}
	}
	if latIdx < 0 || lonIdx < 0 {
		return nil, fmt.Errorf("%w: header lacks %q or %q", ErrMalformedInput, opts.LatColumn, opts.LonColumn)
	}

	var samples []laps.Sample
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedInput, row, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		lat, err := parseCell(rec, latIdx, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d column %s: %v", ErrMalformedInput, row, opts.LatColumn, err)
		}
		lon, err := parseCell(rec, lonIdx, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d column %s: %v", ErrMalformedInput, row, opts.LonColumn, err)
		}
		samples = append(samples, laps.Sample{Lat: lat, Lon: lon})
	}
	return samples, nil
}

func parseCell(rec []string, idx int, opts CSVOptions) (float64, error) {
	if idx >= len(rec) {
		return math.NaN(), nil
	}
	return ParseDecimal(rec[idx], opts.DecimalComma)
}

// ParseDecimal parses a logger number. Blank cells yield NaN.
func ParseDecimal(s string, decimalComma bool) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	if decimalComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}
