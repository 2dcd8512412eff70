package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dimchansky/utfbom"

	"github.com/banshee-data/laptime/internal/sector"
)

// Coordinate is a sector corner value. The layout files are exported from
// spreadsheets, so values arrive either as JSON numbers or as strings with a
// decimal comma.
type Coordinate float64

// UnmarshalJSON accepts 12.5, "12.5" and "12,5".
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseDecimal(s, true)
		if err != nil {
			return err
		}
		*c = Coordinate(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Coordinate(v)
	return nil
}

type sectorEntry struct {
	Sector   string      `json:"Sector"`
	GPSLat1  *Coordinate `json:"GPS_Lat1"`
	GPSLong1 *Coordinate `json:"GPS_Long1"`
	GPSLat2  *Coordinate `json:"GPS_Lat2"`
	GPSLong2 *Coordinate `json:"GPS_Long2"`
}

func (c *Coordinate) float() *float64 {
	if c == nil {
		return nil
	}
	v := float64(*c)
	return &v
}

// ReadSectors parses a sector layout file in file order. Missing corner
// fields are left nil so that sector.NewRegistry can report them.
func ReadSectors(r io.Reader) ([]sector.Definition, error) {
	var entries []sectorEntry
	dec := json.NewDecoder(utfbom.SkipOnly(r))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: sector layout: %v", ErrMalformedInput, err)
	}
	defs := make([]sector.Definition, len(entries))
	for i, e := range entries {
		defs[i] = sector.Definition{
			Sector:  e.Sector,
			GPSLat1: e.GPSLat1.float(),
			GPSLon1: e.GPSLong1.float(),
			GPSLat2: e.GPSLat2.float(),
			GPSLon2: e.GPSLong2.float(),
		}
	}
	return defs, nil
}

// LoadRegistry reads a layout and builds the registry from it.
func LoadRegistry(r io.Reader) (*sector.Registry, error) {
	defs, err := ReadSectors(r)
	if err != nil {
		return nil, err
	}
	return sector.NewRegistry(defs)
}
