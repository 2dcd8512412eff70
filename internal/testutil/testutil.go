// Package testutil provides shared test utilities and fixtures.
//
// Fixtures describe a synthetic strip track: sector k occupies the box
// lat [2k, 2k+1] x lon [0, 1], so sector centres never touch a neighbour
// and the gaps between boxes are off-track.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/banshee-data/laptime/internal/sector"
)

// OffTrack is a name accepted by Route for a point outside every sector.
const OffTrack = ""

// ChennaiSectors lists the sector names of the Chennai layout in
// configuration order.
var ChennaiSectors = []string{
	"SF", "T1", "T2", "T3", "SA", "SB", "SC",
	"T4_5", "T6_7", "T8", "T9", "T10E", "T10_11", "T12",
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Def builds a complete sector definition.
func Def(name string, lat1, lon1, lat2, lon2 float64) sector.Definition {
	return sector.Definition{
		Sector:  name,
		GPSLat1: Float(lat1),
		GPSLon1: Float(lon1),
		GPSLat2: Float(lat2),
		GPSLon2: Float(lon2),
	}
}

// StripTrack lays the named sectors out as disjoint boxes in order.
func StripTrack(names ...string) []sector.Definition {
	defs := make([]sector.Definition, len(names))
	for k, n := range names {
		lat := float64(2 * k)
		defs[k] = Def(n, lat, 0, lat+1, 1)
	}
	return defs
}

// Registry builds a registry from defs and fails the test on error.
func Registry(t testing.TB, defs []sector.Definition) *sector.Registry {
	t.Helper()
	reg, err := sector.NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

// Route returns the centre point of each named sector of defs in turn.
// OffTrack yields a point outside every box.
func Route(defs []sector.Definition, names ...string) []sector.Point {
	centres := make(map[string]sector.Point, len(defs))
	for _, d := range defs {
		if _, ok := centres[d.Sector]; ok {
			continue
		}
		centres[d.Sector] = sector.Point{
			Lat: (*d.GPSLat1 + *d.GPSLat2) / 2,
			Lon: (*d.GPSLon1 + *d.GPSLon2) / 2,
		}
	}
	pts := make([]sector.Point, len(names))
	for i, n := range names {
		if n == OffTrack {
			pts[i] = sector.Point{Lat: -50, Lon: -50}
			continue
		}
		p, ok := centres[n]
		if !ok {
			panic(fmt.Sprintf("testutil: unknown sector %q", n))
		}
		pts[i] = p
	}
	return pts
}

// Repeat returns name n times, for building dwell sequences.
func Repeat(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

// SamplesCSV renders points as a logger export: semicolon separated with
// decimal commas and a few unrelated columns.
func SamplesCSV(points []sector.Point) string {
	var b strings.Builder
	b.WriteString("Time;GPS_Lat;GPS_Long;Speed\n")
	for i, p := range points {
		row := fmt.Sprintf("%.3f;%.6f;%.6f;%.1f\n", float64(i)*0.005, p.Lat, p.Lon, 120.0)
		b.WriteString(strings.ReplaceAll(row, ".", ","))
	}
	return b.String()
}

// SectorsJSON renders defs the way sector files are exported, with
// coordinates as decimal-comma strings.
func SectorsJSON(defs []sector.Definition) string {
	var b strings.Builder
	b.WriteString("[\n")
	for i, d := range defs {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, `  {"Sector": %q, "GPS_Lat1": %q, "GPS_Long1": %q, "GPS_Lat2": %q, "GPS_Long2": %q}`,
			d.Sector, comma(*d.GPSLat1), comma(*d.GPSLon1), comma(*d.GPSLat2), comma(*d.GPSLon2))
	}
	b.WriteString("\n]\n")
	return b.String()
}

func comma(v float64) string {
	return strings.ReplaceAll(fmt.Sprintf("%.6f", v), ".", ",")
}
