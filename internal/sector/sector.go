// Package sector holds the track sector registry and the first-match
// point classifier used by lap segmentation.
//
// Sectors are axis-aligned GPS bounding boxes. Registry order is
// significant: when boxes overlap, the sector listed first wins.
package sector

import (
	"errors"
	"fmt"
	"math"
)

// StartFinish is the name of the sector whose re-entry closes one lap and
// opens the next.
const StartFinish = "SF"

// ErrConfiguration is returned when a sector definition is incomplete.
var ErrConfiguration = errors.New("sector configuration error")

// Point is a GPS position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Box is an axis-aligned bounding box spanned by two corners.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// NewBox builds the box spanned by two opposite corners in any order.
func NewBox(a, b Point) Box {
	return Box{
		MinLat: math.Min(a.Lat, b.Lat),
		MaxLat: math.Max(a.Lat, b.Lat),
		MinLon: math.Min(a.Lon, b.Lon),
		MaxLon: math.Max(a.Lon, b.Lon),
	}
}

// Contains reports whether p lies inside the box, edges included.
// NaN coordinates are never contained.
func (b Box) Contains(p Point) bool {
	return b.MinLat <= p.Lat && p.Lat <= b.MaxLat &&
		b.MinLon <= p.Lon && p.Lon <= b.MaxLon
}

// Sector is a named track region.
type Sector struct {
	Name    string
	Corner1 Point
	Corner2 Point
	Box     Box
}

// Definition is the configuration record for one sector. Coordinates are
// pointers so that a missing field can be told apart from a zero value.
type Definition struct {
	Sector  string   `json:"Sector"`
	GPSLat1 *float64 `json:"GPS_Lat1"`
	GPSLon1 *float64 `json:"GPS_Long1"`
	GPSLat2 *float64 `json:"GPS_Lat2"`
	GPSLon2 *float64 `json:"GPS_Long2"`
}

// Registry is the ordered, immutable list of configured sectors.
type Registry struct {
	sectors []Sector
	names   []string
	index   map[string]int
}

// NewRegistry validates the definitions and builds a registry preserving
// their order. Degenerate boxes are accepted as-is.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		sectors: make([]Sector, 0, len(defs)),
		index:   make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.Sector == "" {
			return nil, fmt.Errorf("%w: definition %d has no sector name", ErrConfiguration, i)
		}
		missing, nonFinite := checkFields(d)
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: sector %q is missing %v", ErrConfiguration, d.Sector, missing)
		}
		if len(nonFinite) > 0 {
			return nil, fmt.Errorf("%w: sector %q has blank or non-finite %v", ErrConfiguration, d.Sector, nonFinite)
		}
		c1 := Point{Lat: *d.GPSLat1, Lon: *d.GPSLon1}
		c2 := Point{Lat: *d.GPSLat2, Lon: *d.GPSLon2}
		r.sectors = append(r.sectors, Sector{
			Name:    d.Sector,
			Corner1: c1,
			Corner2: c2,
			Box:     NewBox(c1, c2),
		})
		// Duplicate names share one accumulator slot, first position wins.
		if _, seen := r.index[d.Sector]; !seen {
			r.index[d.Sector] = len(r.sectors) - 1
			r.names = append(r.names, d.Sector)
		}
	}
	return r, nil
}

// checkFields lists the corner fields that are absent and those holding NaN
// or an infinity. A blank corner in a layout file parses to NaN.
func checkFields(d Definition) (missing, nonFinite []string) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"GPS_Lat1", d.GPSLat1},
		{"GPS_Long1", d.GPSLon1},
		{"GPS_Lat2", d.GPSLat2},
		{"GPS_Long2", d.GPSLon2},
	}
	for _, f := range fields {
		switch {
		case f.v == nil:
			missing = append(missing, f.name)
		case math.IsNaN(*f.v) || math.IsInf(*f.v, 0):
			nonFinite = append(nonFinite, f.name)
		}
	}
	return missing, nonFinite
}

// Len returns the number of configured sectors.
func (r *Registry) Len() int { return len(r.sectors) }

// Sectors returns a copy of the sectors in configured order.
func (r *Registry) Sectors() []Sector {
	out := make([]Sector, len(r.sectors))
	copy(out, r.sectors)
	return out
}

// Names returns the distinct sector names in configured order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Lookup returns the sector with the given name.
func (r *Registry) Lookup(name string) (Sector, bool) {
	i, ok := r.index[name]
	if !ok {
		return Sector{}, false
	}
	return r.sectors[i], true
}

// HasStartFinish reports whether the registry defines the SF sector.
func (r *Registry) HasStartFinish() bool {
	_, ok := r.index[StartFinish]
	return ok
}
