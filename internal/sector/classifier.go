package sector

// Match is the result of classifying a point: either a matched sector or
// NoMatch.
type Match struct {
	// Name of the matched sector, empty for NoMatch.
	Name string
	// Position of the matched sector in registry order, -1 for NoMatch.
	Position int
}

// NoMatch is returned for points outside every configured sector.
var NoMatch = Match{Position: -1}

// Matched reports whether the point fell inside a sector.
func (m Match) Matched() bool { return m.Position >= 0 }

// Is reports whether the match is the named sector.
func (m Match) Is(name string) bool { return m.Matched() && m.Name == name }

func (m Match) String() string {
	if !m.Matched() {
		return "none"
	}
	return m.Name
}

// Classifier maps points to sectors using a first-match scan over the
// registry. Overlaps are resolved by registry order only, never by area or
// distance.
type Classifier struct {
	registry *Registry
}

// NewClassifier returns a classifier over reg.
func NewClassifier(reg *Registry) *Classifier {
	return &Classifier{registry: reg}
}

// Registry returns the registry the classifier scans.
func (c *Classifier) Registry() *Registry { return c.registry }

// Classify returns the first sector in registry order containing p.
func (c *Classifier) Classify(p Point) Match {
	for i := range c.registry.sectors {
		s := &c.registry.sectors[i]
		if s.Box.Contains(p) {
			return Match{Name: s.Name, Position: i}
		}
	}
	return NoMatch
}
