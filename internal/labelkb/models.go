// Package labelkb resolves free-text coin labels against a curated
// knowledge base of known coin types.
//
// Matching is exact after normalization: a query hits an entry's key or one
// of its aliases, or it misses. Misses fall through to manual entry.
package labelkb

// Entry is one known coin type.
type Entry struct {
	Key        string `yaml:"key" json:"key"`
	Country    string `yaml:"country" json:"country"`
	Year       string `yaml:"year" json:"year"`
	CoinName   string `yaml:"coin_name" json:"coin_name"`
	GradeLabel string `yaml:"grade_label,omitempty" json:"grade_label,omitempty"`
	// SerialFormat overrides the derived serial for certificates created
	// from this entry, e.g. "R{consignment}-{seq}".
	SerialFormat string   `yaml:"serial_format,omitempty" json:"serial_format,omitempty"`
	Addl1        string   `yaml:"addl1,omitempty" json:"addl1,omitempty"`
	Addl2        string   `yaml:"addl2,omitempty" json:"addl2,omitempty"`
	Addl3        string   `yaml:"addl3,omitempty" json:"addl3,omitempty"`
	Aliases      []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Descriptors are the free-text fields a certificate or consignment item
// carries before coin detail is derived.
type Descriptors struct {
	Country    string
	Year       string
	CoinName   string
	GradeLabel string
	Addl1      string
	Addl2      string
	Addl3      string
}

// Apply fills every empty descriptor from the entry. Caller-supplied values
// always win.
func (e Entry) Apply(d Descriptors) Descriptors {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&d.Country, e.Country)
	fill(&d.Year, e.Year)
	fill(&d.CoinName, e.CoinName)
	fill(&d.GradeLabel, e.GradeLabel)
	fill(&d.Addl1, e.Addl1)
	fill(&d.Addl2, e.Addl2)
	fill(&d.Addl3, e.Addl3)
	return d
}
