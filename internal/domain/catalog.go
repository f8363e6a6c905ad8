package domain

import (
	"sort"
)

// AliasPattern produces one alias per station: Prefix + name + Suffix.
type AliasPattern struct {
	Prefix string
	Suffix string
}

func (p AliasPattern) apply(name string) string {
	return p.Prefix + name + p.Suffix
}

// Catalog is the immutable station reference for one template.
type Catalog struct {
	stations []Station
	names    map[int]string
	byName   map[string]int
	aliases  map[string]int
	keys     []string
}

// NewCatalog builds the alias index. Stations are processed in sheet order and
// the first station to claim a normalized alias owns it. Overrides map a label
// onto a canonical station name; they are applied after the generated aliases,
// in sorted label order, and never displace an existing alias. Overrides naming
// an unknown station are ignored.
func NewCatalog(stations []Station, patterns []AliasPattern, overrides map[string]string) *Catalog {
	c := &Catalog{
		names:   make(map[int]string, len(stations)),
		byName:  make(map[string]int, len(stations)),
		aliases: make(map[string]int, len(stations)*(len(patterns)+1)),
	}

	for _, st := range stations {
		if _, dup := c.names[st.Code]; dup {
			continue
		}
		c.stations = append(c.stations, st)
		c.names[st.Code] = st.Name

		key := Normalize(st.Name)
		if _, ok := c.byName[key]; !ok && key != "" {
			c.byName[key] = st.Code
		}
		c.claim(key, st.Code)
		for _, p := range patterns {
			c.claim(Normalize(p.apply(st.Name)), st.Code)
		}
		if st.VarName != "" {
			c.claim(Normalize(st.VarName), st.Code)
		}
	}

	labels := make([]string, 0, len(overrides))
	for label := range overrides {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		code, ok := c.byName[Normalize(overrides[label])]
		if !ok {
			continue
		}
		c.claim(Normalize(label), code)
	}

	c.keys = make([]string, 0, len(c.aliases))
	for k := range c.aliases {
		c.keys = append(c.keys, k)
	}
	sort.Strings(c.keys)
	return c
}

func (c *Catalog) claim(alias string, code int) {
	if alias == "" {
		return
	}
	if _, taken := c.aliases[alias]; taken {
		return
	}
	c.aliases[alias] = code
}

// Lookup returns the station owning a normalized alias.
func (c *Catalog) Lookup(alias string) (int, bool) {
	code, ok := c.aliases[alias]
	return code, ok
}

// Aliases returns every normalized alias in ascending order.
func (c *Catalog) Aliases() []string {
	return c.keys
}

// Name returns the canonical name of a station code.
func (c *Catalog) Name(code int) (string, bool) {
	name, ok := c.names[code]
	return name, ok
}

// Stations returns the catalog entries in sheet order.
func (c *Catalog) Stations() []Station {
	return c.stations
}

// Codes returns every station code in ascending order.
func (c *Catalog) Codes() []int {
	codes := make([]int, 0, len(c.names))
	for code := range c.names {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Len reports the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}
