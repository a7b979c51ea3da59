package pipeline

import (
	"sort"
)

// Range is the expected [Min, Max] band for a measured quantity.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the band, bounds inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Buffer is the near-threshold tolerance beyond either bound: values
// within 10% of the band width outside a bound warn instead of erroring.
func (r Range) Buffer() float64 {
	return (r.Max - r.Min) * 0.1
}

// quantityOrder fixes the evaluation order of quantities so validation
// output is deterministic across runs.
var quantityOrder = []string{
	"temperature",
	"humidity",
	"water_level",
	"nitrogen",
	"phosphorus",
	"potassium",
	"ph",
}

// RangeCatalog is the static per-location table of expected ranges.
type RangeCatalog struct {
	byLoc map[string]map[string]Range
}

// NewCatalog builds a catalog from a per-location range table.
func NewCatalog(ranges map[string]map[string]Range) *RangeCatalog {
	byLoc := make(map[string]map[string]Range, len(ranges))
	for loc, quantities := range ranges {
		m := make(map[string]Range, len(quantities))
		for q, r := range quantities {
			m[q] = r
		}
		byLoc[loc] = m
	}
	return &RangeCatalog{byLoc: byLoc}
}

// DefaultCatalog returns the production range table for the three
// configured farm sites.
func DefaultCatalog() *RangeCatalog {
	return NewCatalog(map[string]map[string]Range{
		"loc_1": {
			"temperature": {10, 50},
			"humidity":    {30, 90},
			"water_level": {0.5, 3.0},
			"nitrogen":    {80, 150},
			"phosphorus":  {40, 80},
			"potassium":   {40, 80},
			"ph":          {6.0, 8.0},
		},
		"loc_2": {
			"temperature": {15, 55},
			"humidity":    {25, 80},
			"water_level": {0.3, 2.5},
			"nitrogen":    {70, 140},
			"phosphorus":  {30, 70},
			"potassium":   {30, 70},
			"ph":          {6.5, 8.5},
		},
		"loc_3": {
			"temperature": {12, 52},
			"humidity":    {28, 85},
			"water_level": {0.4, 2.8},
			"nitrogen":    {75, 145},
			"phosphorus":  {35, 75},
			"potassium":   {35, 75},
			"ph":          {6.2, 8.2},
		},
	})
}

// Known reports whether the location is configured.
func (c *RangeCatalog) Known(locID string) bool {
	_, ok := c.byLoc[locID]
	return ok
}

// Locations returns the configured location IDs, sorted.
func (c *RangeCatalog) Locations() []string {
	locs := make([]string, 0, len(c.byLoc))
	for loc := range c.byLoc {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}

// Quantities returns the quantities configured for a location in the
// canonical evaluation order; quantities outside the canonical list are
// appended sorted.
func (c *RangeCatalog) Quantities(locID string) []string {
	ranges, ok := c.byLoc[locID]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(ranges))
	seen := make(map[string]bool, len(ranges))
	for _, q := range quantityOrder {
		if _, ok := ranges[q]; ok {
			out = append(out, q)
			seen[q] = true
		}
	}

	var extra []string
	for q := range ranges {
		if !seen[q] {
			extra = append(extra, q)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Lookup returns the expected range for a quantity at a location.
func (c *RangeCatalog) Lookup(locID, quantity string) (Range, bool) {
	ranges, ok := c.byLoc[locID]
	if !ok {
		return Range{}, false
	}
	r, ok := ranges[quantity]
	return r, ok
}
