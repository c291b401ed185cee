// Package geo supplements spec.md §4.4's zip-to-area-code distance
// enrichment, which the distilled spec references but the filtered
// original_source drops (it imported the computation from an app.geo
// module outside the distillation). Grounded on spec.md §4.4 steps 4
// and 8 alone: a static zip3/area-code centroid table and a haversine
// distance over it.
package geo

import "github.com/totalhack/zar-numberpool/filer"

// Point is a latitude/longitude centroid.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Table holds the centroids used to approximate distance between a
// caller's zip code and a leased number's area code: zip3 prefixes on
// one side, area codes on the other.
type Table struct {
	Zips      map[string]Point `json:"zips"`
	AreaCodes map[string]Point `json:"area_codes"`
}

// LoadTable reads the centroid table from a JSON file.
func LoadTable(f filer.JsonFiler, path string) (*Table, error) {
	var t Table
	if err := f.Load(path, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
