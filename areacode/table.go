// Package areacode implements the location-criteria selector (C4):
// resolving a request's physical/interest location ids to an ordered
// list of target area codes for area-code pool leasing.
package areacode

import "github.com/totalhack/zar-numberpool/filer"

// Entry is one criteria-table row: the area codes serving a location
// id, in priority order, and the two-letter state they belong to (used
// to break ties between physical and interest location ids).
type Entry struct {
	AreaCodes []string `json:"area_codes"`
	State     string   `json:"state"`
}

// Table maps an external location id (optionally "bing-" prefixed) to
// its criteria Entry.
type Table map[string]Entry

// LoadTable reads the criteria table from a JSON file via the given
// filer, matching the format the original process loaded from
// CRITERIA_AREA_CODES_PATH at startup.
func LoadTable(f filer.JsonFiler, path string) (Table, error) {
	var t Table
	if err := f.Load(path, &t); err != nil {
		return nil, err
	}
	return t, nil
}
