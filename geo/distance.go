package geo

import "math"

const earthRadiusMiles = 3958.8

// DistanceMiles computes the great-circle distance between a zip3's
// centroid and an area code's centroid. Returns false if either key is
// absent from the table, matching the original's None-on-miss
// behavior for zip_to_area_code_distance.
func (t *Table) DistanceMiles(zip, areaCode string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	a, ok := t.Zips[zip]
	if !ok {
		return 0, false
	}
	b, ok := t.AreaCodes[areaCode]
	if !ok {
		return 0, false
	}
	return haversineMiles(a, b), true
}

func haversineMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMiles * c
}
