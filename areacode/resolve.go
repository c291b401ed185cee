package areacode

import (
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/config"
)

const defaultGeoMode = "1"

var log = logrus.WithField("component", "areacode")

// Criteria is the slice of a request's latest_context relevant to
// location resolution: the URL the visitor most recently loaded,
// carrying the physical/interest location id query params.
type Criteria struct {
	URL string
}

// Resolve maps a request's location criteria to an ordered list of
// target area codes, or nil if no preference could be determined.
// Implements spec.md §4.3 steps 1-3.
func Resolve(cfg *config.Settings, table Table, criteria Criteria) ([]string, error) {
	if criteria.URL == "" {
		return nil, nil
	}
	parsed, err := url.Parse(criteria.URL)
	if err != nil {
		return nil, err
	}
	qs := parsed.Query()

	physicalParam := cfg.LocPhysicalURLParam
	if physicalParam == "" {
		physicalParam = "loc_physical_ms"
	}
	interestParam := cfg.LocInterestURLParam
	if interestParam == "" {
		interestParam = "loc_interest_ms"
	}

	locPhysical := qs.Get(physicalParam)
	locInterest := qs.Get(interestParam)
	if locPhysical == "" && locInterest == "" {
		return nil, nil
	}

	prefix := bingPrefix(cfg, qs)
	if locPhysical != "" {
		locPhysical = prefix + locPhysical
	}
	if locInterest != "" {
		locInterest = prefix + locInterest
	}

	if locPhysical != "" && locInterest == "" {
		return table[locPhysical].AreaCodes, nil
	}
	if locPhysical == "" && locInterest != "" {
		return table[locInterest].AreaCodes, nil
	}

	physical := table[locPhysical]
	interest := table[locInterest]
	if len(physical.AreaCodes) == 0 && len(interest.AreaCodes) == 0 {
		return nil, nil
	}

	geoMode := qs.Get("gm")
	if geoMode == "" {
		geoMode = defaultGeoMode
	}

	switch geoMode {
	case "1":
		if physical.State == "" || interest.State == "" || physical.State != interest.State {
			return physical.AreaCodes, nil
		}
		return interest.AreaCodes, nil
	case "2":
		return physical.AreaCodes, nil
	case "3":
		return interest.AreaCodes, nil
	default:
		log.Warnf("unknown geo_mode %q for url %s", geoMode, criteria.URL)
		return nil, nil
	}
}

func bingPrefix(cfg *config.Settings, qs url.Values) string {
	if cfg.SessionSourceParam == "" || len(cfg.BingSourceIDs) == 0 {
		return ""
	}
	source := qs.Get(cfg.SessionSourceParam)
	if source == "" {
		return ""
	}
	for _, id := range cfg.BingSourceIDs {
		if id == source {
			return "bing-"
		}
	}
	return ""
}
