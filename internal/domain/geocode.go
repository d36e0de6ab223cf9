package domain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
)

// coordinateRe matches the location strings produced by browser geolocation
// pre-fill: "Lat: -25.7479, Lng: 28.2293", "Nearby (-25.7479, 28.2293)", or a
// bare "-25.7479, 28.2293".
var coordinateRe = regexp.MustCompile(`(?i)^\s*(?:lat:\s*|nearby\s*\(\s*)?(-?\d{1,2}(?:\.\d+)?)\s*,\s*(?:lng:\s*)?(-?\d{1,3}(?:\.\d+)?)\s*\)?\s*$`)

// ParseCoordinates extracts a coordinate pair from a location string.
func ParseCoordinates(location string) (Geo, bool) {
	m := coordinateRe.FindStringSubmatch(location)
	if len(m) != 3 {
		return Geo{}, false
	}
	lat, errLat := strconv.ParseFloat(m[1], 64)
	lon, errLon := strconv.ParseFloat(m[2], 64)
	if errLat != nil || errLon != nil || !ValidCoordinates(lat, lon) {
		return Geo{}, false
	}
	return Geo{Lat: lat, Lon: lon}, true
}

// ValidCoordinates reports whether lat/lon lie within WGS-84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// FormatCoordinates renders a geolocation fix the way the report form pre-fills it.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("Lat: %.4f, Lng: %.4f", lat, lon)
}

// EnrichLocation attaches coordinates and a place name to a report. The
// free-text Location is never modified. If geocoder is nil the report is
// returned with only locally parsed coordinates; provider failures set
// GeoSource to "failed" (graceful degradation).
func EnrichLocation(ctx context.Context, r Report, geocoder Geocoder, logger *slog.Logger) Report {
	geo, hasCoords := ParseCoordinates(r.Location)
	if hasCoords {
		r.Geo = &geo
	}
	if geocoder == nil {
		return r
	}

	// Reverse geocode: coordinates -> place name.
	if hasCoords {
		result, err := geocoder.ReverseGeocode(ctx, geo.Lat, geo.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"report_id", r.ID,
				"lat", geo.Lat,
				"lng", geo.Lon,
				"error", err,
			)
			r.GeoSource = "failed"
			return r
		}
		if result.PlaceName != "" {
			r.PlaceName = result.PlaceName
			r.GeoSource = "reverse"
			return r
		}
		r.GeoSource = "original"
		return r
	}

	// Forward geocode: place name -> coordinates.
	result, err := geocoder.ForwardGeocode(ctx, r.Location)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"report_id", r.ID,
			"location", r.Location,
			"error", err,
		)
		r.GeoSource = "failed"
		return r
	}
	if result.Lat != 0 || result.Lon != 0 {
		r.Geo = &Geo{Lat: result.Lat, Lon: result.Lon}
		r.PlaceName = result.PlaceName
		r.GeoSource = "forward"
		return r
	}
	r.GeoSource = "original"
	return r
}
