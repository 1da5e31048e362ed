package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrStationIDEmpty is returned when a station id is empty or whitespace-only.
var ErrStationIDEmpty = errors.New("station id is required")

// ErrStationIDInvalid is returned when a station id has the wrong length or characters.
var ErrStationIDInvalid = errors.New("station id must be 3-32 letters, digits, '_' or '-'")

// ErrGeocodeInvalid is returned when a geocode is not "lat,lon" within range.
var ErrGeocodeInvalid = errors.New("geocode must be \"lat,lon\" in decimal degrees")

var stationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidateStationID trims the input and checks it against the PWS station id format
// shared by Weather Underground and PWS Weather. Returns the trimmed id.
func ValidateStationID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrStationIDEmpty
	}
	if !stationIDPattern.MatchString(s) {
		return "", ErrStationIDInvalid
	}
	return s, nil
}

// ValidateGeocode parses "lat,lon", checks both ranges and returns the canonical
// form without spaces.
func ValidateGeocode(input string) (string, error) {
	parts := strings.Split(strings.TrimSpace(input), ",")
	if len(parts) != 2 {
		return "", ErrGeocodeInvalid
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return "", fmt.Errorf("%w: latitude %q", ErrGeocodeInvalid, parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return "", fmt.Errorf("%w: longitude %q", ErrGeocodeInvalid, parts[1])
	}
	return strings.TrimSpace(parts[0]) + "," + strings.TrimSpace(parts[1]), nil
}
