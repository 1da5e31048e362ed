// Package geocode resolves the "lat,lon" used by the daily forecast endpoint.
package geocode

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/validation"
)

var ErrNoResult = errors.New("address did not resolve to a location")

// Address is a postal address to geocode when no explicit geocode is configured.
type Address struct {
	City    string
	State   string
	Country string
}

func (a Address) empty() bool {
	return strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.State) == "" && strings.TrimSpace(a.Country) == ""
}

type Config struct {
	Geocode      string // explicit "lat,lon", wins over Address
	Address      Address
	GoogleAPIKey string
}

// lookup is swapped in tests. geocoder.ApiKey is package state, hence the lock.
var (
	lookupMu sync.Mutex
	lookup   = func(apiKey string, addr Address) (float64, float64, error) {
		geocoder.ApiKey = apiKey
		loc, err := geocoder.Geocoding(geocoder.Address{
			City:    addr.City,
			State:   addr.State,
			Country: addr.Country,
		})
		if err != nil {
			return 0, 0, err
		}
		return loc.Latitude, loc.Longitude, nil
	}
)

// Resolve returns the geocode to use for forecasts, or "" when forecasts are disabled.
func Resolve(cfg Config, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Geocode != "" {
		return validation.ValidateGeocode(cfg.Geocode)
	}
	if cfg.Address.empty() || cfg.GoogleAPIKey == "" {
		logger.Info("no geocode configured, forecasts disabled")
		return "", nil
	}

	lookupMu.Lock()
	lat, lon, err := lookup(cfg.GoogleAPIKey, cfg.Address)
	lookupMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("geocode %s, %s, %s: %w", cfg.Address.City, cfg.Address.State, cfg.Address.Country, err)
	}
	if lat == 0 && lon == 0 {
		return "", fmt.Errorf("geocode %s: %w", cfg.Address.City, ErrNoResult)
	}

	geocode := fmt.Sprintf("%.4f,%.4f", lat, lon)
	logger.Info("resolved forecast geocode",
		zap.String("city", cfg.Address.City),
		zap.String("geocode", geocode),
	)
	return geocode, nil
}
