package geocode

import (
	"errors"
	"testing"

	"github.com/kjstillabower/weather-bridge/internal/validation"
)

func stubLookup(t *testing.T, fn func(apiKey string, addr Address) (float64, float64, error)) {
	t.Helper()
	orig := lookup
	lookup = fn
	t.Cleanup(func() { lookup = orig })
}

// TestResolve verifies precedence: explicit geocode, then address lookup, then disabled.
func TestResolve(t *testing.T) {
	calls := 0
	stubLookup(t, func(apiKey string, addr Address) (float64, float64, error) {
		calls++
		if apiKey != "google-key" || addr.City != "Boston" {
			t.Errorf("lookup(%q, %+v)", apiKey, addr)
		}
		return 42.360082, -71.05888, nil
	})

	tests := []struct {
		name      string
		cfg       Config
		want      string
		wantErr   error
		wantCalls int
	}{
		{"explicit wins", Config{Geocode: " 42.36, -71.06 ", Address: Address{City: "Boston"}, GoogleAPIKey: "google-key"}, "42.36,-71.06", nil, 0},
		{"invalid explicit", Config{Geocode: "200,0"}, "", validation.ErrGeocodeInvalid, 0},
		{"address lookup", Config{Address: Address{City: "Boston", State: "MA", Country: "US"}, GoogleAPIKey: "google-key"}, "42.3601,-71.0589", nil, 1},
		{"address without key", Config{Address: Address{City: "Boston"}}, "", nil, 0},
		{"nothing configured", Config{}, "", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			got, err := Resolve(tt.cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("lookup calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestResolve_LookupFailures(t *testing.T) {
	cfg := Config{Address: Address{City: "Nowhere"}, GoogleAPIKey: "google-key"}

	stubLookup(t, func(string, Address) (float64, float64, error) { return 0, 0, errors.New("ZERO_RESULTS") })
	if _, err := Resolve(cfg, nil); err == nil {
		t.Error("expected lookup error")
	}

	stubLookup(t, func(string, Address) (float64, float64, error) { return 0, 0, nil })
	if _, err := Resolve(cfg, nil); !errors.Is(err, ErrNoResult) {
		t.Errorf("Resolve() error = %v, want ErrNoResult", err)
	}
}
