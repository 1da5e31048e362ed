package validation

import (
	"errors"
	"testing"
)

// TestValidateStationID verifies trimming, length bounds and allowed characters.
func TestValidateStationID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid", "KCASANFR123", "KCASANFR123", nil},
		{"trimmed", "  KWAREDMO7 ", "KWAREDMO7", nil},
		{"underscore and hyphen", "my_station-1", "my_station-1", nil},
		{"empty", "", "", ErrStationIDEmpty},
		{"whitespace", "   ", "", ErrStationIDEmpty},
		{"too short", "AB", "", ErrStationIDInvalid},
		{"too long", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", "", ErrStationIDInvalid},
		{"bad chars", "K&STATION", "", ErrStationIDInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateStationID(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateStationID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateStationID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestValidateGeocode verifies format, ranges and canonicalization.
func TestValidateGeocode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"47.61,-122.33", "47.61,-122.33", false},
		{" 47.61 , -122.33 ", "47.61,-122.33", false},
		{"-90,180", "-90,180", false},
		{"91,0", "", true},
		{"0,181", "", true},
		{"47.61", "", true},
		{"a,b", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateGeocode(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrGeocodeInvalid) {
				t.Errorf("ValidateGeocode(%q) error = %v, want ErrGeocodeInvalid", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateGeocode(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ValidateGeocode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
