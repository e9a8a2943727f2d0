package provenance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	maxLongitude = decimal.NewFromInt(180)
	maxLatitude  = decimal.NewFromInt(90)
)

// ValidateCoordinates checks that longitude and latitude are decimal strings
// within range. Empty strings are allowed (location unknown).
func ValidateCoordinates(longitude, latitude string) error {
	if longitude == "" && latitude == "" {
		return nil
	}
	lon, err := decimal.NewFromString(longitude)
	if err != nil {
		return fmt.Errorf("%w: longitude %q is not a decimal", ErrInvalidInput, longitude)
	}
	lat, err := decimal.NewFromString(latitude)
	if err != nil {
		return fmt.Errorf("%w: latitude %q is not a decimal", ErrInvalidInput, latitude)
	}
	if lon.Abs().GreaterThan(maxLongitude) {
		return fmt.Errorf("%w: longitude %s out of range", ErrInvalidInput, longitude)
	}
	if lat.Abs().GreaterThan(maxLatitude) {
		return fmt.Errorf("%w: latitude %s out of range", ErrInvalidInput, latitude)
	}
	return nil
}
