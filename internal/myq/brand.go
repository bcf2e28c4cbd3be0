package myq

import (
	"fmt"
	"strings"
)

// Vendor endpoints and application identifiers.
//
// LiftMaster and Chamberlain share the same cloud endpoint and application
// id; Craftsman runs a separately branded deployment of the same service.
const (
	baseURLLiftMaster = "https://myqexternal.myqdevice.com"
	baseURLCraftsman  = "https://craftexternal.myqdevice.com"

	appIDLiftMaster = "NWknvuBd7LoFHfXmKNMBcgajXtZEgKUh4V7WNzMidrpUUluDpVYVZx+xT4PCM5Kx"
	appIDCraftsman  = "eU97d99kMG4t3STJZO/Mu2wt69yTQwM0WXZA5oZ74/ascQ2xQrLD/yjeVhEQccBZ"
)

// Brand identifies the vendor variant of the MyQ service.
type Brand string

// Supported brands.
const (
	BrandLiftMaster  Brand = "liftmaster"
	BrandChamberlain Brand = "chamberlain"
	BrandCraftsman   Brand = "craftsman"
)

// ParseBrand converts a configuration string to a Brand.
// Matching is case-insensitive.
//
// Returns:
//   - Brand: The parsed brand
//   - error: ErrInvalidBrand if the string is not a known brand
func ParseBrand(s string) (Brand, error) {
	switch Brand(strings.ToLower(s)) {
	case BrandLiftMaster:
		return BrandLiftMaster, nil
	case BrandChamberlain:
		return BrandChamberlain, nil
	case BrandCraftsman:
		return BrandCraftsman, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBrand, s)
	}
}

// baseURL returns the cloud endpoint for the brand.
func (b Brand) baseURL() string {
	if b == BrandCraftsman {
		return baseURLCraftsman
	}
	return baseURLLiftMaster
}

// applicationID returns the MyQApplicationId header value for the brand.
func (b Brand) applicationID() string {
	if b == BrandCraftsman {
		return appIDCraftsman
	}
	return appIDLiftMaster
}
